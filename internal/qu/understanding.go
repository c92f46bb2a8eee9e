package qu

import (
	"encoding/json"
	"strings"

	"github.com/recordsql/recordsql/internal/sqltemplate"
)

// Understanding is the structured intent of one record statement. All six
// fields are always present and serialise as arrays.
type Understanding struct {
	Player         []string `json:"player"`
	Team           []string `json:"team"`
	RivalTeam      []string `json:"rivalteam"`
	Venue          []string `json:"venue"`
	SeasonOrFormat []string `json:"season_or_format"`
	RecordContext  []string `json:"record_context"`
}

func Empty() Understanding {
	return Understanding{}.normalized()
}

func (u Understanding) normalized() Understanding {
	return Understanding{
		Player:         nonNil(u.Player),
		Team:           nonNil(u.Team),
		RivalTeam:      nonNil(u.RivalTeam),
		Venue:          nonNil(u.Venue),
		SeasonOrFormat: nonNil(u.SeasonOrFormat),
		RecordContext:  nonNil(u.RecordContext),
	}
}

func (u Understanding) MarshalJSON() ([]byte, error) {
	type plain Understanding
	return json.Marshal(plain(u.normalized()))
}

func (u Understanding) IsEmpty() bool {
	return len(u.Player)+len(u.Team)+len(u.RivalTeam)+len(u.Venue)+len(u.SeasonOrFormat)+len(u.RecordContext) == 0
}

func (u Understanding) Entities(kind sqltemplate.Kind) []string {
	switch kind {
	case sqltemplate.KindPlayer:
		return u.Player
	case sqltemplate.KindTeam:
		return u.Team
	case sqltemplate.KindRivalTeam:
		return u.RivalTeam
	case sqltemplate.KindVenue:
		return u.Venue
	}
	return nil
}

// Names returns every entity string across the four entity kinds.
func (u Understanding) Names() []string {
	out := make([]string, 0, len(u.Player)+len(u.Team)+len(u.RivalTeam)+len(u.Venue))
	for _, kind := range sqltemplate.Kinds {
		out = append(out, u.Entities(kind)...)
	}
	return out
}

func (u Understanding) RecordContextText() string {
	return strings.ToLower(strings.Join(u.RecordContext, " "))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
