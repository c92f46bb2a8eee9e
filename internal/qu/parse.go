package qu

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/recordsql/recordsql/internal/completion"
)

const blockTag = "QU"

// Parse reads the <QU> block of a completion. The body is decoded as JSON and,
// failing that, as a YAML flow mapping, which also accepts single-quoted keys.
func Parse(text string) (Understanding, error) {
	body, err := completion.ExtractBlock(text, blockTag)
	if err != nil {
		return Empty(), err
	}
	fields, err := decodeObject(body)
	if err != nil {
		return Empty(), err
	}
	return fromFields(fields), nil
}

func decodeObject(body string) (map[string]any, error) {
	var fields map[string]any
	jsonErr := json.Unmarshal([]byte(body), &fields)
	if jsonErr == nil && fields != nil {
		return fields, nil
	}
	fields = nil
	if yamlErr := yaml.Unmarshal([]byte(body), &fields); yamlErr != nil || fields == nil {
		return nil, fmt.Errorf("decode QU block: %w", jsonErr)
	}
	return fields, nil
}

func fromFields(fields map[string]any) Understanding {
	u := Empty()
	for key, raw := range fields {
		values := toStrings(raw)
		switch canonicalKey(key) {
		case "player":
			u.Player = appendUnique(u.Player, values)
		case "team":
			u.Team = appendUnique(u.Team, values)
		case "rivalteam":
			u.RivalTeam = appendUnique(u.RivalTeam, values)
		case "venue":
			u.Venue = appendUnique(u.Venue, values)
		case "season", "format", "seasonorformat":
			u.SeasonOrFormat = appendUnique(u.SeasonOrFormat, values)
		case "recordcontext":
			u.RecordContext = appendUnique(u.RecordContext, values)
		}
	}
	return u
}

func canonicalKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
}

func toStrings(raw any) []string {
	switch typed := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, toStrings(item)...)
		}
		return out
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	case float64:
		return []string{strconv.FormatFloat(typed, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(typed)}
	case bool:
		return []string{strconv.FormatBool(typed)}
	}
	return nil
}

func appendUnique(dst, values []string) []string {
	for _, value := range values {
		duplicate := false
		for _, existing := range dst {
			if existing == value {
				duplicate = true
				break
			}
		}
		if !duplicate {
			dst = append(dst, value)
		}
	}
	return dst
}
