package placeholder

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/resolve"
	"github.com/recordsql/recordsql/internal/sqltemplate"
)

type stubPrompter struct{}

func (stubPrompter) ResolvePrompt(_ qu.Understanding, templateSQL string, _ resolve.Metadata) (string, error) {
	return templateSQL, nil
}

var keywords = []string{"player", "batsman", "bowler"}

func id(v int64) *int64 {
	return &v
}

func TestDeterministic(t *testing.T) {
	tests := []struct {
		name          string
		template      string
		understanding qu.Understanding
		metadata      resolve.Metadata
		want          string
	}{
		{
			name:     "career best for team",
			template: "SELECT MAX(runs) FROM player_performance WHERE player_id = ##playerid## AND team_id = ##teamid## LIMIT 5;",
			understanding: qu.Understanding{
				Player:        []string{"Virat Kohli"},
				Team:          []string{"India"},
				RecordContext: []string{"career-best total for team"},
			},
			metadata: resolve.Metadata{"Virat Kohli": id(253802), "India": id(6)},
			want:     "SELECT MAX(runs) FROM player_performance WHERE player_id = 253802 AND team_id = 6 LIMIT 5;",
		},
		{
			name:          "unresolved rival removed",
			template:      "SELECT * FROM player_performance WHERE opponent_team_id = ##rivalteamid## AND season = 2019 LIMIT 5",
			understanding: qu.Understanding{RivalTeam: []string{"Atlantis"}},
			metadata:      resolve.Metadata{"Atlantis": nil},
			want:          "SELECT * FROM player_performance WHERE season = 2019 LIMIT 5",
		},
		{
			name:          "sole unresolved condition drops where",
			template:      "SELECT * FROM player_performance WHERE team_id = ##teamid## ORDER BY runs DESC LIMIT 5",
			understanding: qu.Understanding{Team: []string{"Nowhere"}},
			metadata:      resolve.Metadata{},
			want:          "SELECT * FROM player_performance ORDER BY runs DESC LIMIT 5",
		},
		{
			name:     "player without keyword is not bound",
			template: "SELECT * FROM player_performance WHERE player_id = ##playerid## LIMIT 5",
			understanding: qu.Understanding{
				Player:        []string{"Babe Ruth"},
				RecordContext: []string{"most home runs"},
			},
			metadata: resolve.Metadata{"Babe Ruth": id(121578)},
			want:     "SELECT * FROM player_performance LIMIT 5",
		},
		{
			name:     "player with keyword is bound",
			template: "SELECT * FROM player_performance WHERE player_id = ##playerid## LIMIT 5",
			understanding: qu.Understanding{
				Player:        []string{"Jasprit Bumrah"},
				RecordContext: []string{"best bowler economy"},
			},
			metadata: resolve.Metadata{"Jasprit Bumrah": id(625383)},
			want:     "SELECT * FROM player_performance WHERE player_id = 625383 LIMIT 5",
		},
		{
			name:          "first resolved entity wins",
			template:      "SELECT * FROM t WHERE team_id = ##teamid##",
			understanding: qu.Understanding{Team: []string{"Ghosts", "Lakers", "Celtics"}},
			metadata:      resolve.Metadata{"Ghosts": nil, "Lakers": id(1610612747), "Celtics": id(1610612738)},
			want:          "SELECT * FROM t WHERE team_id = 1610612747",
		},
		{
			name:          "venue has no resolution",
			template:      "SELECT * FROM t WHERE venue_id = ##venueid## AND runs > 50",
			understanding: qu.Understanding{Venue: []string{"Eden Gardens"}},
			metadata:      resolve.Metadata{},
			want:          "SELECT * FROM t WHERE runs > 50",
		},
		{
			name:          "token outside filters becomes null",
			template:      "SELECT ##teamid## AS team, runs FROM t LIMIT 5",
			understanding: qu.Empty(),
			metadata:      resolve.Metadata{},
			want:          "SELECT NULL AS team, runs FROM t LIMIT 5",
		},
		{
			name:          "illegal token removed",
			template:      "SELECT * FROM t WHERE season = ##seasonid## LIMIT 5",
			understanding: qu.Empty(),
			metadata:      nil,
			want:          "SELECT * FROM t LIMIT 5",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Deterministic(tc.template, tc.understanding, tc.metadata, keywords)
			if got != tc.want {
				t.Fatalf("Deterministic() =\n%q\nwant\n%q", got, tc.want)
			}
			if strings.Contains(got, "##") {
				t.Fatalf("Deterministic() left a token: %q", got)
			}
		})
	}
}

func TestResolveNoPlaceholdersIsNoop(t *testing.T) {
	var calls atomic.Int32
	completer := completion.CompleterFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", nil
	})
	resolver := &Resolver{Completer: completer, Prompter: stubPrompter{}}
	template := "SELECT player_id, homeRuns FROM player_performance ORDER BY homeRuns DESC LIMIT 5;"

	got := resolver.Resolve(context.Background(), []qu.Understanding{qu.Empty()}, []string{template}, nil)
	if got[0].SQL != template || got[0].Path != PathNoop {
		t.Fatalf("Resolve() = %+v", got[0])
	}
	again := resolver.Resolve(context.Background(), []qu.Understanding{qu.Empty()}, []string{got[0].SQL}, nil)
	if again[0].SQL != got[0].SQL {
		t.Fatalf("second Resolve() = %q", again[0].SQL)
	}
	if calls.Load() != 0 {
		t.Fatalf("completion calls = %d, want 0", calls.Load())
	}
}

func TestResolveCompletionPath(t *testing.T) {
	completer := completion.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "##teamid##"):
			return "SELECT *\nFROM t WHERE team_id = 6 LIMIT 5\n</SQL>", nil
		case strings.Contains(prompt, "##rivalteamid##"):
			return "<SQL>SELECT * FROM t WHERE opponent_team_id = ##rivalteamid## LIMIT 5</SQL>", nil
		case strings.Contains(prompt, "##venueid##"):
			return "", errors.New("deadline exceeded")
		}
		return "<SQL>DROP TABLE t</SQL>", nil
	})
	resolver := &Resolver{Completer: completer, Prompter: stubPrompter{}, PlayerKeywords: keywords}
	templates := []string{
		"SELECT * FROM t WHERE team_id = ##teamid## LIMIT 5",
		"SELECT * FROM t WHERE opponent_team_id = ##rivalteamid## LIMIT 5",
		"SELECT * FROM t WHERE venue_id = ##venueid## LIMIT 5",
		"SELECT * FROM t WHERE player_id = ##playerid## LIMIT 5",
	}
	understandings := []qu.Understanding{
		{Team: []string{"India"}},
		{RivalTeam: []string{"England"}},
		{Venue: []string{"Lord's"}},
		{Player: []string{"Joe Root"}},
	}
	metadata := []resolve.Metadata{
		{"India": id(6)},
		{"England": id(1)},
		{},
		{"Joe Root": id(303669)},
	}

	got := resolver.Resolve(context.Background(), understandings, templates, metadata)
	want := []Final{
		{SQL: "SELECT * FROM t WHERE team_id = 6 LIMIT 5", Path: PathCompletion},
		{SQL: "SELECT * FROM t WHERE opponent_team_id = 1 LIMIT 5", Path: PathDeterministic},
		{SQL: "SELECT * FROM t LIMIT 5", Path: PathDeterministic},
		{SQL: "SELECT * FROM t LIMIT 5", Path: PathDeterministic},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Resolve()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResolveDeterministicModeSkipsCompletion(t *testing.T) {
	var calls atomic.Int32
	completer := completion.CompleterFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "<SQL>SELECT 1</SQL>", nil
	})
	resolver := &Resolver{Completer: completer, Prompter: stubPrompter{}, Deterministic: true}

	got := resolver.Resolve(context.Background(),
		[]qu.Understanding{{Team: []string{"Yankees"}}},
		[]string{"SELECT * FROM t WHERE team_id = ##teamid##"},
		[]resolve.Metadata{{"Yankees": id(147)}},
	)
	if got[0].SQL != "SELECT * FROM t WHERE team_id = 147" || got[0].Path != PathDeterministic {
		t.Fatalf("Resolve() = %+v", got[0])
	}
	if calls.Load() != 0 {
		t.Fatalf("completion calls = %d", calls.Load())
	}
}

func TestResolveOutputIsClosed(t *testing.T) {
	completer := completion.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		return "<SQL>" + prompt + "</SQL>", nil
	})
	resolver := &Resolver{Completer: completer, Prompter: stubPrompter{}}
	templates := []string{
		"SELECT ##playerid##, ##teamid## FROM t WHERE a = ##rivalteamid## OR b = ##venueid##",
		"SELECT * FROM t WHERE x = ##bogusid## HAVING y = ##teamid##",
		"SELECT 1;",
	}
	for i, final := range resolver.Resolve(context.Background(), nil, templates, nil) {
		if strings.Contains(final.SQL, "##") || len(sqltemplate.IllegalTokens(final.SQL)) > 0 {
			t.Fatalf("Resolve()[%d] left a token: %q", i, final.SQL)
		}
	}
}
