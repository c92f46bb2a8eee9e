package sqltemplate

import (
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	noVenue := func(kind Kind) bool { return kind != KindVenue }
	tests := []struct {
		name  string
		sql   string
		scope Scope
		want  []Rule
	}{
		{
			name:  "clean global record",
			sql:   "SELECT player_id, SUM(runs) AS r FROM pp GROUP BY player_id ORDER BY r DESC LIMIT 5;",
			scope: Scope{Names: []string{"Virat Kohli"}, Context: "most runs in history", RequireLimit: true},
			want:  []Rule{},
		},
		{
			name:  "illegal token",
			sql:   "SELECT * FROM pp WHERE season = ##seasonid## LIMIT 5",
			scope: Scope{RequireLimit: true},
			want:  []Rule{RuleIllegalToken},
		},
		{
			name:  "literal name in where",
			sql:   "SELECT * FROM pp WHERE player_name = 'Virat Kohli' LIMIT 5",
			scope: Scope{Names: []string{"Virat Kohli"}, RequireLimit: true},
			want:  []Rule{RuleLiteralName},
		},
		{
			name:  "literal name in select only",
			sql:   "SELECT 'Virat Kohli' AS label FROM pp LIMIT 5",
			scope: Scope{Names: []string{"Virat Kohli"}, RequireLimit: true},
			want:  []Rule{},
		},
		{
			name:  "player placeholder on global record",
			sql:   "SELECT * FROM pp WHERE player_id = ##playerid## LIMIT 5",
			scope: Scope{Present: map[Kind]bool{KindPlayer: true}, Context: "most sixes of all time", RequireLimit: true},
			want:  []Rule{RulePlayerScope},
		},
		{
			name:  "player placeholder on personal record",
			sql:   "SELECT * FROM pp WHERE player_id = ##playerid## LIMIT 5",
			scope: Scope{Present: map[Kind]bool{KindPlayer: true}, Context: "kohli's career-best score", RequireLimit: true},
			want:  []Rule{},
		},
		{
			name:  "rival placeholder without rival",
			sql:   "SELECT * FROM pp WHERE opponent_team_id = ##rivalteamid## LIMIT 5",
			scope: Scope{Present: map[Kind]bool{KindPlayer: true}, RequireLimit: true},
			want:  []Rule{RuleEntityScope},
		},
		{
			name:  "unsupported venue",
			sql:   "SELECT * FROM pp WHERE venue_id = ##venueid## LIMIT 5",
			scope: Scope{Present: map[Kind]bool{KindVenue: true}, Supported: noVenue, RequireLimit: true},
			want:  []Rule{RuleUnsupportedKind},
		},
		{
			name:  "missing limit",
			sql:   "SELECT * FROM pp",
			scope: Scope{RequireLimit: true},
			want:  []Rule{RuleMissingLimit},
		},
		{
			name:  "missing order by",
			sql:   "SELECT player_id, SUM(hr) AS hr FROM pp GROUP BY player_id LIMIT 5;",
			scope: Scope{RequireLimit: true, RequireOrderBy: true, TopN: 5},
			want:  []Rule{RuleMissingOrderBy},
		},
		{
			name:  "order by only inside window",
			sql:   "SELECT player_id, RANK() OVER (ORDER BY hr DESC) AS r FROM pp LIMIT 5;",
			scope: Scope{RequireLimit: true, RequireOrderBy: true},
			want:  []Rule{RuleMissingOrderBy},
		},
		{
			name:  "limit other than top n",
			sql:   "SELECT player_id, hr FROM pp ORDER BY hr DESC LIMIT 1;",
			scope: Scope{RequireLimit: true, RequireOrderBy: true, TopN: 5},
			want:  []Rule{RuleLimitValue},
		},
		{
			name:  "limit inside subquery only",
			sql:   "SELECT * FROM (SELECT player_id, hr FROM pp ORDER BY hr DESC LIMIT 5) ranked ORDER BY hr DESC",
			scope: Scope{RequireLimit: true, RequireOrderBy: true, TopN: 5},
			want:  []Rule{RuleMissingLimit},
		},
		{
			name:  "name column in filters",
			sql:   "SELECT p.name, SUM(hr) AS hr FROM pp p WHERE p.name <> '' GROUP BY p.name HAVING p.name IS NOT NULL ORDER BY hr DESC LIMIT 5;",
			scope: Scope{NameColumns: []string{"name"}, RequireLimit: true, RequireOrderBy: true, TopN: 5},
			want:  []Rule{RuleNameColumn},
		},
		{
			name:  "name column projected only",
			sql:   "SELECT player_id, MAX(PLAYER_NAME) AS PLAYER_NAME, SUM(hr) AS hr FROM pp GROUP BY player_id ORDER BY hr DESC LIMIT 5;",
			scope: Scope{NameColumns: []string{"player_name", "team_name"}, RequireLimit: true, RequireOrderBy: true, TopN: 5},
			want:  []Rule{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := make([]Rule, 0)
			for _, violation := range Validate(tc.sql, tc.scope) {
				got = append(got, violation.Rule)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Validate() rules = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsSelfReferential(t *testing.T) {
	tests := map[string]bool{
		"his best bowling figures":    true,
		"Kohli's highest score":       true,
		"career-best 183":             true,
		"most runs ever":              false,
		"his best ever":               false,
		"highest score in an innings": false,
		"however his best effort":     true,
	}
	for context, want := range tests {
		if got := IsSelfReferential(context); got != want {
			t.Fatalf("IsSelfReferential(%q) = %v, want %v", context, got, want)
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	if !ContainsPhrase("team_id = 3 and x = 'angels'", "angels") {
		t.Fatal("expected quoted name match")
	}
	if ContainsPhrase("team_id = 3", "team") {
		t.Fatal("phrase inside identifier should not match")
	}
	if !ContainsPhrase("most runs ever.", "ever") {
		t.Fatal("expected match before punctuation")
	}
	if ContainsPhrase("anything", "") {
		t.Fatal("empty phrase should not match")
	}
}

func TestDisallowedKindsAndFatal(t *testing.T) {
	violations := []Violation{
		{Rule: RulePlayerScope, Kind: KindPlayer},
		{Rule: RuleMissingLimit},
		{Rule: RuleEntityScope, Kind: KindVenue},
		{Rule: RuleUnsupportedKind, Kind: KindVenue},
	}
	if got := DisallowedKinds(violations); !reflect.DeepEqual(got, []Kind{KindPlayer, KindVenue}) {
		t.Fatalf("DisallowedKinds() = %v", got)
	}
	if (Violation{Rule: RuleMissingLimit}).Fatal() {
		t.Fatal("missing limit should be repairable")
	}
	if !(Violation{Rule: RuleLiteralName}).Fatal() {
		t.Fatal("literal name should be fatal")
	}
}
