package sqltemplate

import (
	"fmt"
	"strings"
)

type Rule string

const (
	RuleIllegalToken    Rule = "illegal_placeholder"
	RuleLiteralName     Rule = "literal_name"
	RulePlayerScope     Rule = "player_scope"
	RuleEntityScope     Rule = "entity_scope"
	RuleUnsupportedKind Rule = "unsupported_kind"
	RuleMissingLimit    Rule = "missing_limit"
	RuleLimitValue      Rule = "limit_value"
	RuleMissingOrderBy  Rule = "missing_order_by"
	RuleNameColumn      Rule = "name_column"
)

type Violation struct {
	Rule    Rule
	Kind    Kind
	Message string
}

func (v Violation) String() string {
	return v.Message
}

// Fatal reports whether removing conditions cannot fix the violation. A name
// column still filtered on after repair sits in GROUP BY, which cannot be
// dropped.
func (v Violation) Fatal() bool {
	return v.Rule == RuleIllegalToken || v.Rule == RuleLiteralName || v.Rule == RuleNameColumn
}

// Scope describes what a template for one statement may filter on.
type Scope struct {
	// Names are the literal entity strings of the statement.
	Names []string
	// Present holds the entity kinds the statement mentions.
	Present map[Kind]bool
	// Supported reports whether the store has a column for a kind. Nil
	// accepts every kind.
	Supported func(Kind) bool
	// NameColumns are the entity name columns, allowed only in the
	// projection.
	NameColumns []string
	// Context is the record wording used to decide player scoping.
	Context        string
	RequireLimit   bool
	RequireOrderBy bool
	// TopN is the required LIMIT value. Zero accepts any value.
	TopN int
}

var selfReferenceCues = []string{
	"his best", "his highest", "his most", "his lowest", "his fastest", "his own",
	"her best", "her highest", "her most", "her lowest", "her fastest", "her own",
	"their best", "their highest", "their own",
	"career-best", "career best", "career-high", "career high",
	"personal best", "personal record", "personal-best",
	"'s best", "'s highest", "'s most", "'s lowest", "'s fastest", "'s career",
}

var globalCues = []string{
	"all-time", "all time", "in history", "ever", "world record", "of all time",
}

// IsSelfReferential reports whether the record wording scopes the record to the
// player themself rather than to every player.
func IsSelfReferential(context string) bool {
	context = strings.ToLower(context)
	return containsAny(context, selfReferenceCues) && !containsAny(context, globalCues)
}

// Validate checks a template against the placeholder scoping rules.
func Validate(sqlText string, scope Scope) []Violation {
	out := make([]Violation, 0)
	for _, token := range IllegalTokens(sqlText) {
		out = append(out, Violation{Rule: RuleIllegalToken, Message: fmt.Sprintf("illegal placeholder %s; only %s are allowed", token, legalTokenList())})
	}

	filters := strings.ToLower(strings.Join(FilterClauses(sqlText), " "))
	for _, name := range scope.Names {
		name = strings.TrimSpace(name)
		if name == "" || !ContainsPhrase(filters, strings.ToLower(name)) {
			continue
		}
		out = append(out, Violation{Rule: RuleLiteralName, Message: fmt.Sprintf("literal name %q used in WHERE, GROUP BY or HAVING; use id columns and placeholders", name)})
	}

	for _, column := range NameColumnsIn(filters, scope.NameColumns) {
		out = append(out, Violation{Rule: RuleNameColumn, Message: fmt.Sprintf("name column %s used in WHERE, GROUP BY or HAVING; name columns may only be selected", column)})
	}

	for _, kind := range Placeholders(sqlText) {
		if scope.Supported != nil && !scope.Supported(kind) {
			out = append(out, Violation{Rule: RuleUnsupportedKind, Kind: kind, Message: fmt.Sprintf("placeholder %s has no matching column in this schema", kind.Token())})
			continue
		}
		if !scope.Present[kind] {
			out = append(out, Violation{Rule: RuleEntityScope, Kind: kind, Message: fmt.Sprintf("placeholder %s used but the statement names no %s", kind.Token(), kind)})
			continue
		}
		if kind == KindPlayer && !IsSelfReferential(scope.Context) {
			out = append(out, Violation{Rule: RulePlayerScope, Kind: kind, Message: "player placeholder used for a record that is not personal to the player; do not filter by player"})
		}
	}

	if scope.RequireOrderBy && !HasOrderBy(sqlText) {
		out = append(out, Violation{Rule: RuleMissingOrderBy, Message: "missing ORDER BY clause ranking the candidates"})
	}
	switch {
	case scope.RequireLimit && !HasLimit(sqlText):
		out = append(out, Violation{Rule: RuleMissingLimit, Message: "missing LIMIT clause for the top candidates"})
	case scope.TopN > 0 && HasLimit(sqlText):
		if value, ok := LimitValue(sqlText); !ok || value != scope.TopN {
			out = append(out, Violation{Rule: RuleLimitValue, Message: fmt.Sprintf("LIMIT must be %d", scope.TopN)})
		}
	}
	return out
}

// NameColumnsIn returns the name columns text refers to, bare or qualified.
func NameColumnsIn(text string, columns []string) []string {
	text = strings.ToLower(text)
	out := make([]string, 0)
	for _, column := range columns {
		column = strings.ToLower(strings.TrimSpace(column))
		if ContainsPhrase(text, column) {
			out = append(out, column)
		}
	}
	return out
}

// DisallowedKinds lists the placeholder kinds the violations reject.
func DisallowedKinds(violations []Violation) []Kind {
	seen := map[Kind]bool{}
	out := make([]Kind, 0)
	for _, violation := range violations {
		if violation.Kind == "" || seen[violation.Kind] {
			continue
		}
		seen[violation.Kind] = true
		out = append(out, violation.Kind)
	}
	return out
}

func Messages(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, violation := range violations {
		out = append(out, violation.Message)
	}
	return out
}

// ContainsPhrase reports whether phrase occurs in text without being part of
// a longer identifier. Edges of the phrase that are not word characters need
// no boundary.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		leftOK := !isIdentByte(phrase[0]) || start == 0 || !isIdentByte(text[start-1])
		rightOK := !isIdentByte(phrase[len(phrase)-1]) || end == len(text) || !isIdentByte(text[end])
		if leftOK && rightOK {
			return true
		}
		offset = start + 1
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if ContainsPhrase(text, phrase) {
			return true
		}
	}
	return false
}

func legalTokenList() string {
	tokens := make([]string, 0, len(Kinds))
	for _, kind := range Kinds {
		tokens = append(tokens, kind.Token())
	}
	return strings.Join(tokens, ", ")
}
