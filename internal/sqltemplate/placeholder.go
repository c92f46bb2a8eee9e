package sqltemplate

import (
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	KindPlayer    Kind = "player"
	KindTeam      Kind = "team"
	KindRivalTeam Kind = "rivalteam"
	KindVenue     Kind = "venue"
)

const marker = "##"

var Kinds = []Kind{KindPlayer, KindTeam, KindRivalTeam, KindVenue}

var tokenPattern = regexp.MustCompile(`##(\w+)##`)

func (k Kind) Token() string {
	return marker + string(k) + "id" + marker
}

func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func kindForToken(token string) (Kind, bool) {
	for _, kind := range Kinds {
		if kind.Token() == token {
			return kind, true
		}
	}
	return "", false
}

func HasPlaceholders(sqlText string) bool {
	return tokenPattern.MatchString(sqlText)
}

// Placeholders lists the legal kinds present, in first-occurrence order.
func Placeholders(sqlText string) []Kind {
	seen := map[Kind]bool{}
	out := make([]Kind, 0)
	for _, token := range tokenPattern.FindAllString(sqlText, -1) {
		kind, ok := kindForToken(token)
		if !ok || seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
	}
	return out
}

// IllegalTokens lists marker-wrapped tokens outside the four legal kinds.
func IllegalTokens(sqlText string) []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, token := range tokenPattern.FindAllString(sqlText, -1) {
		if _, ok := kindForToken(token); ok || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

func Substitute(sqlText string, kind Kind, id int64) string {
	return strings.ReplaceAll(sqlText, kind.Token(), strconv.FormatInt(id, 10))
}

// NullifyRemaining replaces every marker-wrapped token with NULL.
func NullifyRemaining(sqlText string) string {
	return tokenPattern.ReplaceAllString(sqlText, "NULL")
}

// RemovePlaceholderConditions drops WHERE/HAVING conditions holding a token
// of the given kinds, or any marker-wrapped token when no kind is given.
func RemovePlaceholderConditions(sqlText string, kinds ...Kind) string {
	if len(kinds) == 0 {
		return RemoveConditions(sqlText, tokenPattern.MatchString)
	}
	return RemoveConditions(sqlText, func(condition string) bool {
		for _, kind := range kinds {
			if strings.Contains(condition, kind.Token()) {
				return true
			}
		}
		return false
	})
}
