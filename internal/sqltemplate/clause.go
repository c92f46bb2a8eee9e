package sqltemplate

import (
	"strconv"
	"strings"
)

var clauseTerminators = []string{
	"GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "FETCH", "WINDOW", "QUALIFY", "UNION", "INTERSECT", "EXCEPT",
}

// joinTerminators also end the condition of a JOIN ... ON clause.
var joinTerminators = []string{
	"WHERE", "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL", "ON",
}

// RemoveConditions drops every condition of a WHERE, HAVING or JOIN ... ON
// clause for which match reports true, at every nesting depth. Conditions are
// split on AND and then on OR, including inside parenthesised groups, so only
// the matching branches go; a group or clause left empty goes with them. An
// emptied ON clause becomes ON TRUE. Quoted text, BETWEEN ... AND and
// CASE ... END are kept intact.
func RemoveConditions(sqlText string, match func(condition string) bool) string {
	if match == nil {
		return sqlText
	}
	tree := parseTree(lex(sqlText))
	return strings.TrimSpace(render(removeConditions(tree, match)))
}

func removeConditions(nodes []node, match func(string) bool) []node {
	for i := range nodes {
		if nodes[i].group {
			nodes[i].children = removeConditions(nodes[i].children, match)
		}
	}

	out := make([]node, 0, len(nodes))
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		join := n.isKeyword("ON")
		if !join && !n.isKeyword("WHERE") && !n.isKeyword("HAVING") {
			out = append(out, n)
			continue
		}
		end := clauseEnd(nodes, i+1)
		if join {
			end = clauseEnd(nodes[:end], i+1, joinTerminators...)
		}
		kept, changed := pruneCondition(nodes[i+1:end], match)
		if !changed {
			out = append(out, nodes[i:end]...)
			i = end - 1
			continue
		}

		followed := end < len(nodes) && nodes[end].tok.kind != tokSemicolon
		switch {
		case kept == "" && join:
			out = append(out, n, spaceNode(), textNode("TRUE"))
		case kept == "":
			out = trimTrailingSpace(out)
		default:
			out = append(out, n, spaceNode(), textNode(kept))
		}
		if followed {
			out = append(out, spaceNode())
		}
		i = end - 1
	}
	return out
}

// pruneCondition removes the matching AND and OR branches of a boolean
// expression. It returns the remaining text, empty when nothing is left, and
// whether anything was removed.
func pruneCondition(body []node, match func(string) bool) (string, bool) {
	conjuncts := splitOn(body, "AND")
	kept := make([]string, 0, len(conjuncts))
	changed := false
	for _, conjunct := range conjuncts {
		disjuncts := splitOn(conjunct, "OR")
		branches := make([]string, 0, len(disjuncts))
		for _, disjunct := range disjuncts {
			text := strings.TrimSpace(render(disjunct))
			if text == "" {
				continue
			}
			if group, ok := soleGroup(disjunct); ok {
				inner, innerChanged := pruneCondition(group.children, match)
				if innerChanged {
					changed = true
					if inner != "" {
						branches = append(branches, "("+inner+")")
					}
					continue
				}
			}
			if match(text) {
				changed = true
				continue
			}
			branches = append(branches, text)
		}
		if len(branches) > 0 {
			kept = append(kept, strings.Join(branches, " OR "))
		}
	}
	return strings.Join(kept, " AND "), changed
}

// soleGroup returns the parenthesised boolean group that makes up the whole
// condition. Subqueries are not boolean groups.
func soleGroup(condition []node) (node, bool) {
	var found node
	count := 0
	for _, n := range condition {
		if n.isSpace() {
			continue
		}
		count++
		found = n
	}
	if count != 1 || !found.group || !found.closed {
		return node{}, false
	}
	if first := nextNonSpace(found.children, 0); first >= 0 && (found.children[first].isKeyword("SELECT") || found.children[first].isKeyword("WITH")) {
		return node{}, false
	}
	return found, true
}

// clauseEnd returns the index of the first node after a clause body. Extra
// keywords end the body as well.
func clauseEnd(nodes []node, start int, extra ...string) int {
	for i := start; i < len(nodes); i++ {
		n := nodes[i]
		if n.group {
			continue
		}
		if n.tok.kind == tokSemicolon {
			return i
		}
		for _, keyword := range clauseTerminators {
			if n.tok.is(keyword) {
				return i
			}
		}
		for _, keyword := range extra {
			if n.tok.is(keyword) {
				return i
			}
		}
	}
	return len(nodes)
}

// splitOn splits a condition on a top-level AND or OR keyword. The AND of a
// BETWEEN and keywords inside CASE ... END do not split.
func splitOn(body []node, keyword string) [][]node {
	parts := make([][]node, 0)
	current := make([]node, 0)
	betweenPending := false
	caseDepth := 0
	for _, n := range body {
		switch {
		case n.isKeyword("CASE"):
			caseDepth++
		case n.isKeyword("END") && caseDepth > 0:
			caseDepth--
		case n.isKeyword("BETWEEN"):
			betweenPending = true
		case n.isKeyword(keyword) && caseDepth == 0:
			if keyword == "AND" && betweenPending {
				betweenPending = false
				break
			}
			parts = append(parts, current)
			current = make([]node, 0)
			continue
		}
		current = append(current, n)
	}
	return append(parts, current)
}

// FilterClauses returns the bodies of WHERE, GROUP BY and HAVING clauses at
// every nesting depth.
func FilterClauses(sqlText string) []string {
	out := make([]string, 0)
	collectFilterClauses(parseTree(lex(sqlText)), &out)
	return out
}

func collectFilterClauses(nodes []node, out *[]string) {
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if n.group {
			collectFilterClauses(n.children, out)
			continue
		}
		start := -1
		switch {
		case n.tok.is("WHERE"), n.tok.is("HAVING"):
			start = i + 1
		case n.tok.is("GROUP"):
			if next := nextNonSpace(nodes, i+1); next >= 0 && nodes[next].isKeyword("BY") {
				start = next + 1
			}
		}
		if start < 0 {
			continue
		}
		end := clauseEnd(nodes, start)
		if body := strings.TrimSpace(render(nodes[start:end])); body != "" {
			*out = append(*out, body)
		}
		for _, inner := range nodes[start:end] {
			if inner.group {
				collectFilterClauses(inner.children, out)
			}
		}
		i = end - 1
	}
}

// HasLimit reports whether the outermost statement carries a LIMIT clause.
func HasLimit(sqlText string) bool {
	return limitIndex(parseTree(lex(sqlText))) >= 0
}

// HasOrderBy reports whether the outermost statement carries an ORDER BY
// clause. ORDER BY inside a window or subquery does not count.
func HasOrderBy(sqlText string) bool {
	nodes := parseTree(lex(sqlText))
	for i, n := range nodes {
		if !n.isKeyword("ORDER") {
			continue
		}
		if next := nextNonSpace(nodes, i+1); next >= 0 && nodes[next].isKeyword("BY") {
			return true
		}
	}
	return false
}

// LimitValue returns the row count of the outermost LIMIT clause. It reports
// false when there is no LIMIT or its value is not an integer literal.
func LimitValue(sqlText string) (int, bool) {
	nodes := parseTree(lex(sqlText))
	i := limitIndex(nodes)
	if i < 0 {
		return 0, false
	}
	next := nextNonSpace(nodes, i+1)
	if next < 0 || nodes[next].group {
		return 0, false
	}
	value, err := strconv.Atoi(nodes[next].tok.text)
	if err != nil {
		return 0, false
	}
	return value, true
}

// EnsureLimit makes the outermost statement end in LIMIT n: it appends the
// clause when there is none and rewrites a LIMIT with another value.
func EnsureLimit(sqlText string, n int) string {
	if n <= 0 {
		return sqlText
	}
	nodes := parseTree(lex(sqlText))
	if i := limitIndex(nodes); i >= 0 {
		if value, ok := LimitValue(sqlText); ok && value == n {
			return sqlText
		}
		end := clauseEnd(nodes, i+1)
		out := append([]node{}, nodes[:i+1]...)
		out = append(out, spaceNode(), textNode(strconv.Itoa(n)))
		if end < len(nodes) && nodes[end].tok.kind != tokSemicolon {
			out = append(out, spaceNode())
		}
		out = append(out, nodes[end:]...)
		return strings.TrimSpace(render(out))
	}
	trimmed := strings.TrimSpace(sqlText)
	terminated := false
	for strings.HasSuffix(trimmed, ";") {
		terminated = true
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	limited := trimmed + " LIMIT " + strconv.Itoa(n)
	if terminated {
		limited += ";"
	}
	return limited
}

func limitIndex(nodes []node) int {
	for i, n := range nodes {
		if n.isKeyword("LIMIT") {
			return i
		}
	}
	return -1
}

func nextNonSpace(nodes []node, start int) int {
	for i := start; i < len(nodes); i++ {
		if !nodes[i].isSpace() {
			return i
		}
	}
	return -1
}

func trimTrailingSpace(nodes []node) []node {
	for len(nodes) > 0 && nodes[len(nodes)-1].isSpace() {
		nodes = nodes[:len(nodes)-1]
	}
	return nodes
}

func spaceNode() node {
	return node{tok: token{kind: tokSpace, text: " "}}
}

func textNode(text string) node {
	return node{tok: token{kind: tokOther, text: text}}
}
