package sqltemplate

import (
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokSpace
	tokString
	tokOpen
	tokClose
	tokSemicolon
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(keyword string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, keyword)
}

func lex(sqlText string) []token {
	tokens := make([]token, 0, len(sqlText)/3)
	i := 0
	for i < len(sqlText) {
		c := sqlText[i]
		start := i
		switch {
		case isSpace(c):
			for i < len(sqlText) && isSpace(sqlText[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokSpace, text: sqlText[start:i]})
		case c == '-' && strings.HasPrefix(sqlText[i:], "--"):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				i = len(sqlText)
			} else {
				i += end
			}
			tokens = append(tokens, token{kind: tokSpace, text: sqlText[start:i]})
		case c == '/' && strings.HasPrefix(sqlText[i:], "/*"):
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				i = len(sqlText)
			} else {
				i += end + 4
			}
			tokens = append(tokens, token{kind: tokSpace, text: sqlText[start:i]})
		case c == '\'' || c == '"' || c == '`':
			i = scanQuoted(sqlText, i)
			tokens = append(tokens, token{kind: tokString, text: sqlText[start:i]})
		case c == '(':
			i++
			tokens = append(tokens, token{kind: tokOpen, text: "("})
		case c == ')':
			i++
			tokens = append(tokens, token{kind: tokClose, text: ")"})
		case c == ';':
			i++
			tokens = append(tokens, token{kind: tokSemicolon, text: ";"})
		case isWordByte(c):
			for i < len(sqlText) && isWordByte(sqlText[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokWord, text: sqlText[start:i]})
		default:
			i++
			tokens = append(tokens, token{kind: tokOther, text: sqlText[start:i]})
		}
	}
	return tokens
}

func scanQuoted(sqlText string, i int) int {
	quote := sqlText[i]
	i++
	for i < len(sqlText) {
		if sqlText[i] == quote {
			if i+1 < len(sqlText) && sqlText[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isWordByte(c byte) bool {
	return c == '_' || c == '#' || c == '.' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// node is a leaf token or a parenthesised group of nodes.
type node struct {
	tok      token
	group    bool
	closed   bool
	children []node
}

func parseTree(tokens []token) []node {
	pos := 0
	nodes := parseLevel(tokens, &pos)
	for pos < len(tokens) {
		// stray closing parens at the top level stay as plain text
		nodes = append(nodes, node{tok: token{kind: tokOther, text: tokens[pos].text}})
		pos++
		nodes = append(nodes, parseLevel(tokens, &pos)...)
	}
	return nodes
}

func parseLevel(tokens []token, pos *int) []node {
	nodes := make([]node, 0)
	for *pos < len(tokens) {
		tok := tokens[*pos]
		switch tok.kind {
		case tokOpen:
			*pos++
			children := parseLevel(tokens, pos)
			closed := false
			if *pos < len(tokens) && tokens[*pos].kind == tokClose {
				closed = true
				*pos++
			}
			nodes = append(nodes, node{group: true, closed: closed, children: children})
		case tokClose:
			return nodes
		default:
			nodes = append(nodes, node{tok: tok})
			*pos++
		}
	}
	return nodes
}

func render(nodes []node) string {
	var b strings.Builder
	writeNodes(&b, nodes)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []node) {
	for _, n := range nodes {
		if !n.group {
			b.WriteString(n.tok.text)
			continue
		}
		b.WriteByte('(')
		writeNodes(b, n.children)
		if n.closed {
			b.WriteByte(')')
		}
	}
}

func (n node) isKeyword(keyword string) bool {
	return !n.group && n.tok.is(keyword)
}

func (n node) isSpace() bool {
	return !n.group && n.tok.kind == tokSpace
}
