package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokRef
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokNot
	tokAnd
	tokOr
	tokCompare
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "{{"):
			end := strings.Index(src[i+2:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("unterminated reference at %d", i)
			}
			name := strings.TrimSpace(src[i+2 : i+2+end])
			if name == "" {
				return nil, fmt.Errorf("empty reference at %d", i)
			}
			toks = append(toks, token{kind: tokRef, text: name, pos: i})
			i += end + 4
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, token{kind: tokAnd, text: "&&", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, token{kind: tokOr, text: "||", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], ">="), strings.HasPrefix(src[i:], "<="),
			strings.HasPrefix(src[i:], "=="), strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{kind: tokCompare, text: src[i : i+2], pos: i})
			i += 2
		case c == '>' || c == '<':
			toks = append(toks, token{kind: tokCompare, text: string(c), pos: i})
			i++
		case c == '!':
			toks = append(toks, token{kind: tokNot, text: "!", pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : i+1+end], pos: i})
			i += end + 2
		case isNumberStart(src, i):
			j := i + 1
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: i})
			i = j
		case isIdentChar(rune(c)):
			j := i
			for j < len(src) && isIdentChar(rune(src[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumberStart(src string, i int) bool {
	c := src[i]
	if isDigit(c) {
		return true
	}
	return c == '-' && i+1 < len(src) && isDigit(src[i+1])
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '[' || r == ']' || r == '-'
}
