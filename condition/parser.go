package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a condition expression.
//
// Grammar, loosest binding first:
//
//	expr    := or ( "&&" or )*
//	or      := unary ( "||" unary )*
//	unary   := "!" unary | primary
//	primary := "(" expr ")" | operand ( cmp operand )?
//	cmp     := ">" | "<" | ">=" | "<=" | "==" | "!="
//	operand := {{path}} | ident | number | 'string' | "string"
//
// "&&" binds looser than "||", so "a || b && c" reads as "(a || b) && c".
// Bare identifiers are context keys; "true" and "always" are constant true,
// "false" is constant false.
func Parse(src string) (Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return constant(true), nil
	}
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.peek())
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

func (p *parser) parseExpr() (Expr, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.peek().kind == tokAnd {
		p.next()
		t, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &andExpr{terms: terms}, nil
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.peek().kind == tokOr {
		p.next()
		t, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &orExpr{terms: terms}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected ')' but found %s", p.peek())
		}
		p.next()
		return &groupExpr{x: x}, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokCompare {
		if left.kind == opBool {
			return constant(left.b), nil
		}
		return &truthExpr{op: left}, nil
	}
	op := p.next().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &compareExpr{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.next()
	switch t.kind {
	case tokRef:
		return operand{kind: opRef, text: t.text}, nil
	case tokString:
		return operand{kind: opString, text: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, p.errorf("bad number %s", t)
		}
		return operand{kind: opNumber, num: f, text: t.text}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true", "always":
			return operand{kind: opBool, b: true, text: t.text}, nil
		case "false":
			return operand{kind: opBool, b: false, text: t.text}, nil
		}
		return operand{kind: opIdent, text: t.text}, nil
	default:
		return operand{}, p.errorf("expected operand but found %s", t)
	}
}

type constant bool

func (c constant) Eval(map[string]any) bool { return bool(c) }

func (c constant) String() string { return strconv.FormatBool(bool(c)) }
