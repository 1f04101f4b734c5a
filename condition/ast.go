package condition

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/AltairaLabs/EdenKit/template"
)

// Expr is a parsed condition.
type Expr interface {
	// Eval evaluates the condition against vars. It has no side effects.
	Eval(vars map[string]any) bool
	String() string
}

type andExpr struct{ terms []Expr }

func (e *andExpr) Eval(vars map[string]any) bool {
	for _, t := range e.terms {
		if !t.Eval(vars) {
			return false
		}
	}
	return true
}

func (e *andExpr) String() string { return join(e.terms, " && ") }

type orExpr struct{ terms []Expr }

func (e *orExpr) Eval(vars map[string]any) bool {
	for _, t := range e.terms {
		if t.Eval(vars) {
			return true
		}
	}
	return false
}

func (e *orExpr) String() string { return join(e.terms, " || ") }

type notExpr struct{ x Expr }

func (e *notExpr) Eval(vars map[string]any) bool { return !e.x.Eval(vars) }

func (e *notExpr) String() string { return "!" + e.x.String() }

type groupExpr struct{ x Expr }

func (e *groupExpr) Eval(vars map[string]any) bool { return e.x.Eval(vars) }

func (e *groupExpr) String() string { return "(" + e.x.String() + ")" }

type truthExpr struct{ op operand }

func (e *truthExpr) Eval(vars map[string]any) bool {
	v, ok := e.op.value(vars)
	return ok && Truthy(v)
}

func (e *truthExpr) String() string { return e.op.String() }

type compareExpr struct {
	op          string
	left, right operand
}

func (e *compareExpr) Eval(vars map[string]any) bool {
	lv, lok := e.left.comparable(vars)
	rv, rok := e.right.comparable(vars)
	switch e.op {
	case "==", "!=":
		eq := lok && rok && equal(lv, rv)
		if !lok && !rok {
			eq = true
		}
		if e.op == "==" {
			return eq
		}
		return !eq
	}
	if !lok || !rok {
		return false
	}
	l, lnum := Number(lv)
	r, rnum := Number(rv)
	if !lnum || !rnum {
		return false
	}
	switch e.op {
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}

func (e *compareExpr) String() string {
	return e.left.String() + " " + e.op + " " + e.right.String()
}

type operandKind int

const (
	opRef operandKind = iota
	opIdent
	opNumber
	opString
	opBool
)

type operand struct {
	kind operandKind
	text string
	num  float64
	b    bool
}

// value resolves the operand for truthiness checks.
func (o operand) value(vars map[string]any) (any, bool) {
	switch o.kind {
	case opRef, opIdent:
		return template.Lookup(vars, o.text)
	case opNumber:
		return o.num, true
	case opString:
		return o.text, true
	default:
		return o.b, true
	}
}

// comparable resolves the operand for comparisons. A bare word that names no
// context key compares as its own text, so {{userDecision}} == confirm works.
func (o operand) comparable(vars map[string]any) (any, bool) {
	v, ok := o.value(vars)
	if !ok && o.kind == opIdent {
		return o.text, true
	}
	return v, ok
}

func (o operand) String() string {
	switch o.kind {
	case opRef:
		return "{{" + o.text + "}}"
	case opString:
		return strconv.Quote(o.text)
	case opNumber:
		return strconv.FormatFloat(o.num, 'f', -1, 64)
	case opBool:
		return strconv.FormatBool(o.b)
	default:
		return o.text
	}
}

func join(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, sep)
}

func equal(l, r any) bool {
	if isScalar(l) && isScalar(r) {
		if ln, ok := Number(l); ok {
			if rn, ok := Number(r); ok {
				return ln == rn
			}
		}
	}
	return template.Text(l) == template.Text(r)
}

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return false
	default:
		return true
	}
}

// Truthy reports whether v counts as true: non-empty strings, non-zero numbers,
// non-empty slices and maps, and any other non-nil value. Structs are judged
// by their JSON object form, so a struct with no exported fields is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer:
		if rv.IsNil() {
			return false
		}
		if rv.Elem().Kind() == reflect.Struct {
			return structTruthy(v)
		}
		return true
	case reflect.Interface:
		return !rv.IsNil()
	case reflect.Struct:
		return structTruthy(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	default:
		return true
	}
}

func structTruthy(v any) bool {
	plain := template.Plain(v)
	if k := reflect.ValueOf(plain).Kind(); k == reflect.Struct || k == reflect.Pointer {
		// not JSON-encodable; a present value counts as true
		return true
	}
	return Truthy(plain)
}

// Number converts v for numeric comparison. Slices and maps count as their
// length; strings must parse as numbers; booleans are 1 or 0.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case interface{ Float() float64 }:
		return t.Float(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Struct:
		if m, ok := template.Plain(v).(map[string]any); ok {
			return float64(len(m)), true
		}
		return 0, false
	default:
		return 0, false
	}
}
