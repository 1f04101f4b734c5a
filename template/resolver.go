// Package template resolves {{variable}} references against an execution context.
//
// Resolution rules:
//   - a string that is exactly one reference yields the referenced value unconverted
//   - references embedded in other text are replaced by the value's text form
//   - slices and maps resolve element-wise, recursively
//   - a missing variable resolves to "" and logs a warning; resolution never fails
//
// Variable names are looked up as exact context keys first. Names containing
// '.' or '[' fall back to a JMESPath search over the context, so
// {{selectedListing.price}} and {{listings[0].name}} reach nested values.
package template

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/AltairaLabs/EdenKit/logger"
)

var (
	referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	exactPattern     = regexp.MustCompile(`^\s*\{\{\s*([^{}]+?)\s*\}\}\s*$`)
)

// Resolver substitutes context variables into template values.
// The zero value is ready to use.
type Resolver struct {
	// OnMissing, when set, is called for every reference that could not be resolved.
	OnMissing func(name string)
}

// NewResolver creates a new resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve resolves tmpl against vars. Strings, slices and maps are walked;
// every other value is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, tmpl any, vars map[string]any) any {
	switch t := tmpl.(type) {
	case string:
		return r.resolveString(ctx, t, vars)
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = r.Resolve(ctx, v, vars)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = r.resolveString(ctx, v, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = r.Resolve(ctx, v, vars)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = r.resolveString(ctx, v, vars)
		}
		return out
	default:
		return tmpl
	}
}

// ResolveMap resolves every value in m.
func (r *Resolver) ResolveMap(ctx context.Context, m map[string]any, vars map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := r.Resolve(ctx, m, vars).(map[string]any)
	return out
}

// ResolveText resolves s and always returns its text form, even for an exact reference.
func (r *Resolver) ResolveText(ctx context.Context, s string, vars map[string]any) string {
	return Text(r.resolveString(ctx, s, vars))
}

func (r *Resolver) resolveString(ctx context.Context, s string, vars map[string]any) any {
	if !strings.Contains(s, "{{") {
		return s
	}
	if m := exactPattern.FindStringSubmatch(s); m != nil {
		v, ok := Lookup(vars, m[1])
		if !ok {
			r.missing(ctx, m[1])
			return ""
		}
		return v
	}
	return referencePattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := referencePattern.FindStringSubmatch(ref)[1]
		v, ok := Lookup(vars, name)
		if !ok {
			r.missing(ctx, name)
			return ""
		}
		return Text(v)
	})
}

func (r *Resolver) missing(ctx context.Context, name string) {
	logger.WarnContext(ctx, "template variable not found", "variable", name)
	if r != nil && r.OnMissing != nil {
		r.OnMissing(name)
	}
}

// References returns the variable names referenced in s, in order of appearance.
func References(s string) []string {
	matches := referencePattern.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ExactReference reports whether s consists of exactly one reference, and returns its name.
func ExactReference(s string) (string, bool) {
	m := exactPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Lookup finds name in vars. An exact key wins; otherwise names containing
// '.' or '[' are evaluated as a JMESPath expression over the context.
func Lookup(vars map[string]any, name string) (any, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if v, ok := vars[name]; ok {
		return v, true
	}
	if !strings.ContainsAny(name, ".[") {
		return nil, false
	}
	root := name
	if i := strings.IndexAny(name, ".["); i >= 0 {
		root = name[:i]
	}
	rootVal, ok := vars[root]
	if !ok {
		return nil, false
	}
	data := map[string]any{root: Plain(rootVal)}
	v, err := jmespath.Search(name, data)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// Plain converts structs and other typed values into the map/slice/primitive
// shapes produced by encoding/json, so path expressions can walk them.
func Plain(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Text returns the natural text form of v: strings as-is, numbers without
// trailing zeros, nil as "", and structured values as canonical JSON.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	case time.Duration:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
