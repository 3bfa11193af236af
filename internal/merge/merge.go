// Package merge resolves {{placeholder}} references against a render
// context. Substitution is single pass: resolved values are never scanned
// for further placeholders.
package merge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Context is the data a document is rendered with: nested buckets such as
// company, client, quotation, items and totals.
type Context map[string]any

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// aliases maps bucket names that address the same data.
var aliases = map[string]string{
	"customer": "client",
	"client":   "customer",
}

// Scope resolves placeholders for one render. The vocabulary table is
// computed once when the scope is created.
type Scope struct {
	root      map[string]any
	values    map[string]string
	defaults  map[string]string
	parent    *Scope
	formatter *Formatter
}

// NewScope creates a scope over ctx using the default formatter.
func NewScope(ctx Context) *Scope {
	return defaultFormatter.NewScope(ctx)
}

// NewScope creates a scope over ctx.
func (f *Formatter) NewScope(ctx Context) *Scope {
	s := &Scope{
		root:      map[string]any(ctx),
		formatter: f,
	}
	s.values, s.defaults = s.table(Vocabulary)
	return s
}

func (s *Scope) table(entries []Entry) (map[string]string, map[string]string) {
	values := make(map[string]string, len(entries))
	defaults := make(map[string]string)
	for _, e := range entries {
		if e.Default != "" {
			defaults[e.Name] = e.Default
		}
		raw, ok := s.walk(e.Path)
		if !ok {
			continue
		}
		if text, ok := s.format(raw, e.Kind); ok {
			values[e.Name] = text
		}
	}
	return values, defaults
}

// Lookup resolves a name or dotted path without applying defaults.
func (s *Scope) Lookup(name string) (string, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if v, ok := scope.values[name]; ok {
			return v, true
		}
		if raw, ok := scope.walk(name); ok {
			if text, ok := scope.format(raw, kindForPath(name)); ok {
				return text, true
			}
		}
	}
	return "", false
}

// Value resolves name, falling back to its documented default or "".
func (s *Scope) Value(name string) string {
	if v, ok := s.Lookup(name); ok {
		return v
	}
	for scope := s; scope != nil; scope = scope.parent {
		if d, ok := scope.defaults[name]; ok {
			return d
		}
	}
	return ""
}

// Merge substitutes every placeholder in text. Unknown names become their
// default or the empty string; nothing else in text changes.
func (s *Scope) Merge(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return s.Value(name)
	})
}

// Truthy reports whether path resolves to a value other than "", "false",
// "0" or "no".
func (s *Scope) Truthy(path string) bool {
	v, ok := s.Lookup(strings.TrimSpace(path))
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "no":
		return false
	}
	return true
}

// Items returns the items sequence of the context.
func (s *Scope) Items() []Context {
	raw, ok := s.walk("items")
	if !ok {
		return nil
	}
	var items []Context
	switch list := raw.(type) {
	case []any:
		for _, v := range list {
			if m, ok := asMap(v); ok {
				items = append(items, Context(m))
			}
		}
	case []map[string]any:
		for _, m := range list {
			items = append(items, Context(m))
		}
	case []Context:
		items = append(items, list...)
	}
	return items
}

// WithItem returns a child scope exposing item.* and the flat item_* names
// for the row at index i. Other names resolve through s.
func (s *Scope) WithItem(i int, item Context) *Scope {
	row := make(map[string]any, len(item)+1)
	for k, v := range item {
		row[k] = v
	}
	if _, ok := row["no"]; !ok {
		row["no"] = i + 1
	}
	child := &Scope{
		root:      map[string]any{"item": row},
		parent:    s,
		formatter: s.formatter,
	}
	child.values, child.defaults = child.table(ItemVocabulary)
	return child
}

// walk follows a dotted path through maps and slices. The first segment
// also tries its alias bucket.
func (s *Scope) walk(path string) (any, bool) {
	if s.root == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	if v, ok := walkSegments(s.root, segments); ok {
		return v, true
	}
	if alias, ok := aliases[segments[0]]; ok {
		aliased := append([]string{alias}, segments[1:]...)
		return walkSegments(s.root, aliased)
	}
	return nil, false
}

func walkSegments(root map[string]any, segments []string) (any, bool) {
	var cur any = root
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case Context:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		case []map[string]any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return map[string]any(m), true
	}
	return nil, false
}

// format renders a scalar. Maps and slices are not scalars and resolve to
// nothing.
func (s *Scope) format(v any, kind Kind) (string, bool) {
	f := s.formatter
	switch val := v.(type) {
	case string:
		if kind == KindDate {
			if t, ok := ParseDate(val); ok {
				return f.Date(t), true
			}
		}
		return val, true
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		return f.Date(val), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return "", false
		}
		return f.Date(*val), true
	case bool:
		return strconv.FormatBool(val), true
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return val.String(), true
		}
		return s.formatNumber(n, kind), true
	case float64:
		return s.formatNumber(val, kind), true
	case float32:
		return s.formatNumber(float64(val), kind), true
	case int:
		return s.formatNumber(float64(val), kind), true
	case int32:
		return s.formatNumber(float64(val), kind), true
	case int64:
		return s.formatNumber(float64(val), kind), true
	case uint:
		return s.formatNumber(float64(val), kind), true
	case uint64:
		return s.formatNumber(float64(val), kind), true
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}

func (s *Scope) formatNumber(v float64, kind Kind) string {
	if kind == KindCurrency {
		return s.formatter.Currency(v)
	}
	if kind == KindText && v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return s.formatter.Number(v)
}
