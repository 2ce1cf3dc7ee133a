// Package params assembles the parameter set of one include placeholder.
//
// Parameters come from three sources, lowest precedence first: the query
// string of the resolved fragment URL, the bulk JSON attribute, and the
// individual per-parameter attributes. Merging is by exact key; the
// case-insensitive fallback applies only when a template token is looked up.
package params

import (
	"net/url"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Value is a parameter value. A Null value exists in the set but renders as
// the token default, the way a JSON null does in the browser helper.
type Value struct {
	Text string
	Null bool
}

// String returns a non-null value.
func String(s string) Value {
	return Value{Text: s}
}

// NullValue returns a null value.
func NullValue() Value {
	return Value{Null: true}
}

// Set is an insertion-ordered parameter mapping. Re-setting a key keeps its
// original position and replaces the value.
type Set struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{m: orderedmap.New[string, Value]()}
}

// Set stores v under key.
func (s *Set) Set(key string, v Value) {
	s.m.Set(key, v)
}

// Get returns the value stored under exactly key.
func (s *Set) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	return s.m.Get(key)
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.m.Len()
}

// Strings returns the non-null values as a plain map.
func (s *Set) Strings() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.Null {
			out[pair.Key] = pair.Value.Text
		}
	}
	return out
}

// Merge overlays layers from lowest to highest precedence. A later layer
// overwrites an earlier one only on an exact key match.
func Merge(layers ...*Set) *Set {
	out := NewSet()
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		for pair := layer.m.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	return out
}

// FromQuery returns the query parameters of u in query-string order. A
// repeated key keeps its first position and its last value.
func FromQuery(u *url.URL) *Set {
	s := NewSet()
	if u == nil || u.RawQuery == "" {
		return s
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		s.Set(unescapeQuery(k), String(unescapeQuery(v)))
	}
	return s
}

// unescapeQuery decodes form encoding one escape at a time. A malformed
// escape stays as written and the rest of the value is still decoded.
// Byte sequences that are not UTF-8 decode to U+FFFD.
func unescapeQuery(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+3 <= len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}
