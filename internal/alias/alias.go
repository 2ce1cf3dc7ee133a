// Package alias maps symbolic path prefixes such as "@ui/" to concrete base
// paths and resolves include sources into absolute, fetchable URLs.
//
// A Table is ordered: lookups take the first entry, in declaration order, whose
// prefix starts the path. Every prefix must end in "/" so that "@ui/" can
// never match "@uikit/button.html".
package alias

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/stitch/internal/errors"
)

// Entry is one prefix → base mapping.
type Entry struct {
	Prefix string `yaml:"prefix"`
	Base   string `yaml:"base"`
}

// Table is an ordered alias table.
type Table []Entry

// DefaultTable returns the aliases used when the configuration declares none.
func DefaultTable() Table {
	return Table{
		{Prefix: "@components/", Base: "components/"},
		{Prefix: "@layout/", Base: "components/layout/"},
		{Prefix: "@ui/", Base: "components/ui/"},
		{Prefix: "@sections/", Base: "components/sections/"},
		{Prefix: "@partials/", Base: "components/partials/"},
		{Prefix: "@forms/", Base: "components/forms/"},
		{Prefix: "@modals/", Base: "components/modals/"},
		{Prefix: "@assets/", Base: "assets/"},
	}
}

// Validate checks the prefix invariant and rejects duplicate prefixes.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i, e := range t {
		if e.Prefix == "" {
			return fmt.Errorf("alias %d: empty prefix", i)
		}
		if !strings.HasSuffix(e.Prefix, "/") {
			return fmt.Errorf("alias %q: prefix must end with \"/\"", e.Prefix)
		}
		if _, dup := seen[e.Prefix]; dup {
			return fmt.Errorf("alias %q: declared more than once", e.Prefix)
		}
		seen[e.Prefix] = struct{}{}
	}
	return nil
}

// Lookup returns the first entry whose prefix starts path and the remainder
// of path after that prefix.
func (t Table) Lookup(path string) (Entry, string, bool) {
	for _, e := range t {
		if strings.HasPrefix(path, e.Prefix) {
			return e, path[len(e.Prefix):], true
		}
	}
	return Entry{}, "", false
}

// UnmarshalYAML accepts either a mapping (prefix: base) or a sequence of
// {prefix, base} objects. Mapping order is kept as declaration order.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		table := make(Table, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var e Entry
			if err := node.Content[i].Decode(&e.Prefix); err != nil {
				return fmt.Errorf("line %d: alias prefix: %w", node.Content[i].Line, err)
			}
			if err := node.Content[i+1].Decode(&e.Base); err != nil {
				return fmt.Errorf("line %d: alias base: %w", node.Content[i+1].Line, err)
			}
			table = append(table, e)
		}
		*t = table
		return nil
	case yaml.SequenceNode:
		var entries []Entry
		if err := node.Decode(&entries); err != nil {
			return err
		}
		*t = entries
		return nil
	default:
		return fmt.Errorf("line %d: aliases must be a mapping or a list", node.Line)
	}
}

var absoluteURL = regexp.MustCompile(`^https?://`)

// literalPattern matches a quoted alias-looking token, e.g. "@assets/x.png"
// or '@assets/x.png'. The quote that opens a literal must close it.
var literalPattern = regexp.MustCompile(`"(@[-a-zA-Z0-9_/.]+/[^"']+)"|'(@[-a-zA-Z0-9_/.]+/[^"']+)'`)

// Resolver resolves include sources against an alias table and a module base
// URL. It is immutable and safe for concurrent use.
type Resolver struct {
	table Table
	base  *url.URL
}

// NewResolver validates table and returns a resolver rooted at base, which
// must be an absolute URL.
func NewResolver(table Table, base *url.URL) (*Resolver, error) {
	if base == nil || !base.IsAbs() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "alias base must be an absolute URL")
	}
	if err := table.Validate(); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid alias table")
	}
	copied := make(Table, len(table))
	copy(copied, table)
	b := *base
	return &Resolver{table: copied, base: &b}, nil
}

// Base returns a copy of the module base URL.
func (r *Resolver) Base() *url.URL {
	b := *r.base
	return &b
}

// Table returns a copy of the alias table.
func (r *Resolver) Table() Table {
	t := make(Table, len(r.table))
	copy(t, r.table)
	return t
}

// Resolve turns path into an absolute URL. http(s) URLs pass through; an
// aliased path has its prefix swapped for the alias base; anything else is
// resolved against the module base.
func (r *Resolver) Resolve(path string) (*url.URL, error) {
	if absoluteURL.MatchString(path) {
		u, err := url.Parse(path)
		if err != nil {
			return nil, errors.WrapResolution(err, path)
		}
		return u, nil
	}

	target := path
	if e, rest, ok := r.table.Lookup(path); ok {
		target = e.Base + rest
	}

	ref, err := url.Parse(target)
	if err != nil {
		return nil, errors.WrapResolution(err, path)
	}
	return r.base.ResolveReference(ref), nil
}

// RewriteLiterals replaces every quoted literal that starts with a known alias
// prefix with its resolved absolute URL, keeping the original quotes. Other
// literals are left as they are.
func (r *Resolver) RewriteLiterals(text string) string {
	if !strings.Contains(text, "@") {
		return text
	}
	return literalPattern.ReplaceAllStringFunc(text, func(match string) string {
		quote := match[:1]
		token := match[1 : len(match)-1]
		e, rest, ok := r.table.Lookup(token)
		if !ok {
			return match
		}
		ref, err := url.Parse(e.Base + rest)
		if err != nil {
			return match
		}
		return quote + r.base.ResolveReference(ref).String() + quote
	})
}
