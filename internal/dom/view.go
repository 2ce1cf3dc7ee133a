package dom

import (
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/conneroisu/stitch/internal/errors"
)

// Element is a read-only copy of an element, taken while the document was
// locked.
type Element struct {
	Node  *html.Node
	Tag   string
	Attrs []html.Attribute
	Text  string
}

// Attr returns the value of the named attribute.
func (e Element) Attr(key string) (string, bool) {
	return attrValue(e.Attrs, key)
}

// Query returns copies of the elements matching selector below root, or in
// the whole document when root is nil. A Query is only valid while the call
// that handed it out is running.
type Query func(root *html.Node, selector string) ([]Element, error)

// View calls fn with the document locked and a Query over it. fn must not
// call other Document methods.
func (d *Document) View(fn func(q Query)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.query)
}

// query expects d.mu to be held.
func (d *Document) query(root *html.Node, selector string) ([]Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, errors.NewResolutionError(errors.ErrCodeSelector, "invalid selector "+selector, err)
	}

	scope := d.root
	if root != nil {
		if !d.attached(root) {
			return nil, nil
		}
		scope = root
	}

	var out []Element
	for _, n := range sel.MatchAll(scope) {
		if n == root {
			continue
		}
		out = append(out, Element{
			Node:  n,
			Tag:   n.Data,
			Attrs: cloneAttrs(n.Attr),
			Text:  TextContent(n),
		})
	}
	return out, nil
}
