// Package dom holds a live HTML document tree that fragments are spliced
// into.
//
// The tree is a golang.org/x/net/html node tree guarded by the Document's
// mutex. Parsing a fragment is inert: every script element it produces is
// marked as already started and will never run, the way scripts assigned
// through innerHTML never run in a browser. Only script elements that are
// created fresh and then connected to the document through ReplaceWith (or
// that were present when the page was loaded, through RunScripts) are
// executed, in document order, by the Document's ScriptRunner.
package dom

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/logging"
)

// ErrDetached is returned when the node to replace is no longer part of the
// document, for example because another include run replaced it first.
var ErrDetached = errors.NewDOMError(errors.ErrCodeDetached, "node is not attached to the document")

// Document is a live, mutable HTML document.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	url     *url.URL
	started map[*html.Node]struct{}
	runner  ScriptRunner
	logger  logging.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithURL sets the document URL used to resolve script src attributes.
func WithURL(u *url.URL) Option {
	return func(d *Document) {
		if u != nil {
			c := *u
			d.url = &c
		}
	}
}

// WithScriptRunner sets the runner that executes connected scripts. Without
// one, scripts are marked started but not run.
func WithScriptRunner(r ScriptRunner) Option {
	return func(d *Document) { d.runner = r }
}

// WithLogger sets the document logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l.WithComponent("dom")
		}
	}
}

// Parse parses a full HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "failed to parse document")
	}
	d := &Document{
		root:    root,
		started: make(map[*html.Node]struct{}),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ParseString parses a full HTML document from a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// URL returns a copy of the document URL, or nil.
func (d *Document) URL() *url.URL {
	if d.url == nil {
		return nil
	}
	c := *d.url
	return &c
}

// QueryAll returns the elements matching selector in document order.
func (d *Document) QueryAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, errors.NewResolutionError(errors.ErrCodeSelector, "invalid selector "+selector, err)
	}
	return d.Match(sel), nil
}

// Match returns the elements matched by sel in document order.
func (d *Document) Match(sel cascadia.Selector) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sel.MatchAll(d.root)
}

// Attrs returns a copy of n's attributes.
func (d *Document) Attrs(n *html.Node) []html.Attribute {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneAttrs(n.Attr)
}

// Attached reports whether n is connected to the document root.
func (d *Document) Attached(n *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached(n)
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// ParseFragment parses text in <template> context into detached nodes.
// Parsing has no side effects: every script element in the result is marked
// already started.
func (d *Document) ParseFragment(text string) ([]*html.Node, error) {
	tmpl := &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
	nodes, err := html.ParseFragment(strings.NewReader(text), tmpl)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to parse fragment", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range nodes {
		for _, c := range Scripts(n) {
			d.started[c] = struct{}{}
		}
	}
	return nodes, nil
}

// ReplaceWith replaces target with nodes as one operation, then runs every
// script element among the inserted nodes that has not started, in document
// order. nodes must be detached. A script failure is logged and does not
// undo the replacement.
func (d *Document) ReplaceWith(ctx context.Context, target *html.Node, nodes []*html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if target == d.root || !d.attached(target) {
		return ErrDetached
	}

	parent := target.Parent
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.InsertBefore(n, target)
	}
	parent.RemoveChild(target)

	var pending []*html.Node
	for _, n := range nodes {
		pending = append(pending, Scripts(n)...)
	}
	d.runScripts(ctx, pending)
	return nil
}

// AppendHTML parses text inertly and appends it to the first element matching
// selector. Scripts in text are not run.
func (d *Document) AppendHTML(selector, text string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return errors.NewResolutionError(errors.ErrCodeSelector, "invalid selector "+selector, err)
	}
	nodes, err := d.ParseFragment(text)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	parent := sel.MatchFirst(d.root)
	if parent == nil {
		return errors.NewDOMError(errors.ErrCodeDetached, "no element matches "+selector)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// RunScripts runs every connected script element that has not started, in
// document order. It is how a loaded page runs its own scripts.
func (d *Document) RunScripts(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.runScripts(ctx, Scripts(d.root))
}

func (d *Document) runScripts(ctx context.Context, nodes []*html.Node) {
	for _, n := range nodes {
		if _, ok := d.started[n]; ok {
			continue
		}
		if !d.attached(n) {
			continue
		}
		d.started[n] = struct{}{}
		if d.runner == nil {
			continue
		}

		script, err := d.snapshot(n)
		if err != nil {
			d.logger.Warn(ctx, err, "Skipping script with invalid src")
			continue
		}
		if err := d.runner.RunScript(ctx, script); err != nil {
			fields := []interface{}{"kind", script.Kind().String()}
			if script.Src != nil {
				fields = append(fields, "src", script.Src.String())
			}
			d.logger.Warn(ctx, err, "Script execution failed", fields...)
		}
	}
}

func (d *Document) snapshot(n *html.Node) (Script, error) {
	s := Script{
		Attrs: cloneAttrs(n.Attr),
		Text:  TextContent(n),
		Query: d.query,
	}
	s.Type, _ = attrValue(n.Attr, "type")
	if src, ok := attrValue(n.Attr, "src"); ok && strings.TrimSpace(src) != "" {
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return s, err
		}
		if d.url != nil {
			ref = d.url.ResolveReference(ref)
		}
		s.Src = ref
	}
	return s, nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, or returns "" if rendering fails.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// OuterHTML renders a single node.
func (d *Document) OuterHTML(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// Scripts returns n and its descendants that are script elements, in
// document order. Contents of nested <template> elements are inert and are
// not searched.
func Scripts(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsScript(n) {
			out = append(out, n)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Template {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
