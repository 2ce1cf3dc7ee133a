// Package fragment installs rendered fragment text in place of a placeholder.
package fragment

import (
	"context"
	stderrors "errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/dom"
	"github.com/conneroisu/stitch/internal/logging"
)

// Installer splices fragments into a document.
type Installer struct {
	resolver *alias.Resolver
	logger   logging.Logger
}

// NewInstaller returns an installer. A nil resolver disables alias literal
// rewriting.
func NewInstaller(resolver *alias.Resolver, logger logging.Logger) *Installer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Installer{resolver: resolver, logger: logger.WithComponent("fragment")}
}

// Install rewrites alias literals in rendered, parses it inertly, rebuilds
// every script element so that it will run, and replaces placeholder with the
// result. A placeholder that is no longer attached yields dom.ErrDetached and
// leaves the document unchanged.
func (in *Installer) Install(ctx context.Context, doc *dom.Document, placeholder *html.Node, rendered string) error {
	text := rendered
	if in.resolver != nil {
		text = in.resolver.RewriteLiterals(text)
	}

	nodes, err := doc.ParseFragment(text)
	if err != nil {
		return err
	}
	nodes = Reactivate(nodes)

	if err := doc.ReplaceWith(ctx, placeholder, nodes); err != nil {
		if stderrors.Is(err, dom.ErrDetached) {
			in.logger.Debug(ctx, "Placeholder already replaced")
		}
		return err
	}
	return nil
}

// Reactivate replaces each script element in nodes, in document order, with
// a freshly built copy that carries the same attributes and text. The copies
// have never been started, so they run once connected. The returned slice
// holds the top-level nodes, with any top-level script swapped for its copy.
func Reactivate(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		for _, old := range dom.Scripts(n) {
			fresh := rebuild(old)
			if old == n {
				out[i] = fresh
				continue
			}
			old.Parent.InsertBefore(fresh, old)
			old.Parent.RemoveChild(old)
		}
	}
	return out
}

func rebuild(old *html.Node) *html.Node {
	fresh := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
	}
	if len(old.Attr) > 0 {
		fresh.Attr = make([]html.Attribute, len(old.Attr))
		copy(fresh.Attr, old.Attr)
	}
	if text := dom.TextContent(old); text != "" {
		fresh.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return fresh
}
