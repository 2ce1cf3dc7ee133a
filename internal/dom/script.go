package dom

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ScriptKind says how a script element is treated when it is connected.
type ScriptKind int

const (
	// ScriptClassic is a classic script: no type, or a JavaScript MIME type.
	ScriptClassic ScriptKind = iota
	// ScriptModule is type="module".
	ScriptModule
	// ScriptData is any other type; browsers never execute these.
	ScriptData
)

// String returns the string representation of the ScriptKind
func (k ScriptKind) String() string {
	switch k {
	case ScriptClassic:
		return "classic"
	case ScriptModule:
		return "module"
	default:
		return "data"
	}
}

var javascriptTypes = map[string]struct{}{
	"application/ecmascript":   {},
	"application/javascript":   {},
	"application/x-ecmascript": {},
	"application/x-javascript": {},
	"text/ecmascript":          {},
	"text/javascript":          {},
	"text/javascript1.0":       {},
	"text/javascript1.1":       {},
	"text/javascript1.2":       {},
	"text/javascript1.3":       {},
	"text/javascript1.4":       {},
	"text/javascript1.5":       {},
	"text/jscript":             {},
	"text/livescript":          {},
	"text/x-ecmascript":        {},
	"text/x-javascript":        {},
}

// Script is a snapshot of a script element handed to a ScriptRunner.
type Script struct {
	Attrs []html.Attribute
	// Text is the inline source.
	Text string
	// Src is the resolved src attribute, nil for inline scripts.
	Src *url.URL
	// Type is the raw type attribute.
	Type string
	// Query looks up elements of the document the script runs in. It is nil
	// for scripts run outside a document and is valid only during RunScript.
	Query Query
}

// Kind classifies the script by its type attribute.
func (s Script) Kind() ScriptKind {
	t := strings.ToLower(strings.TrimSpace(s.Type))
	if t == "" {
		return ScriptClassic
	}
	if t == "module" {
		return ScriptModule
	}
	if mime, _, _ := strings.Cut(t, ";"); mime != "" {
		if _, ok := javascriptTypes[strings.TrimSpace(mime)]; ok {
			return ScriptClassic
		}
	}
	return ScriptData
}

// Attr returns the value of the named attribute.
func (s Script) Attr(key string) (string, bool) {
	return attrValue(s.Attrs, key)
}

// ScriptRunner executes scripts as they become connected to a Document.
type ScriptRunner interface {
	RunScript(ctx context.Context, s Script) error
}

// ScriptRunnerFunc adapts a function to ScriptRunner.
type ScriptRunnerFunc func(ctx context.Context, s Script) error

// RunScript calls f.
func (f ScriptRunnerFunc) RunScript(ctx context.Context, s Script) error {
	return f(ctx, s)
}

// IsScript reports whether n is an HTML script element.
func IsScript(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == atom.Script && n.Namespace == ""
}

// TextContent concatenates the text of every descendant text node.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attrValue(attrs []html.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func cloneAttrs(attrs []html.Attribute) []html.Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]html.Attribute, len(attrs))
	copy(out, attrs)
	return out
}
