package include

import (
	"net/url"

	"golang.org/x/net/html"
)

// Placeholder is an element selected for replacement by a fragment.
type Placeholder struct {
	Node   *html.Node
	Source string
	// URL is set once the source has been resolved.
	URL   *url.URL
	Attrs []html.Attribute
}

// newPlaceholder returns the placeholder for n, or false when n has no
// non-empty source attribute.
func newPlaceholder(n *html.Node, attrs []html.Attribute, sourceAttr string) (Placeholder, bool) {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == sourceAttr {
			if a.Val == "" {
				return Placeholder{}, false
			}
			return Placeholder{Node: n, Source: a.Val, Attrs: attrs}, true
		}
	}
	return Placeholder{}, false
}
