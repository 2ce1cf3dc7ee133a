package params

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/stitch/internal/logging"
)

// AttrNames are the placeholder attribute names the gatherer recognises.
type AttrNames struct {
	// Source names the fragment to include.
	Source string
	// Params holds the bulk JSON parameters.
	Params string
	// Prefix starts every per-parameter attribute.
	Prefix string
}

// DefaultAttrNames returns data-include, data-include-params and
// data-include-.
func DefaultAttrNames() AttrNames {
	return AttrNames{
		Source: "data-include",
		Params: "data-include-params",
		Prefix: "data-include-",
	}
}

// Gatherer builds the parameter set for one placeholder.
type Gatherer struct {
	names  AttrNames
	logger logging.Logger
}

// NewGatherer returns a gatherer for the given attribute names.
func NewGatherer(names AttrNames, logger logging.Logger) *Gatherer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gatherer{names: names, logger: logger.WithComponent("params")}
}

// Gather merges the query string of u, the bulk attribute and the
// per-parameter attributes, in that order of increasing precedence. A bulk
// attribute that cannot be parsed is logged and contributes nothing.
func (g *Gatherer) Gather(ctx context.Context, attrs []html.Attribute, u *url.URL) *Set {
	query := FromQuery(u)

	var bulk *Set
	if raw, ok := lookupAttr(attrs, g.names.Params); ok && raw != "" {
		parsed, err := ParseBulk(raw)
		if err != nil {
			fields := []interface{}{"attribute", g.names.Params}
			if u != nil {
				fields = append(fields, "url", u.String())
			}
			g.logger.Warn(ctx, err, "data-include-params is not valid JSON", fields...)
		}
		bulk = parsed
	}

	return Merge(query, bulk, g.attributeParams(attrs))
}

func (g *Gatherer) attributeParams(attrs []html.Attribute) *Set {
	s := NewSet()
	for _, a := range attrs {
		if a.Namespace != "" || a.Key == g.names.Source || a.Key == g.names.Params {
			continue
		}
		if !strings.HasPrefix(a.Key, g.names.Prefix) {
			continue
		}
		if key := a.Key[len(g.names.Prefix):]; key != "" {
			s.Set(key, String(a.Val))
		}
	}
	return s
}

func lookupAttr(attrs []html.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
