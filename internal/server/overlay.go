package server

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/templ"

	"github.com/conneroisu/stitch/internal/errors"
)

// errorOverlay renders the page shown when a page's includes fail. It
// carries the live-reload client so the page recovers once the broken
// fragment is fixed.
func errorOverlay(page string, err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		details := errors.GetErrorContext(err)
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if _, werr := io.WriteString(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Include failed</title>
<style>
body { font-family: ui-monospace, monospace; background: #1e1e1e; color: #eee; margin: 0; padding: 2rem; }
h1 { color: #ff6b6b; font-size: 1.4rem; }
pre { background: #2d2d2d; padding: 1rem; white-space: pre-wrap; }
td { padding: 0.2rem 1rem 0.2rem 0; vertical-align: top; }
</style>
</head>
<body>
`); werr != nil {
			return werr
		}

		if _, werr := fmt.Fprintf(w, "<h1>Includes failed for %s</h1>\n<pre>%s</pre>\n<table>\n",
			templ.EscapeString(page), templ.EscapeString(errors.FormatError(err))); werr != nil {
			return werr
		}
		for _, k := range keys {
			if _, werr := fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td></tr>\n",
				templ.EscapeString(k), templ.EscapeString(fmt.Sprint(details[k]))); werr != nil {
				return werr
			}
		}
		if _, werr := io.WriteString(w, "</table>\n"+liveReloadScript+"\n</body>\n</html>\n"); werr != nil {
			return werr
		}
		return nil
	})
}
