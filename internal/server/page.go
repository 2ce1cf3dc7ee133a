package server

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/dom"
	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/fetch"
	"github.com/conneroisu/stitch/internal/include"
)

// handleSite renders HTML pages with their includes applied and serves every
// other file unchanged. ?raw=1 serves a page as stored.
func (s *PreviewServer) handleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, ok := s.pageFile(r.URL.Path)
	if !ok || r.URL.Query().Get("raw") == "1" {
		http.FileServer(s.site).ServeHTTP(w, r)
		return
	}

	body, err := s.renderPage(r.Context(), page, requestOrigin(r))
	if err != nil {
		s.logger.Error(r.Context(), err, "Page includes failed", "page", page)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusBadGateway)
		if rerr := errorOverlay(page, err).Render(r.Context(), w); rerr != nil {
			s.logger.Warn(r.Context(), rerr, "Failed to write error overlay")
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}

// pageFile maps a request path to the HTML file to render: the file itself
// for *.html, or index.html for a directory path ending in a slash.
func (s *PreviewServer) pageFile(requestPath string) (string, bool) {
	name := path.Clean("/" + requestPath)
	if strings.HasSuffix(requestPath, "/") {
		name = path.Join(name, "index.html")
	}
	if path.Ext(name) != ".html" {
		return "", false
	}

	f, err := s.site.Open(name)
	if err != nil {
		return "", false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return "", false
	}
	return name, true
}

// renderPage loads page from the site, runs one include pass over it, and
// returns the resulting HTML with the live-reload client appended. Page
// scripts are left for the browser.
func (s *PreviewServer) renderPage(ctx context.Context, page string, origin *url.URL) ([]byte, error) {
	f, err := s.site.Open(page)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to open page")
	}
	defer f.Close()

	pageURL := origin.ResolveReference(&url.URL{Path: page})
	doc, err := dom.Parse(f, dom.WithURL(pageURL), dom.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	engine, err := s.newEngine(origin)
	if err != nil {
		return nil, err
	}
	if err := engine.Include(ctx, doc, s.config.Include.Selector); err != nil {
		return nil, err
	}

	if err := doc.AppendHTML("body", liveReloadScript); err != nil {
		s.logger.Warn(ctx, err, "Live reload client not injected", "page", page)
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeInternalError, "failed to render page")
	}
	return buf.Bytes(), nil
}

// newEngine builds an include engine for a request served from origin.
// Sources resolve against site.base when set and against origin otherwise.
// URLs under origin are read straight from the site root.
func (s *PreviewServer) newEngine(origin *url.URL) (*include.Engine, error) {
	base := origin
	if s.config.Site.Base != "" {
		configured, err := s.config.BaseURL()
		if err != nil {
			return nil, err
		}
		base = configured
	}

	resolver, err := alias.NewResolver(s.config.Aliases, base)
	if err != nil {
		return nil, err
	}

	return include.New(include.Options{
		Resolver: resolver,
		Fetcher: &fetch.LocalFetcher{
			Base: origin,
			FS:   s.site,
			Next: s.remote,
		},
		Registry:       s.registry,
		Logger:         s.logger,
		Attrs:          s.config.AttrNames(),
		MaxConcurrency: s.config.Include.MaxConcurrency,
	})
}

func requestOrigin(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}
}
