package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/config"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		Site:    config.SiteConfig{Root: root},
		Aliases: alias.DefaultTable(),
		Include: config.IncludeConfig{
			Selector:    "[data-include]",
			SourceAttr:  "data-include",
			ParamsAttr:  "data-include-params",
			ParamPrefix: "data-include-",
		},
		Scripts: config.ScriptsConfig{Enabled: true},
		Fetch:   config.FetchConfig{Timeout: 5 * time.Second, UserAgent: "stitch-test"},
		Server:  config.ServerConfig{Host: "localhost", Port: 8080},
		Watch: config.WatchConfig{
			Patterns: []string{"**/*.html"},
			Ignore:   []string{".git/**"},
			Debounce: 50 * time.Millisecond,
		},
		Log: config.LogConfig{Level: "error", Format: "text"},
	}
}

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestServer(t *testing.T, root string) (*PreviewServer, *httptest.Server) {
	t.Helper()
	s, err := New(testConfig(root), nil)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, srv
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func TestNew(t *testing.T) {
	cfg := testConfig(t.TempDir())

	s, err := New(cfg, nil)
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.Equal(t, cfg, s.config)
	assert.NotNil(t, s.clients)
	assert.NotNil(t, s.broadcast)
	assert.NotNil(t, s.register)
	assert.NotNil(t, s.unregister)
	assert.NotNil(t, s.registry)
	assert.NotNil(t, s.watcher)
	assert.NotNil(t, s.remote)
	assert.Same(t, s.registry, s.Registry())
}

func TestPageRendersIncludes(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html": `<!DOCTYPE html><html><head><title>Home</title></head><body>` +
			`<div data-include="@layout/header.html" data-include-title="Welcome"></div>` +
			`<main>content</main></body></html>`,
		"components/layout/header.html": `<header><h1>{{ title | Site }}</h1></header>`,
		"site.css":                      `body { color: red; }`,
	})
	_, srv := newTestServer(t, root)

	t.Run("rendered page", func(t *testing.T) {
		status, body, header := get(t, srv.URL+"/index.html")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, header.Get("Content-Type"), "text/html")
		assert.Contains(t, body, "<header><h1>Welcome</h1></header>")
		assert.NotContains(t, body, "data-include=")
		assert.Contains(t, body, "data-stitch-livereload")
	})

	t.Run("directory index", func(t *testing.T) {
		status, body, _ := get(t, srv.URL+"/")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "<h1>Welcome</h1>")
	})

	t.Run("raw page", func(t *testing.T) {
		status, body, _ := get(t, srv.URL+"/index.html?raw=1")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `data-include="@layout/header.html"`)
		assert.NotContains(t, body, "data-stitch-livereload")
	})

	t.Run("static file", func(t *testing.T) {
		status, body, _ := get(t, srv.URL+"/site.css")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "body { color: red; }", body)
	})

	t.Run("missing file", func(t *testing.T) {
		status, _, _ := get(t, srv.URL+"/missing.html")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/index.html", "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestPageWithFailedIncludeShowsOverlay(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html": `<html><body><div data-include="@ui/<missing>.html"></div></body></html>`,
	})
	_, srv := newTestServer(t, root)

	status, body, _ := get(t, srv.URL+"/index.html")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body, "Includes failed for /index.html")
	assert.Contains(t, body, "Failed to load")
	assert.Contains(t, body, "404")
	assert.NotContains(t, body, "<missing>", "error details are escaped")
	assert.Contains(t, body, "data-stitch-livereload")
}

func TestPageUsesConfiguredBase(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/components/ui/badge.html" {
			_, _ = io.WriteString(w, `<span class="badge">{{ label }}</span>`)
			return
		}
		http.NotFound(w, r)
	}))
	defer remote.Close()

	root := writeSite(t, map[string]string{
		"index.html": `<html><body><p data-include="@ui/badge.html" data-include-label="new"></p></body></html>`,
	})
	cfg := testConfig(root)
	cfg.Site.Base = remote.URL + "/"

	s, err := New(cfg, nil)
	require.NoError(t, err)
	defer s.Shutdown(context.Background())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	status, body, _ := get(t, srv.URL+"/index.html")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `<span class="badge">new</span>`)
}

func TestHandleHealth(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html": `<html><body><div data-include="part.html"></div></body></html>`,
		"part.html":  `<b>part</b>`,
	})
	s, srv := newTestServer(t, root)

	var health map[string]interface{}
	status, body, header := get(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(0), health["clients"])
	assert.Nil(t, health["last_run"])

	status, _, _ = get(t, srv.URL+"/index.html")
	require.Equal(t, http.StatusOK, status)

	_, body, _ = get(t, srv.URL+"/health")
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	lastRun, ok := health["last_run"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, s.Registry().Current().ID, lastRun["id"])
	assert.Equal(t, true, lastRun["settled"])

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddlewareCORS(t *testing.T) {
	s, err := New(testConfig(t.TempDir()), nil)
	require.NoError(t, err)
	defer s.Shutdown(context.Background())
	s.config.Server.AllowedOrigins = []string{"http://trusted.test"}

	handler := s.addMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://trusted.test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "http://trusted.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestShutdownIsIdempotent(t *testing.T) {
	s, err := New(testConfig(t.TempDir()), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)

	assert.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, s.Shutdown(context.Background()))
}
