package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func TestRenderFilePage(t *testing.T) {
	resetViper(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.html": `<html><head><script>
addEventListener("includes:ready", function (e) { console.log("ready count=" + e.detail.count); });
</script></head><body>` +
			`<div data-include="@ui/card.html" data-include-title="Hi &amp; welcome"></div></body></html>`,
		"components/ui/card.html": `<h2>{{ title | Untitled }}</h2><script>console.log("card script ran");</script>`,
	})
	viper.Set("site.root", root)
	renderNoScripts = false

	cmd, stdout, stderr := testCommand()
	require.NoError(t, runRender(cmd, []string{filepath.Join(root, "index.html")}))

	assert.Contains(t, stdout.String(), "<h2>Hi &amp; welcome</h2>")
	assert.NotContains(t, stdout.String(), "data-include=")
	assert.Contains(t, stderr.String(), "card script ran")
	assert.Contains(t, stderr.String(), "ready count=1")
}

func TestRenderNoScripts(t *testing.T) {
	resetViper(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.html": `<html><body><script>console.log("page script ran");</script>` +
			`<p data-include="part.html"></p></body></html>`,
		"part.html": `<b>part</b><script>console.log("part script ran");</script>`,
	})
	viper.Set("site.root", root)
	renderNoScripts = true
	t.Cleanup(func() { renderNoScripts = false })

	cmd, stdout, stderr := testCommand()
	require.NoError(t, runRender(cmd, []string{filepath.Join(root, "index.html")}))

	assert.Contains(t, stdout.String(), "<b>part</b>")
	assert.NotContains(t, stderr.String(), "script ran")
}

func TestRenderPageOutsideRoot(t *testing.T) {
	resetViper(t)
	site := t.TempDir()
	elsewhere := t.TempDir()
	writeFiles(t, elsewhere, map[string]string{
		"page.html":                       `<html><body><div data-include="@partials/footer.html"></div></body></html>`,
		"components/partials/footer.html": `<footer>bye</footer>`,
	})
	viper.Set("site.root", site)

	cmd, stdout, _ := testCommand()
	require.NoError(t, runRender(cmd, []string{filepath.Join(elsewhere, "page.html")}))
	assert.Contains(t, stdout.String(), "<footer>bye</footer>")
}

func TestRenderRemotePage(t *testing.T) {
	resetViper(t)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/index.html":
			_, _ = io.WriteString(w, `<html><body><nav data-include="nav.html?active=docs"></nav></body></html>`)
		case "/docs/nav.html":
			_, _ = io.WriteString(w, `<a class="{{ active }}">Docs</a>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer remote.Close()
	viper.Set("site.root", t.TempDir())

	cmd, stdout, _ := testCommand()
	require.NoError(t, runRender(cmd, []string{remote.URL + "/docs/index.html"}))
	assert.Contains(t, stdout.String(), `<a class="docs">Docs</a>`)
}

func TestRenderMissingFragmentFails(t *testing.T) {
	resetViper(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.html": `<html><body><div data-include="missing.html"></div></body></html>`,
	})
	viper.Set("site.root", root)

	cmd, stdout, _ := testCommand()
	err := runRender(cmd, []string{filepath.Join(root, "index.html")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load")
	assert.Empty(t, stdout.String())
}

func TestRenderMissingPage(t *testing.T) {
	resetViper(t)
	viper.Set("site.root", t.TempDir())

	cmd, _, _ := testCommand()
	err := runRender(cmd, []string{filepath.Join(t.TempDir(), "nope.html")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read page")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.html")
	require.NoError(t, os.WriteFile(path, []byte(`<h2>{{ title | Untitled }}</h2><p>{{ body }}</p>`), 0o644))

	t.Run("table", func(t *testing.T) {
		inspectFormat = "table"
		cmd, stdout, _ := testCommand()
		require.NoError(t, runInspect(cmd, []string{path}))

		lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, []string{"NAME", "DEFAULT"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"title", "Untitled"}, strings.Fields(lines[1]))
		assert.Equal(t, []string{"body", "-"}, strings.Fields(lines[2]))
	})

	t.Run("json", func(t *testing.T) {
		inspectFormat = "json"
		defer func() { inspectFormat = "table" }()
		cmd, stdout, _ := testCommand()
		require.NoError(t, runInspect(cmd, []string{path}))

		var tokens []tokenOutput
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &tokens))
		require.Len(t, tokens, 2)
		assert.Equal(t, tokenOutput{Name: "title", Default: "Untitled", HasDefault: true, Raw: "{{ title | Untitled }}"}, tokens[0])
		assert.Equal(t, "body", tokens[1].Name)
		assert.False(t, tokens[1].HasDefault)
	})

	t.Run("stdin", func(t *testing.T) {
		inspectFormat = "table"
		cmd, stdout, _ := testCommand()
		cmd.SetIn(strings.NewReader("no tokens here"))
		require.NoError(t, runInspect(cmd, []string{"-"}))
		assert.Equal(t, "No tokens found.\n", stdout.String())
	})

	t.Run("bad format", func(t *testing.T) {
		inspectFormat = "xml"
		defer func() { inspectFormat = "table" }()
		cmd, _, _ := testCommand()
		assert.Error(t, runInspect(cmd, []string{path}))
	})
}

func TestAliases(t *testing.T) {
	resetViper(t)
	viper.Set("site.base", "https://site.test/app")

	cmd, stdout, _ := testCommand()
	require.NoError(t, runAliases(cmd, nil))

	out := stdout.String()
	assert.Contains(t, out, "Base: https://site.test/app/")
	assert.Contains(t, out, "https://site.test/app/components/ui/")
	assert.Less(t, strings.Index(out, "@components/"), strings.Index(out, "@ui/"), "table order is kept")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(dir, "good.yml")
		require.NoError(t, os.WriteFile(path, []byte("site:\n  root: .\naliases:\n  \"@ui/\": \"ui/\"\n"), 0o644))
		configFile, configStrict = path, false
		defer func() { configFile = "" }()

		cmd, stdout, _ := testCommand()
		require.NoError(t, runConfigValidate(cmd, nil))
		assert.Contains(t, stdout.String(), "Configuration is valid.")
	})

	t.Run("warnings in strict mode", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(dir, "open.yml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n"), 0o644))
		configFile = path
		defer func() { configFile, configStrict = "", false }()

		cmd, stdout, _ := testCommand()
		require.NoError(t, runConfigValidate(cmd, nil))
		assert.Contains(t, stdout.String(), "Validation warnings")

		configStrict = true
		cmd, _, _ = testCommand()
		assert.Error(t, runConfigValidate(cmd, nil))
	})

	t.Run("invalid", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0o644))
		configFile = path
		defer func() { configFile = "" }()

		cmd, stdout, _ := testCommand()
		err := runConfigValidate(cmd, nil)
		require.Error(t, err)
		assert.Contains(t, stdout.String(), "server.port")
	})

	t.Run("missing file", func(t *testing.T) {
		resetViper(t)
		configFile = filepath.Join(dir, "missing.yml")
		defer func() { configFile = "" }()

		cmd, _, _ := testCommand()
		assert.Error(t, runConfigValidate(cmd, nil))
	})
}

func TestConfigShow(t *testing.T) {
	resetViper(t)
	viper.Set("server.port", 9090)

	t.Run("yaml", func(t *testing.T) {
		configFormat = "yaml"
		cmd, stdout, _ := testCommand()
		require.NoError(t, runConfigShow(cmd, nil))
		assert.Contains(t, stdout.String(), "port: 9090")
		assert.Contains(t, stdout.String(), "@ui/")
	})

	t.Run("json", func(t *testing.T) {
		configFormat = "json"
		defer func() { configFormat = "yaml" }()
		cmd, stdout, _ := testCommand()
		require.NoError(t, runConfigShow(cmd, nil))

		var shown map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &shown))
		assert.Contains(t, shown, "Server")
	})
}

func TestVersionCommand(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		versionFormat = "json"
		defer func() { versionFormat = "text" }()
		cmd, stdout, _ := testCommand()
		require.NoError(t, runVersionCommand(cmd, nil))

		var info map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &info))
		assert.Contains(t, info, "version")
		assert.True(t, strings.HasPrefix(info["user_agent"].(string), "stitch/"))
	})

	t.Run("text", func(t *testing.T) {
		versionFormat = "text"
		cmd, stdout, _ := testCommand()
		require.NoError(t, runVersionCommand(cmd, nil))
		assert.True(t, strings.HasPrefix(stdout.String(), "stitch "))
	})

	t.Run("unsupported", func(t *testing.T) {
		versionFormat = "xml"
		defer func() { versionFormat = "text" }()
		cmd, _, _ := testCommand()
		assert.Error(t, runVersionCommand(cmd, nil))
	})
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"render", "serve", "inspect", "aliases", "config", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestFlagNormalization(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log_level"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log.format"))
	assert.Equal(t, "log-level", string(wordSepNormalizeFunc(nil, "log_level")))
}
