package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/params"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadFile(t *testing.T, body string) (*Config, error) {
	t.Helper()
	viper.Reset()
	viper.SetConfigFile(writeConfig(t, body))
	require.NoError(t, viper.ReadInConfig())
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", config.Site.Root)
	assert.Equal(t, "", config.Site.Base)
	assert.Equal(t, alias.DefaultTable(), config.Aliases)
	assert.Equal(t, "[data-include]", config.Include.Selector)
	assert.Equal(t, params.DefaultAttrNames(), config.AttrNames())
	assert.Equal(t, 0, config.Include.MaxConcurrency)
	assert.True(t, config.Scripts.Enabled)
	assert.Equal(t, 30*time.Second, config.Fetch.Timeout)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, []string{"**/*.html", "**/*.js", "**/*.css"}, config.Watch.Patterns)
	assert.Equal(t, []string{".git/**", "node_modules/**"}, config.Watch.Ignore)
	assert.Equal(t, 300*time.Millisecond, config.Watch.Debounce)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)

	base, err := config.BaseURL()
	require.NoError(t, err)
	assert.Equal(t, "file:///", base.String())
}

func TestLoadFromFile(t *testing.T) {
	config, err := loadFile(t, `
site:
  root: ./public
  base: https://example.com/app
aliases:
  "@Widgets/": "lib/widgets/"
  "@ui/": "shared/ui/"
  "@assets/": "static/"
include:
  max_concurrency: 4
scripts:
  enabled: false
fetch:
  timeout: 5s
server:
  port: 3000
  allowed_origins: ["https://example.com"]
watch:
  debounce: 1s
log:
  level: debug
  format: json
`)
	require.NoError(t, err)

	assert.Equal(t, "./public", config.Site.Root)
	assert.Equal(t, alias.Table{
		{Prefix: "@Widgets/", Base: "lib/widgets/"},
		{Prefix: "@ui/", Base: "shared/ui/"},
		{Prefix: "@assets/", Base: "static/"},
	}, config.Aliases, "aliases keep their case and declaration order")
	assert.Equal(t, 4, config.Include.MaxConcurrency)
	assert.False(t, config.Scripts.Enabled)
	assert.Equal(t, 5*time.Second, config.Fetch.Timeout)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, time.Second, config.Watch.Debounce)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)

	base, err := config.BaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/app/", base.String())
}

func TestLoadFileWithoutAliases(t *testing.T) {
	config, err := loadFile(t, "server:\n  port: 9000\n")
	require.NoError(t, err)
	assert.Equal(t, alias.DefaultTable(), config.Aliases)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"alias without slash", "aliases:\n  \"@ui\": \"components/ui/\"\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad host", "server:\n  host: \"local;host\"\n"},
		{"relative base", "site:\n  base: /app/\n"},
		{"same attrs", "include:\n  source_attr: data-x\n  params_attr: data-x\n"},
		{"negative concurrency", "include:\n  max_concurrency: -1\n"},
		{"zero timeout", "fetch:\n  timeout: 0s\n"},
		{"bad glob", "watch:\n  patterns: [\"[\"]\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := loadFile(t, tt.body)
			assert.Error(t, err)
			assert.Nil(t, config)
		})
	}
}

func TestLoadInvalidViperValue(t *testing.T) {
	viper.Reset()
	viper.Set("server.port", "invalid_port")

	config, err := Load()
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestValidateWarnings(t *testing.T) {
	viper.Reset()
	config, err := Load()
	require.NoError(t, err)

	config.Server.Host = "0.0.0.0"
	config.Server.Port = 80
	config.Server.AllowedOrigins = []string{"*"}

	result := Validate(config)
	assert.False(t, result.HasErrors())
	assert.True(t, result.HasWarnings())
	assert.Len(t, result.Warnings, 3)
	assert.Contains(t, result.String(), "server.port")
}

func TestValidateHostname(t *testing.T) {
	valid := []string{"localhost", "127.0.0.1", "::1", "example.com", "dev.local"}
	for _, h := range valid {
		assert.NoError(t, validateHostname(h), h)
	}
	invalid := []string{"a;b", "a b", "a..b", "$(x)"}
	for _, h := range invalid {
		assert.Error(t, validateHostname(h), h)
	}
}
