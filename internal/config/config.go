// Package config provides configuration management for stitch using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the STITCH_ prefix, and validation. It covers the site
// root and module base URL, the alias table, placeholder attribute names,
// the script host, the fragment fetcher, the preview server, the file
// watcher, and logging.
//
// Viper folds map keys to lower case and does not keep their order, so the
// alias table is read separately from the config file with yaml.v3.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/stitch/internal/alias"
	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/params"
)

// FileName is the default config file name, looked up in the working
// directory.
const FileName = ".stitch.yml"

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "STITCH"

type Config struct {
	Site    SiteConfig    `mapstructure:"site" yaml:"site"`
	Aliases alias.Table   `mapstructure:"-" yaml:"aliases"`
	Include IncludeConfig `mapstructure:"include" yaml:"include"`
	Scripts ScriptsConfig `mapstructure:"scripts" yaml:"scripts"`
	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type SiteConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
	// Base is the module base URL include sources resolve against. Empty
	// means file:/// over Root, or the server origin when serving.
	Base string `mapstructure:"base" yaml:"base"`
}

type IncludeConfig struct {
	Selector       string `mapstructure:"selector" yaml:"selector"`
	SourceAttr     string `mapstructure:"source_attr" yaml:"source_attr"`
	ParamsAttr     string `mapstructure:"params_attr" yaml:"params_attr"`
	ParamPrefix    string `mapstructure:"param_prefix" yaml:"param_prefix"`
	MaxConcurrency int    `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

type ScriptsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type WatchConfig struct {
	Patterns []string      `mapstructure:"patterns" yaml:"patterns"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default with the global viper instance.
func SetDefaults() {
	viper.SetDefault("site.root", ".")
	viper.SetDefault("site.base", "")
	viper.SetDefault("include.selector", "[data-include]")
	viper.SetDefault("include.source_attr", "data-include")
	viper.SetDefault("include.params_attr", "data-include-params")
	viper.SetDefault("include.param_prefix", "data-include-")
	viper.SetDefault("include.max_concurrency", 0)
	viper.SetDefault("scripts.enabled", true)
	viper.SetDefault("fetch.timeout", 30*time.Second)
	viper.SetDefault("fetch.user_agent", "")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{})
	viper.SetDefault("watch.patterns", []string{"**/*.html", "**/*.js", "**/*.css"})
	viper.SetDefault("watch.ignore", []string{".git/**", "node_modules/**"})
	viper.SetDefault("watch.debounce", 300*time.Millisecond)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Load builds the configuration from the global viper instance, reads the
// alias table from the config file in use, and validates the result.
func Load() (*Config, error) {
	config, err := Decode()
	if err != nil {
		return nil, err
	}
	result := Validate(config)
	if result.HasErrors() {
		return nil, errors.WrapConfig(result, errors.ErrCodeConfigInvalid, "invalid configuration")
	}
	return config, nil
}

// Decode is Load without validation.
func Decode() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// Slices set through flags or env arrive as a single string.
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	table, err := loadAliases(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	config.Aliases = table
	return &config, nil
}

// loadAliases reads the aliases mapping from path in declaration order. It
// returns the default table when path is empty or has no aliases key.
func loadAliases(path string) (alias.Table, error) {
	if path == "" {
		return alias.DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to read config file")
	}

	var doc struct {
		Aliases *alias.Table `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to parse aliases")
	}
	if doc.Aliases == nil {
		return alias.DefaultTable(), nil
	}
	return *doc.Aliases, nil
}

// AttrNames returns the placeholder attribute names.
func (c *Config) AttrNames() params.AttrNames {
	return params.AttrNames{
		Source: c.Include.SourceAttr,
		Params: c.Include.ParamsAttr,
		Prefix: c.Include.ParamPrefix,
	}
}

// BaseURL returns the module base URL. Without site.base it is file:///,
// which the fetcher maps onto the site root.
func (c *Config) BaseURL() (*url.URL, error) {
	raw := c.Site.Base
	if raw == "" {
		raw = "file:///"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid site.base")
	}
	if !u.IsAbs() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "site.base must be an absolute URL")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
