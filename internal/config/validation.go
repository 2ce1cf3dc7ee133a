package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/stitch/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Error joins the validation errors.
func (vr *ValidationResult) Error() string {
	msgs := make([]string, len(vr.Errors))
	for i := range vr.Errors {
		msgs[i] = vr.Errors[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// Validate checks every section of config.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateSite(&config.Site, result)
	if err := config.Aliases.Validate(); err != nil {
		result.addError("aliases", nil, err.Error(), `Every alias prefix must end with "/", e.g. "@ui/"`)
	}
	validateInclude(&config.Include, result)
	validateFetch(&config.Fetch, result)
	validateServer(&config.Server, result)
	validateWatch(&config.Watch, result)
	validateLog(&config.Log, result)

	return result
}

func validateSite(config *SiteConfig, result *ValidationResult) {
	if strings.TrimSpace(config.Root) == "" {
		result.addError("site.root", config.Root, "site root cannot be empty", "Use '.' to serve the working directory")
	}
	if config.Base != "" {
		c := Config{Site: *config}
		if _, err := c.BaseURL(); err != nil {
			result.addError("site.base", config.Base, err.Error(), "Use an absolute URL such as https://example.com/")
		}
	}
}

func validateInclude(config *IncludeConfig, result *ValidationResult) {
	if config.SourceAttr == "" {
		result.addError("include.source_attr", config.SourceAttr, "source attribute cannot be empty")
	}
	if config.ParamsAttr == "" {
		result.addError("include.params_attr", config.ParamsAttr, "params attribute cannot be empty")
	}
	if config.ParamPrefix == "" {
		result.addError("include.param_prefix", config.ParamPrefix, "param prefix cannot be empty")
	}
	if config.SourceAttr != "" && config.SourceAttr == config.ParamsAttr {
		result.addError("include.params_attr", config.ParamsAttr, "params attribute must differ from the source attribute")
	}
	if config.ParamPrefix != "" && config.ParamPrefix == config.SourceAttr {
		result.addError("include.param_prefix", config.ParamPrefix, "param prefix must differ from the source attribute",
			"Use the source attribute followed by '-', e.g. data-include-")
	}
	if config.MaxConcurrency < 0 {
		result.addError("include.max_concurrency", config.MaxConcurrency, "max concurrency cannot be negative",
			"Use 0 for no limit")
	}
}

func validateFetch(config *FetchConfig, result *ValidationResult) {
	if config.Timeout <= 0 {
		result.addError("fetch.timeout", config.Timeout, "fetch timeout must be positive")
	}
}

func validateServer(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port, fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Common development ports: 3000, 8080, 8000",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(), "Use 'localhost' for local development")
		} else if config.Host == "0.0.0.0" {
			result.addWarning("server.host", config.Host, "server will be reachable from other machines")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.addWarning("server.allowed_origins", origin, "wildcard origin accepts live-reload connections from any site")
		}
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	for _, p := range config.Patterns {
		if !doublestar.ValidatePattern(p) {
			result.addError("watch.patterns", p, "invalid glob pattern")
		}
	}
	for _, p := range config.Ignore {
		if !doublestar.ValidatePattern(p) {
			result.addError("watch.ignore", p, "invalid glob pattern")
		}
	}
	if config.Debounce < 0 {
		result.addError("watch.debounce", config.Debounce, "debounce cannot be negative")
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(), "Use one of debug, info, warn, error")
	}
	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, "unknown log format", "Use 'text' or 'json'")
	}
}

// validateHostname rejects hosts with shell metacharacters or whitespace.
func validateHostname(host string) error {
	if strings.ContainsAny(host, ";&|$`()<>\"'\\ \t\n") {
		return fmt.Errorf("host contains invalid characters: %q", host)
	}
	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid hostname: %q", host)
		}
	}
	return nil
}
