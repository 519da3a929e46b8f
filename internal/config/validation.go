package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
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

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("error: %s: %s\n", err.Field, err.Message))
		for _, suggestion := range err.Suggestions {
			builder.WriteString(fmt.Sprintf("  hint: %s\n", suggestion))
		}
	}
	for _, warning := range vr.Warnings {
		builder.WriteString(fmt.Sprintf("warning: %s: %s\n", warning.Field, warning.Message))
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg})
}

// Validate checks the whole configuration and reports every issue found.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	if config.Mode != ModeDevelopment && config.Mode != ModeProduction {
		result.addError("mode", config.Mode, "unknown build mode",
			"use \"development\" or \"production\" (ASSETKIT_MODE)")
	}
	validateDir("dist", config.Dist, result)

	validateKind("css", config.CSS.KindConfig, result)
	validateGlobs("css.purge", config.CSS.Purge, result)
	validateKind("js", config.JS.KindConfig, result)
	if config.CSS.MarkupPolicy == MarkupPolicyUtility && config.CSS.UtilityModule == "" {
		result.addError("css.utility_module", "", "utility markup policy needs a utility module")
	}
	if config.JS.MarkupPolicy == MarkupPolicyUtility && config.JS.UtilityModule == "" {
		result.addError("js.utility_module", "", "utility markup policy needs a utility module")
	}
	if config.CSS.UtilityCommand == "" && config.CSS.MarkupPolicy == MarkupPolicyUtility {
		result.addWarning("css.utility_command", "", "no utility generator configured, markup changes rebuild the utility module unchanged")
	}

	if config.Watch.Debounce < 0 {
		result.addError("watch.debounce", config.Watch.Debounce, "debounce must not be negative")
	}

	if config.Manifest.HashLength < 1 || config.Manifest.HashLength > 32 {
		result.addError("manifest.hash_length", config.Manifest.HashLength, "hash length must be between 1 and 32")
	}
	if strings.ContainsAny(config.Manifest.File, `/\`) {
		result.addError("manifest.file", config.Manifest.File, "manifest file is a bare filename written at dist")
	}
	for i, ext := range config.Manifest.Extensions {
		if ext == "" || strings.ContainsAny(ext, "*/{},") {
			result.addError(fmt.Sprintf("manifest.extensions[%d]", i), ext, "extension must be a bare suffix like \"css\"")
		}
	}

	for i, rule := range config.Size.Rules {
		field := fmt.Sprintf("size.rules[%d]", i)
		if rule.Pattern == "" {
			result.addError(field+".pattern", rule.Pattern, "size rule needs a pattern")
		} else if !doublestar.ValidatePattern(filepath.ToSlash(rule.Pattern)) {
			result.addError(field+".pattern", rule.Pattern, "malformed glob pattern")
		}
		if rule.Limit <= 0 {
			result.addError(field+".limit", rule.Limit, "size limit must be a positive number of KB")
		}
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		result.addError("server.port", config.Server.Port, "port is not in valid range 0-65535")
	}
	if strings.ContainsAny(config.Server.Host, ";&|$`()<>\"'\\ ") {
		result.addError("server.host", config.Server.Host, "host contains dangerous characters")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Log.Format, "log format must be text or json")
	}

	return result
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := Validate(config)
	if result.HasErrors() {
		return &result.Errors[0]
	}

	return nil
}

func validateKind(prefix string, kind KindConfig, result *ValidationResult) {
	if kind.IsEnabled() && len(kind.Modules) == 0 {
		result.addError(prefix+".modules", kind.Modules, "at least one module pattern is required")
	}
	validateGlobs(prefix+".modules", kind.Modules, result)
	validateGlobs(prefix+".watch", kind.Watch, result)
	validateDir(prefix+".dist", kind.Dist, result)

	if kind.ModuleMarker == "" {
		result.addError(prefix+".module_marker", "", "module marker must not be empty")
	}
	for _, marker := range kind.PartialMarkers {
		if marker == kind.ModuleMarker {
			result.addError(prefix+".partial_markers", marker, "partial marker collides with the module marker")
		}
	}

	switch kind.MarkupPolicy {
	case MarkupPolicyUtility, MarkupPolicyAll, MarkupPolicyNone:
	default:
		result.addError(prefix+".markup_policy", kind.MarkupPolicy, "unknown markup policy",
			"use one of: utility, all, none")
	}
}

func validateGlobs(field string, patterns []string, result *ValidationResult) {
	for i, pattern := range patterns {
		if err := validatePath(pattern); err != nil {
			result.addError(fmt.Sprintf("%s[%d]", field, i), pattern, err.Error())
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			result.addError(fmt.Sprintf("%s[%d]", field, i), pattern, "malformed glob pattern")
		}
	}
}

func validateDir(field, dir string, result *ValidationResult) {
	if dir == "" {
		result.addError(field, dir, "output directory must not be empty")
		return
	}
	if err := validatePath(dir); err != nil {
		result.addError(field, dir, err.Error())
	}
}

// validatePath validates a project-relative path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	for _, char := range []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"} {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
