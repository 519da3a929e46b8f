// Package config provides configuration management for assetkit using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is built once at process start and handed to every
// component explicitly. It describes, per asset kind, where modules live,
// which globs are watched and where artifacts go, plus the manifest, size
// budget, dev server and logging settings. Environment overrides use the
// ASSETKIT_ prefix (ASSETKIT_MODE=development selects development mode).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Build modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Markup policies applied when a watched non-source file changes.
const (
	MarkupPolicyUtility = "utility"
	MarkupPolicyAll     = "all"
	MarkupPolicyNone    = "none"
)

type Config struct {
	Mode     string           `mapstructure:"mode" yaml:"mode" json:"mode"`
	Dist     string           `mapstructure:"dist" yaml:"dist" json:"dist"`
	CSS      StylesheetConfig `mapstructure:"css" yaml:"css" json:"css"`
	JS       ScriptConfig     `mapstructure:"js" yaml:"js" json:"js"`
	Watch    WatchConfig      `mapstructure:"watch" yaml:"watch" json:"watch"`
	Manifest ManifestConfig   `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
	Size     SizeConfig       `mapstructure:"size" yaml:"size" json:"size"`
	Server   ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Log      LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
}

// KindConfig holds the settings shared by every asset kind.
type KindConfig struct {
	Enabled        *bool    `mapstructure:"enabled" yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Modules        []string `mapstructure:"modules" yaml:"modules" json:"modules"`
	Watch          []string `mapstructure:"watch" yaml:"watch" json:"watch"`
	Dist           string   `mapstructure:"dist" yaml:"dist" json:"dist"`
	ModuleMarker   string   `mapstructure:"module_marker" yaml:"module_marker" json:"module_marker"`
	PartialMarkers []string `mapstructure:"partial_markers" yaml:"partial_markers" json:"partial_markers"`
	MarkupPolicy   string   `mapstructure:"markup_policy" yaml:"markup_policy" json:"markup_policy"`
	UtilityModule  string   `mapstructure:"utility_module" yaml:"utility_module,omitempty" json:"utility_module,omitempty"`
}

// IsEnabled reports whether the kind takes part in builds; unset means yes.
func (k KindConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}

type StylesheetConfig struct {
	KindConfig     `mapstructure:",squash" yaml:",inline"`
	Purge          []string `mapstructure:"purge" yaml:"purge" json:"purge"`
	Safelist       []string `mapstructure:"safelist" yaml:"safelist,omitempty" json:"safelist,omitempty"`
	Browsers       []string `mapstructure:"browsers" yaml:"browsers" json:"browsers"`
	UtilityCommand string   `mapstructure:"utility_command" yaml:"utility_command,omitempty" json:"utility_command,omitempty"`
	UtilityConfig  string   `mapstructure:"utility_config" yaml:"utility_config,omitempty" json:"utility_config,omitempty"`
	SassCommand    string   `mapstructure:"sass_command" yaml:"sass_command" json:"sass_command"`
}

type ScriptConfig struct {
	KindConfig `mapstructure:",squash" yaml:",inline"`
	Targets    []string `mapstructure:"targets" yaml:"targets" json:"targets"`
	Legacy     bool     `mapstructure:"legacy" yaml:"legacy" json:"legacy"`
}

type WatchConfig struct {
	Debounce        time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	ReadConcurrency int           `mapstructure:"read_concurrency" yaml:"read_concurrency" json:"read_concurrency"`
}

type ManifestConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	HashLength int      `mapstructure:"hash_length" yaml:"hash_length" json:"hash_length"`
	File       string   `mapstructure:"file" yaml:"file" json:"file"`
}

type SizeRule struct {
	Pattern string  `mapstructure:"pattern" yaml:"pattern" json:"pattern"`
	Limit   float64 `mapstructure:"limit" yaml:"limit" json:"limit"`
}

type SizeConfig struct {
	Rules      []SizeRule `mapstructure:"rules" yaml:"rules" json:"rules"`
	FailOnOver bool       `mapstructure:"fail_on_over" yaml:"fail_on_over" json:"fail_on_over"`
}

type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// IsDevelopment reports whether the development mode is selected.
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}

// Load unmarshals the global viper state into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v into a validated Config with defaults applied.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// log-level is bound as a root flag outside the log section
	if v.IsSet("log-level") && !v.IsSet("log.level") {
		config.Log.Level = v.GetString("log-level")
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when nothing is configured. It
// mirrors the conventional src/ → static/dist layout.
func Default() *Config {
	var config Config
	applyDefaults(&config)

	return &config
}

func applyDefaults(config *Config) {
	if config.Mode == "" {
		config.Mode = ModeProduction
	}
	if config.Dist == "" {
		config.Dist = "static/dist"
	}

	css := &config.CSS
	if len(css.Modules) == 0 {
		css.Modules = []string{"src/css/modules/*.css", "src/css/modules/*.scss"}
	}
	if len(css.Watch) == 0 {
		css.Watch = []string{"src/css/**/*.{css,scss}", "static/*.{html,twig}"}
	}
	if css.Dist == "" {
		css.Dist = config.Dist + "/css"
	}
	if css.ModuleMarker == "" {
		css.ModuleMarker = "modules"
	}
	if css.PartialMarkers == nil {
		css.PartialMarkers = []string{"partials"}
	}
	if css.MarkupPolicy == "" {
		css.MarkupPolicy = MarkupPolicyUtility
	}
	if css.UtilityModule == "" {
		css.UtilityModule = "src/css/modules/utility.css"
	}
	if len(css.Purge) == 0 {
		css.Purge = []string{"static/**/*.{html,twig}", "src/js/**/*.{js,mjs,jsx,ts,tsx}"}
	}
	if len(css.Browsers) == 0 {
		css.Browsers = []string{"chrome58", "firefox57", "safari11", "edge16"}
	}
	if css.SassCommand == "" {
		css.SassCommand = "sass"
	}

	js := &config.JS
	if len(js.Modules) == 0 {
		js.Modules = []string{"src/js/modules/*.js"}
	}
	if len(js.Watch) == 0 {
		js.Watch = []string{"src/js/**/*.{js,mjs,jsx,ts,tsx}"}
	}
	if js.Dist == "" {
		js.Dist = config.Dist + "/js"
	}
	if js.ModuleMarker == "" {
		js.ModuleMarker = "modules"
	}
	if js.MarkupPolicy == "" {
		js.MarkupPolicy = MarkupPolicyNone
	}
	if len(js.Targets) == 0 {
		js.Targets = []string{"chrome56", "firefox51", "safari11", "edge16"}
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 50 * time.Millisecond
	}
	if config.Watch.ReadConcurrency <= 0 {
		config.Watch.ReadConcurrency = 8
	}

	if len(config.Manifest.Extensions) == 0 {
		config.Manifest.Extensions = []string{"jpg", "png", "js", "css", "svg"}
	}
	if config.Manifest.HashLength == 0 {
		config.Manifest.HashLength = 10
	}
	if config.Manifest.File == "" {
		config.Manifest.File = "manifest.json"
	}

	if len(config.Size.Rules) == 0 {
		config.Size.Rules = []SizeRule{
			{Pattern: config.Dist + "/**/*.js", Limit: 20},
			{Pattern: config.Dist + "/**/*.css", Limit: 15},
		}
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 35729
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}
