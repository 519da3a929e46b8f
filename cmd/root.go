// Package cmd provides the command-line interface for assetkit.
//
// Configuration System:
//
//	The CLI reads configuration from several sources with clear precedence:
//	1. Command-line flags (--config, --mode, --log-level) - highest priority
//	2. ASSETKIT_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (ASSETKIT_MODE, ASSETKIT_CSS_DIST, ...)
//	4. Configuration files (.assetkit.yml) - lowest priority
//
// Before anything else .env.local and .env are loaded into the process
// environment. Variables that are already set are never overridden.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetkit",
	Short: "Incremental CSS and JavaScript asset pipeline",
	Long: `assetkit compiles stylesheet and script modules into optimized,
cache-busted static files. In development it watches the sources and
rebuilds exactly the modules an edit affects; in production it builds
everything once and exits.

Quick Start:
  assetkit build                  Build every module once
  assetkit watch                  Build, then rebuild on change
  assetkit manifest               Write dist/manifest.json
  assetkit size                   Check artifacts against size budgets
  assetkit config show            Print the effective configuration

Command Aliases:
  build (b), watch (w), manifest (m)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetkit.yml, can also use ASSETKIT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("mode", "", "build mode (development, production); overrides ASSETKIT_MODE")
	bindFlags(rootCmd.PersistentFlags(), "log-level", "mode")
}

// bindFlags binds each named flag to the viper key of the same name.
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// initConfig initializes the configuration system.
//
// Configuration file lookup (highest to lowest):
//  1. --config flag
//  2. ASSETKIT_CONFIG_FILE environment variable
//  3. .assetkit.yml in the current directory
//
// Keys known to viper can be overridden from the environment with the
// ASSETKIT_ prefix, dots replaced by underscores (ASSETKIT_MODE,
// ASSETKIT_CSS_DIST when css.dist is in the config file).
func initConfig() {
	if err := loadDotEnv(".env.local", ".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETKIT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetkit")
	}

	viper.SetEnvPrefix("ASSETKIT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadDotEnv loads each existing file in order. Earlier files win because
// godotenv never overrides variables that are already set.
func loadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}

	return nil
}
