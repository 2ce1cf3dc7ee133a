// Package cmd provides the command-line interface for stitch.
//
// Configuration comes from, in order of precedence: command-line flags,
// STITCH_<SECTION>_<OPTION> environment variables, the config file (--config,
// then STITCH_CONFIG_FILE, then .stitch.yml in the working directory), and
// built-in defaults.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/stitch/internal/config"
	"github.com/conneroisu/stitch/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Client-side HTML fragment includes for static sites",
	Long: `stitch replaces placeholder elements in HTML pages with shared fragments,
the way the browser include runtime does it, so pages can be previewed,
rendered and checked from the command line.

A placeholder names its fragment with data-include and passes parameters
through data-include-params (JSON) or data-include-<name> attributes:

  <div data-include="@layout/header.html" data-include-title="Home"></div>

Quick Start:
  stitch serve                    Preview the site with includes and live reload
  stitch render index.html        Print a page with its includes applied
  stitch inspect header.html      List a fragment's tokens
  stitch aliases                  Show the alias table`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .stitch.yml, can also use STITCH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// wordSepNormalizeFunc accepts --log_level and --log.level for --log-level.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.NewReplacer("_", "-", ".", "-").Replace(name))
}

// initConfig points viper at the config file and enables STITCH_ environment
// overrides. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it describes.
// Logs go to the command's error stream so stdout stays clean for output.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "cli",
	})
	return cfg, logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
