package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/stitch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect stitch configuration",
	Long: `Validate the configuration file or show the resolved configuration.

Examples:
  stitch config validate                    # Validate .stitch.yml
  stitch config validate --file site.yml    # Validate a specific file
  stitch config show --format json          # Show resolved configuration`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a stitch configuration file.

This command checks:
- The site root and module base URL
- Alias prefixes (each must end in "/" and appear once)
- Placeholder attribute names and the parameter prefix
- Fetch timeout, server address and watch patterns
- Log level and format

Warnings cover settings that work but are risky, such as binding to
0.0.0.0. Use --strict to treat them as errors.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after defaults, the config file, environment
variables and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var (
	configFile   string
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().
		StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default: "+config.FileName+")")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file: %w", err)
		}
	}
	target := viper.ConfigFileUsed()
	if target == "" {
		return fmt.Errorf("no configuration file found; use --file or create %s", config.FileName)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating configuration file: %s\n", target)

	cfg, err := config.Decode()
	if err != nil {
		return err
	}

	result := config.Validate(cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}

	fmt.Fprint(out, result.String())

	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
	}

	fmt.Fprintf(out, "Configuration is valid with %d warnings. Use --strict to treat warnings as errors.\n",
		len(result.Warnings))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "yaml", "yml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return err
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}
