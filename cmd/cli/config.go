package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/config"
)

var configOutput string

// configCmd represents the config command group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
	Long: `Show the effective configuration (defaults, file overlay, and
PORTWARDEN_* environment overrides applied) or validate a configuration
file without starting anything.`,
	Example: `  portwarden config show
  portwarden config show --output json
  portwarden config validate
  portwarden --config /etc/portwarden.yaml config validate`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run:   runConfigShow,
}

// configValidateCmd validates the configuration file.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configOutput, "output", "yaml", "output format: yaml or json")
}

func runConfigShow(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Never print credentials.
	cfg.Database.Password = redactIfSet(cfg.Database.Password)
	cfg.API.APIKey = redactIfSet(cfg.API.APIKey)
	cfg.Notifications.Telegram.Token = redactIfSet(cfg.Notifications.Telegram.Token)

	if configOutput == "json" {
		printJSON(cfg)
		return
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(data))
}

func runConfigValidate(_ *cobra.Command, _ []string) {
	path := getConfigFilePath()

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration is invalid: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration is invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid (%s)\n", path)
}

func redactIfSet(s string) string {
	if s == "" {
		return s
	}
	return "********"
}
