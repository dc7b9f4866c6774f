package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veildb/veildb/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Server port:      %d\n", cfg.Server.Port)
		fmt.Printf("  State path:       %s\n", cfg.Store.Path)
		fmt.Printf("  Log level:        %s\n", cfg.Logging.Level)
		fmt.Printf("  Log directory:    %s\n", cfg.Logging.Directory)
		fmt.Printf("  Production:       %t\n", cfg.Production)
		if cfg.Cohorts.ConnectionString != "" {
			fmt.Printf("  Cohort store:     %s\n", maskSecret(cfg.Cohorts.ConnectionString))
			fmt.Printf("  Cohort database:  %s\n", cfg.Cohorts.Database)
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var errors []string
		if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
			errors = append(errors, "server.port must be between 1 and 65535")
		}
		switch cfg.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			errors = append(errors, "logging.level must be one of debug, info, warn, error")
		}
		if cfg.Cohorts.ConnectionString != "" && cfg.Cohorts.Database == "" {
			errors = append(errors, "cohorts.database is required when cohorts.connection_string is set")
		}

		if len(errors) > 0 {
			fmt.Println("Validation errors:")
			for _, e := range errors {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errors))
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
