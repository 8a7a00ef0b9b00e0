package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/healthbridge/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration: config.yaml, the --config overlay and
environment overrides. Batch size, timeouts, reader backoff, session TTL and the store
settings are checked.`,
		Example: `  # Validate current configuration
  healthbridge config validate

  # Validate and show detailed information
  healthbridge config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose bool) error {
	cfg := config.GetGlobalConfig()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	cmd.Printf("  Store driver: %s\n", cfg.Store.Driver)
	if cfg.Store.Driver == config.StoreDriverPostgres {
		cmd.Println("  Store DSN: (set)")
	} else {
		cmd.Printf("  Store path: %s\n", cfg.Store.Path)
	}
	cmd.Printf("  Enforce permissions: %t\n", cfg.Store.EnforcePermission)
	cmd.Printf("  Batch size: %d\n", cfg.Export.BatchSize)
	cmd.Printf("  Request timeout: %ds\n", cfg.Export.RequestTimeoutSeconds)
	if cfg.Export.ProgressURL != "" {
		cmd.Printf("  Progress URL: %s\n", cfg.Export.ProgressURL)
	}
	cmd.Printf("  Reader attempts: %d (backoff %dms..%dms)\n",
		cfg.Reader.MaxAttempts, cfg.Reader.BackoffMillis, cfg.Reader.MaxBackoffMillis)
	cmd.Printf("  Session TTL: %ds\n", cfg.Discovery.SessionTTLSeconds)
	cmd.Printf("  Sink address: %s\n", cfg.Sink.Addr)
}
