package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/logging"
)

// envFile is loaded from the working directory before configuration is read.
const envFile = ".env"

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the healthbridge CLI.
// It loads .env and the optional --config overlay, sets up logging, and wires
// the scan, export, records, seed, grant, sink and config subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:     "healthbridge",
		Short:   "Export local health records to a remote endpoint",
		Long:    "healthbridge: read health records week by week and export them in batches to an endpoint discovered from a QR code",
		Version: ver,
		Example: rootCmdExample,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				cmd.PrintErrf("Warning: could not load %s: %v\n", envFile, err)
			}

			overlay, _ := cmd.Flags().GetString("config")
			cfg, err := config.NewWithOverlay(overlay)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			config.SetGlobalConfig(cfg)

			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "YAML file whose sections replace those of config.yaml")
	cmd.AddCommand(
		NewScanCmd(), NewExportCmd(), NewRecordsCmd(), NewSeedCmd(),
		NewGrantCmd(), NewSinkCmd(), NewChangesCmd(), newConfigCmd(),
	)

	return cmd
}

const rootCmdExample = `  # Fill the local store with 60 days of demo data and grant read access
  healthbridge seed --days 60
  healthbridge grant --yes

  # Run a local receiving endpoint and write its QR code
  healthbridge sink --qr-out sink.png

  # Activate an export session from a QR code image or its URL
  healthbridge scan --qr-image sink.png
  healthbridge scan http://127.0.0.1:8089/config

  # Export everything up to today
  healthbridge export

  # Show what is stored
  healthbridge records
  healthbridge records HeartRateRecord --end-date 2026-03-31
  healthbridge records ExerciseSessionRecord --last-week`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigValidateCmd())
	return cmd
}
