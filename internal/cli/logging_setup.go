package cli

import (
	"github.com/spf13/cobra"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/logging"
)

// effectiveLogging applies --debug on top of the configured logging section.
// Debug output always goes to stderr in console format.
func effectiveLogging(cmd *cobra.Command, cfg *config.Config) config.LoggingConfig {
	lc := cfg.Logging
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		lc = config.LoggingConfig{Level: "debug", Format: "console"}
	}
	return lc
}

// setupLogging builds the CLI logger, stores it and a trace ID in the command
// context, and logs where the command reads its records from.
func setupLogging(cmd *cobra.Command) logging.LogPathResult {
	cfg := config.GetGlobalConfig()
	lc := effectiveLogging(cmd, cfg)

	if lc.File != "" {
		if err := lc.EnsureDir(); err != nil {
			cmd.PrintErrf("Warning: could not create log directory: %v\n", err)
		}
	}

	result := logging.NewLoggerWithPath(lc.ToLoggingConfig())
	logger = logging.ComponentLogger(result.Logger, "cli")

	switch {
	case result.UsingFile:
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	case result.FallbackUsed:
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := logging.ContextWithTraceID(cmd.Context(), logging.GetOrGenerateTraceID(cmd.Context()))
	ctx = logger.WithContext(ctx)
	cmd.SetContext(ctx)

	event := logger.Debug().Ctx(ctx).
		Str("command", cmd.CommandPath()).
		Str("home", cfg.HomeDir).
		Str("store_driver", cfg.Store.Driver)
	if cfg.Store.Driver != config.StoreDriverPostgres {
		event = event.Str("store_path", cfg.Store.Path)
	}
	event.Msg("command started")

	return result
}

// cleanupLogging closes the log file, if one was opened.
func cleanupLogging(_ *cobra.Command, logResult *logging.LogPathResult) error {
	if logResult == nil {
		return nil
	}
	return logResult.Close()
}
