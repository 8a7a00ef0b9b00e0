package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/healthstore"
)

const (
	defaultSeedDays      = 30
	defaultSamplesPerDay = 6
	maxSeedDays          = 3650
	defaultGeneratorSeed = 1
)

// NewSeedCmd creates the seed command, which fills the local store with demo data.
func NewSeedCmd() *cobra.Command {
	var (
		days    int
		samples int
		seed    uint64
		reset   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo health records in the local store",
		Long: `Generates sleep sessions, exercise sessions and point samples for every record type
with a plausible value range, covering the given number of days before today.`,
		Example: `  # Two months of data
  healthbridge seed --days 60

  # Replace existing data with a different random sequence
  healthbridge seed --reset --seed 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 || days > maxSeedDays {
				return fmt.Errorf("--days must be between 1 and %d, got %d", maxSeedDays, days)
			}
			if samples < 1 {
				return fmt.Errorf("--samples must be at least 1, got %d", samples)
			}
			return runSeed(cmd, days, samples, seed, reset)
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultSeedDays, "number of days of history to generate")
	cmd.Flags().IntVar(&samples, "samples", defaultSamplesPerDay, "point samples per day and type")
	cmd.Flags().Uint64Var(&seed, "seed", defaultGeneratorSeed, "random seed")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing records first")

	return cmd
}

func runSeed(cmd *cobra.Command, days, samples int, seed uint64, reset bool) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p := message.NewPrinter(language.English)
	if reset {
		var deleted int64
		for _, t := range healthstore.AllRecordTypes() {
			n, delErr := store.DeleteAll(ctx, t)
			if delErr != nil {
				return delErr
			}
			deleted += n
		}
		p.Fprintf(cmd.OutOrStdout(), "Deleted %d existing records\n", deleted)
	}

	records := healthstore.NewGenerator(seed).All(days, samples, time.Now())
	if err = store.Insert(ctx, records...); err != nil {
		return fmt.Errorf("inserting demo records: %w", err)
	}

	logger.Info().Ctx(ctx).Int("records", len(records)).Int("days", days).Msg("demo data generated")
	p.Fprintf(cmd.OutOrStdout(), "Generated %d records covering %d days\n", len(records), days)
	return nil
}
