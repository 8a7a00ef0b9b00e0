package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/tui"
	"github.com/rshade/healthbridge/internal/uistate"
)

const defaultRecordLimit = 20

// NewRecordsCmd creates the records command, which shows what the store holds.
func NewRecordsCmd() *cobra.Command {
	var (
		endDate  string
		limit    int
		lastWeek bool
	)

	cmd := &cobra.Command{
		Use:   "records [type]",
		Short: "Show stored health records",
		Long: `Without arguments, lists every record type with its record count and access state.
With a record type, reads that type week by week from Jan 1 through --end-date and shows
the newest records. --last-week reads only the exercise sessions of the 7 days ending yesterday.`,
		Example: `  # Counts per record type
  healthbridge records

  # The 50 newest heart rate samples up to a date
  healthbridge records HeartRateRecord --limit 50 --end-date 2026-03-31

  # Last week's workouts
  healthbridge records ExerciseSessionRecord --last-week`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runRecordCounts(cmd)
			}
			return runRecordList(cmd, args[0], endDate, limit, lastWeek)
		},
	}

	cmd.Flags().StringVar(&endDate, "end-date", "", "last day to read (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&limit, "limit", defaultRecordLimit, "maximum number of records to show")
	cmd.Flags().BoolVar(&lastWeek, "last-week", false, "read the 7 days ending yesterday (ExerciseSessionRecord only)")

	return cmd
}

func runRecordCounts(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	granted, err := store.GrantedPermissions(ctx)
	if err != nil {
		return err
	}

	rows := make([]tui.TypeCount, 0, len(healthstore.AllRecordTypes()))
	total := 0
	for _, t := range healthstore.AllRecordTypes() {
		_, ok := granted[healthstore.ReadPermission(t)]
		rows = append(rows, tui.TypeCount{Type: t, Count: counts[t], Granted: ok || !cfg.Store.EnforcePermission})
		total += counts[t]
	}

	out := cmd.OutOrStdout()
	if isTerminal(os.Stdout) {
		fmt.Fprintln(out, tui.NewCountTable(rows).View())
	} else {
		printCounts(out, rows)
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(out, "\n%d records", total)
	if cfg.Store.Driver != config.StoreDriverPostgres {
		if info, statErr := os.Stat(cfg.Store.Path); statErr == nil {
			p.Fprintf(out, " in %s (%s)", cfg.Store.Path, humanize.Bytes(uint64(info.Size())))
		}
	}
	p.Fprintln(out)
	return nil
}

func printCounts(out io.Writer, rows []tui.TypeCount) {
	p := message.NewPrinter(language.English)
	for _, r := range rows {
		access := "denied"
		if r.Granted {
			access = "granted"
		}
		p.Fprintf(out, "%-32s %10d  %s\n", r.Type, r.Count, access)
	}
}

func runRecordList(cmd *cobra.Command, name, endDateFlag string, limit int, lastWeek bool) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	types, err := parseTypes([]string{name})
	if err != nil {
		return err
	}
	recordType := types[0]
	if lastWeek && recordType != healthstore.ExerciseSession {
		return fmt.Errorf("--last-week only applies to %s", healthstore.ExerciseSession)
	}
	endDate, err := parseEndDate(endDateFlag)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var records []healthstore.HealthRecord
	result, err := uistate.TryWithPermissionsCheck(ctx, store,
		[]healthstore.Permission{healthstore.ReadPermission(recordType)},
		func(ctx context.Context) error {
			var readErr error
			r := newReader(cfg, store)
			if lastWeek {
				records, readErr = r.ReadExerciseSessions(ctx, time.Now())
			} else {
				records, readErr = r.ReadRecordsByWeek(ctx, recordType, endDate)
			}
			return readErr
		})
	if err != nil {
		return err
	}
	notifier := uistate.NewNotifier(func(s uistate.State) {
		cmd.PrintErrf("Error [%s]: %v\n", s.ID, s.Err)
	})
	if notifier.Observe(result.State) {
		return fmt.Errorf("reading %s failed (error %s): %w", recordType, result.State.ID, result.State.Err)
	}
	if !result.PermissionsGranted {
		return ErrPermissionsNotGranted
	}

	slices.SortStableFunc(records, func(a, b healthstore.HealthRecord) int {
		return b.Start.Compare(a.Start)
	})
	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	out := cmd.OutOrStdout()
	if isTerminal(os.Stdout) {
		fmt.Fprintln(out, tui.NewRecordTable(shown, len(shown)+1).View())
	} else {
		for _, r := range shown {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
				r.Start.Local().Format("2006-01-02 15:04"), r.End.Local().Format("2006-01-02 15:04"),
				strconv.FormatFloat(r.Value, 'f', -1, 64), r.Unit)
		}
	}
	message.NewPrinter(language.English).Fprintf(out, "\nshowing %d of %d %s records\n",
		len(shown), len(records), recordType)
	return nil
}
