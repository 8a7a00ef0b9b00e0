package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/engine"
	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/progress"
	"github.com/rshade/healthbridge/internal/tui"
	"github.com/rshade/healthbridge/internal/uistate"
)

// ErrPermissionsNotGranted is returned when the store has not granted read access.
var ErrPermissionsNotGranted = errors.New("read access not granted; run 'healthbridge grant' first")

type exportOptions struct {
	endDate     string
	types       []string
	plain       bool
	progressURL string
	metricsFile string
	batchSize   int
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export health records to the active session's endpoint",
		Long: `Reads every selected record type from Jan 1 of the end date's year through the end
date, one week at a time, and uploads the records in chunks to the endpoint of the active
export session. Record types are uploaded concurrently. A chunk rejected with 403 triggers
one token refresh and one retry; other failed chunks are logged and skipped.`,
		Example: `  # Export everything up to today
  healthbridge export

  # Export two types up to a fixed date without the TUI
  healthbridge export --types HeartRateRecord,StepsRecord --end-date 2026-03-31 --plain

  # Relay progress to a beacon and keep the upload counters
  healthbridge export --progress-url http://127.0.0.1:8089/progress --metrics-file export.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.endDate, "end-date", "", "last day to export (YYYY-MM-DD, default today)")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "record types to export (default all)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print plain progress lines instead of the TUI")
	cmd.Flags().StringVar(&opts.progressURL, "progress-url", "", "endpoint receiving overall progress beacons")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write export counters in Prometheus text format to this file")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records per upload request (default from config)")

	return cmd
}

// exportJob holds everything one export run needs.
type exportJob struct {
	store    *healthstore.SQLStore
	cfg      *config.Config
	session  *export.Session
	exporter *export.Exporter
	types    []healthstore.RecordType
	opts     exportOptions
}

//nolint:funlen // Sequential wiring of the export pipeline.
func runExport(cmd *cobra.Command, opts exportOptions) error {
	cfg := config.GetGlobalConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endDate, err := parseEndDate(opts.endDate)
	if err != nil {
		return err
	}
	types, err := parseTypes(opts.types)
	if err != nil {
		return err
	}

	active, err := newActive(cfg)
	if err != nil {
		return err
	}
	session, err := active.Current(ctx)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	batchSize := cfg.Export.BatchSize
	if cmd.Flags().Changed("batch-size") {
		batchSize = opts.batchSize
	}
	registry := prometheus.NewRegistry()
	client := newHTTPClient(cfg)
	exporter, err := export.NewExporter(client,
		export.WithChunkSize(batchSize),
		export.WithMetrics(export.NewMetrics(registry)),
	)
	if err != nil {
		return err
	}

	job := &exportJob{
		store: store, cfg: cfg, session: session, exporter: exporter, types: types, opts: opts,
	}

	var listeners []progress.Option
	progressURL := opts.progressURL
	if progressURL == "" {
		progressURL = cfg.Export.ProgressURL
	}
	var beacon *progress.Beacon
	if progressURL != "" {
		beacon = progress.NewBeacon(client, progressURL, session.Config().OwnerIdentifier)
		listeners = append(listeners, progress.WithListener(beacon.Listener(ctx)))
	}

	var summary engine.Summary
	var result uistate.Result
	if !opts.plain && isTerminal(os.Stdout) {
		summary, result, err = job.runInteractive(ctx, cmd.OutOrStdout(), endDate, listeners)
	} else {
		summary, result, err = job.runPlain(ctx, cmd.OutOrStdout(), endDate, listeners)
	}
	if beacon != nil {
		beacon.Wait()
	}

	if persistErr := active.Persist(session); persistErr != nil {
		logger.Warn().Ctx(ctx).Err(persistErr).Msg("could not persist refreshed session")
	}
	if opts.metricsFile != "" {
		if writeErr := prometheus.WriteToTextfile(opts.metricsFile, registry); writeErr != nil {
			logger.Warn().Ctx(ctx).Err(writeErr).Str("path", opts.metricsFile).Msg("could not write metrics file")
		}
	}

	if err != nil {
		return err
	}
	notifier := uistate.NewNotifier(func(s uistate.State) {
		cmd.PrintErrf("Error [%s]: %v\n", s.ID, s.Err)
	})
	if notifier.Observe(result.State) {
		return fmt.Errorf("export failed (error %s): %w", result.State.ID, result.State.Err)
	}
	if !result.PermissionsGranted {
		return ErrPermissionsNotGranted
	}
	if opts.plain || !isTerminal(os.Stdout) {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return nil
}

// execute collects and exports under the permission check. onCollected runs
// between reading and uploading.
func (j *exportJob) execute(
	ctx context.Context,
	endDate time.Time,
	listeners []progress.Option,
	onCollected func([]engine.Batch),
) (engine.Summary, uistate.Result, error) {
	var summary engine.Summary
	perms := make([]healthstore.Permission, len(j.types))
	for i, t := range j.types {
		perms[i] = healthstore.ReadPermission(t)
	}

	result, err := uistate.TryWithPermissionsCheck(ctx, j.store, perms, func(ctx context.Context) error {
		batches, collectErr := engine.Collect(ctx, newReader(j.cfg, j.store), j.types, endDate,
			j.session.Config().OwnerIdentifier)
		if collectErr != nil {
			return collectErr
		}
		if onCollected != nil {
			onCollected(batches)
		}

		agg := progress.NewAggregator(listeners...)
		go agg.Run(ctx)
		defer agg.Stop()

		var runErr error
		summary, runErr = engine.Run(ctx, j.exporter, j.session, batches, agg)
		return runErr
	})
	return summary, result, err
}

func (j *exportJob) runPlain(
	ctx context.Context,
	out io.Writer,
	endDate time.Time,
	listeners []progress.Option,
) (engine.Summary, uistate.Result, error) {
	p := message.NewPrinter(language.English)
	last := -1
	listeners = append(listeners, progress.WithListener(func(s progress.Snapshot) {
		if pct := s.Percent(); pct != last {
			last = pct
			p.Fprintf(out, "%3d%% (%d/%d records)\n", pct, s.Completed, s.Total)
		}
	}))

	return j.execute(ctx, endDate, listeners, func(batches []engine.Batch) {
		total, requests := 0, 0
		for _, b := range batches {
			total += len(b.Records)
			requests += export.ChunkCount(len(b.Records), j.exporter.ChunkSize())
		}
		p.Fprintf(out, "Exporting %d records across %d record types in %d requests to %s\n",
			total, len(batches), requests, j.session.Config().PostEndpointBase)
	})
}

func (j *exportJob) runInteractive(
	ctx context.Context,
	out io.Writer,
	endDate time.Time,
	listeners []progress.Option,
) (engine.Summary, uistate.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewExportModel(cancel), tea.WithOutput(out), tea.WithContext(ctx))
	listeners = append(listeners, progress.WithListener(func(s progress.Snapshot) {
		program.Send(tui.ExportProgressMsg{Snapshot: s})
	}))

	type outcome struct {
		summary engine.Summary
		result  uistate.Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, result, err := j.execute(ctx, endDate, listeners, func(batches []engine.Batch) {
			records := 0
			for _, b := range batches {
				records += len(b.Records)
			}
			program.Send(tui.CollectedMsg{Types: len(batches), Records: records})
		})
		program.Send(tui.ExportDoneMsg{Summary: summary, Err: err})
		done <- outcome{summary: summary, result: result, err: err}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		o := <-done
		return o.summary, o.result, fmt.Errorf("running export UI: %w", err)
	}
	o := <-done
	return o.summary, o.result, o.err
}

func printSummary(out io.Writer, summary engine.Summary) {
	p := message.NewPrinter(language.English)
	p.Fprintf(out, "\n%-30s %10s %10s %8s\n", "Record type", "Records", "Exported", "Failed")
	for _, r := range summary.Results {
		p.Fprintf(out, "%-30s %10d %10d %8d\n", r.RecordType, r.Total, r.Completed, r.FailedChunks)
	}
	p.Fprintf(out, "\nExported %d of %d records in %v", summary.Completed, summary.Records,
		summary.Duration.Round(time.Millisecond))
	if summary.Refreshes > 0 {
		p.Fprintf(out, " (%d token refresh attempts)", summary.Refreshes)
	}
	p.Fprintln(out)
	if summary.Failed() {
		p.Fprintf(out, "Warning: %d chunk(s) failed to export, see the log for details\n", summary.FailedChunks)
	}
}
