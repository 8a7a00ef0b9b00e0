package engine

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rshade/healthbridge/internal/export"
	"github.com/rshade/healthbridge/internal/logging"
	"github.com/rshade/healthbridge/internal/progress"
)

// Summary is the outcome of one export session.
type Summary struct {
	SessionID    string
	Results      []export.Result
	Records      int
	Completed    int
	FailedChunks int
	Refreshes    int
	Duration     time.Duration
}

// Failed reports whether any chunk was abandoned.
func (s Summary) Failed() bool {
	return s.FailedChunks > 0
}

// Run exports every non-empty batch concurrently within session.
//
// Each record type gets its own goroutine in one errgroup; cancelling ctx
// cancels every in-flight upload. Totals are registered with agg before any
// upload starts, so the aggregated total is known from the first update. agg
// may be nil. The returned error is non-nil only when ctx was cancelled.
func Run(
	ctx context.Context,
	exp *export.Exporter,
	session *export.Session,
	batches []Batch,
	agg *progress.Aggregator,
) (Summary, error) {
	logger := logging.FromContext(ctx).With().
		Str("component", "engine").
		Str("operation", "Run").
		Str("session_id", session.ID()).
		Logger()

	start := time.Now()
	summary := Summary{SessionID: session.ID()}

	pending := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if len(b.Records) == 0 {
			continue
		}
		pending = append(pending, b)
		summary.Records += len(b.Records)
		if agg != nil {
			agg.Register(b.Name, len(b.Records))
		}
	}

	logger.Info().Ctx(ctx).Int("types", len(pending)).Int("records", summary.Records).Msg("export started")

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for _, b := range pending {
		g.Go(func() error {
			var onProgress export.ProgressFunc
			if agg != nil {
				onProgress = agg.Reporter(b.Name)
			}
			result, err := exp.ExportInBatches(gCtx, b.Name, b.Records, session, onProgress)

			mu.Lock()
			summary.Results = append(summary.Results, result)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	slices.SortFunc(summary.Results, func(a, b export.Result) int {
		return strings.Compare(a.RecordType, b.RecordType)
	})

	for _, r := range summary.Results {
		summary.Completed += r.Completed
		summary.FailedChunks += r.FailedChunks
		summary.Refreshes += r.Refreshes
	}
	summary.Duration = time.Since(start)

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Ctx(ctx).
		Int("completed", summary.Completed).
		Int("failed_chunks", summary.FailedChunks).
		Int("refreshes", summary.Refreshes).
		Dur("duration", summary.Duration).
		Msg("export finished")

	return summary, err
}
