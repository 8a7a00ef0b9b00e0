package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rshade/healthbridge/internal/logging"
)

// ProgressFunc receives the cumulative number of processed records and the total.
type ProgressFunc func(completed, total int)

// Result summarizes one ExportInBatches call.
type Result struct {
	RecordType   string
	Total        int
	Completed    int
	Chunks       int
	FailedChunks int
	Refreshes    int
}

// Exporter uploads record chunks sequentially.
type Exporter struct {
	client    *http.Client
	chunkSize int
	refresher *TokenRefresher
	metrics   *Metrics
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithChunkSize sets the records per request (1..1000).
func WithChunkSize(n int) Option {
	return func(e *Exporter) { e.chunkSize = n }
}

// WithRefresher replaces the token refresher.
func WithRefresher(r *TokenRefresher) Option {
	return func(e *Exporter) { e.refresher = r }
}

// WithMetrics records chunk and refresh outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// NewExporter returns an exporter using client, or http.DefaultClient when nil.
func NewExporter(client *http.Client, opts ...Option) (*Exporter, error) {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Exporter{
		client:    client,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunkSize < MinChunkSize || e.chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, e.chunkSize)
	}
	if e.refresher == nil {
		e.refresher = NewTokenRefresher(client)
	}
	return e, nil
}

// ChunkSize returns the configured chunk size.
func (e *Exporter) ChunkSize() int {
	return e.chunkSize
}

// ExportInBatches uploads records for one record type.
//
// Chunks are sent strictly in order. After every chunk, accepted or not,
// onProgress receives the cumulative record count. Chunk failures are logged and
// counted in the Result; the only error returned is the context's, once it is
// cancelled, and no chunk is started after that.
func (e *Exporter) ExportInBatches(
	ctx context.Context,
	recordType string,
	records []SampleRecord,
	session *Session,
	onProgress ProgressFunc,
) (Result, error) {
	logger := logging.FromContext(ctx).With().
		Str("component", "export").
		Str("operation", "ExportInBatches").
		Str("record_type", recordType).
		Str("session_id", session.ID()).
		Logger()

	result := Result{RecordType: recordType, Total: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	logger.Debug().Ctx(ctx).Int("records", len(records)).Int("chunk_size", e.chunkSize).Msg("exporting records")

	err := walkChunks(ctx, records, e.chunkSize,
		func(ctx context.Context, chunk []SampleRecord, index int) {
			chunkErr := e.sendChunk(ctx, recordType, chunk, session, &result)
			e.metrics.observeChunk(recordType, len(chunk), chunkErr)
			if chunkErr != nil {
				result.FailedChunks++
				logger.Error().Ctx(ctx).Err(chunkErr).
					Int("chunk", index).
					Int("size", len(chunk)).
					Int("status", StatusCode(chunkErr)).
					Msg("chunk export failed")
				return
			}
			logger.Debug().Ctx(ctx).Int("chunk", index).Int("size", len(chunk)).Msg("chunk exported")
		},
		func(done, chunks int) {
			result.Completed = done
			result.Chunks = chunks
			if onProgress != nil {
				onProgress(done, len(records))
			}
		})

	if result.FailedChunks > 0 {
		logger.Warn().Ctx(ctx).
			Int("failed_chunks", result.FailedChunks).
			Int("chunks", result.Chunks).
			Msg("some chunks failed to export")
	}

	return result, err
}

// sendChunk posts one chunk, refreshing the token and retrying once on 403.
func (e *Exporter) sendChunk(
	ctx context.Context,
	recordType string,
	chunk []SampleRecord,
	session *Session,
	result *Result,
) error {
	body, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshalling chunk: %w", err)
	}

	cfg := session.Config()
	err = e.post(ctx, cfg.Endpoint(recordType), cfg.AccessToken, body)
	if StatusCode(err) != http.StatusForbidden {
		return err
	}

	ok, sent := e.refresher.refreshFrom(ctx, session, cfg)
	if sent {
		result.Refreshes++
		e.metrics.observeRefresh(ok)
	}
	if !ok {
		return err
	}

	cfg = session.Config()
	if retryErr := e.post(ctx, cfg.Endpoint(recordType), cfg.AccessToken, body); retryErr != nil {
		return fmt.Errorf("retry after token refresh: %w", retryErr)
	}
	return nil
}

func (e *Exporter) post(ctx context.Context, url, token string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrInvalidInput, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ErrNetworkFailure, ctxErr)
		}
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return CheckStatus(resp.StatusCode)
}
