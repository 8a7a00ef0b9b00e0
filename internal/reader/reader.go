// Package reader pages through the health store one week at a time.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/logging"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	backoffMultiplier     = 2
)

// ErrRetriesExhausted is returned when a window could not be read within the retry budget.
var ErrRetriesExhausted = errors.New("read retries exhausted")

// RetryPolicy bounds per-window retries.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 5 attempts backing off from 100ms, doubling, capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Reader reads record history from a Store.
type Reader struct {
	store  healthstore.Store
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Reader.
type Option func(*Reader)

// WithRetryPolicy replaces the retry policy. MaxAttempts below 1 is treated as 1.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Reader) {
		p.MaxAttempts = max(p.MaxAttempts, 1)
		r.policy = p
	}
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reader) { r.sleep = fn }
}

// New returns a Reader over store.
func New(store healthstore.Store, opts ...Option) *Reader {
	r := &Reader{
		store:  store,
		policy: DefaultRetryPolicy(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Reader) Store() healthstore.Store {
	return r.store
}

// ReadRecordsByWeek returns every record of t from Jan 1 of endDate's year
// through endDate. Windows are read oldest first; records inside each window are
// newest first.
//
// A failing window is retried with exponential backoff. Permission and
// unknown-type errors are not retried. When a window cannot be read, the error
// names it and no partial result is returned.
func (r *Reader) ReadRecordsByWeek(
	ctx context.Context,
	t healthstore.RecordType,
	endDate time.Time,
) ([]healthstore.HealthRecord, error) {
	var result []healthstore.HealthRecord
	for _, w := range Windows(endDate) {
		records, err := r.readWindow(ctx, t, w)
		if err != nil {
			return nil, err
		}
		result = append(result, records...)
	}
	return result, nil
}

func (r *Reader) readWindow(
	ctx context.Context,
	t healthstore.RecordType,
	w Window,
) ([]healthstore.HealthRecord, error) {
	log := logging.FromContext(ctx)
	var lastErr error
	backoff := r.policy.InitialBackoff

	for attempt := range r.policy.MaxAttempts {
		if attempt > 0 {
			log.Debug().
				Ctx(ctx).
				Str("component", "reader").
				Str("record_type", string(t)).
				Time("window_start", w.Start).
				Int("attempt", attempt+1).
				Int("max_attempts", r.policy.MaxAttempts).
				Dur("backoff", backoff).
				Msg("retrying window read")
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = min(backoff*backoffMultiplier, r.policy.MaxBackoff)
		}

		records, err := r.store.ReadRange(ctx, t, w.Start, w.End, false)
		if err == nil {
			return records, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !retryable(err) {
			return nil, fmt.Errorf("reading %s window %s: %w", t, w, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %s window %s after %d attempts: %w",
		ErrRetriesExhausted, t, w, r.policy.MaxAttempts, lastErr)
}

func retryable(err error) bool {
	return !errors.Is(err, healthstore.ErrPermissionDenied) &&
		!errors.Is(err, healthstore.ErrUnknownRecordType) &&
		!errors.Is(err, healthstore.ErrInvalidRange)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
