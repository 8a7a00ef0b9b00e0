package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/healthbridge/internal/healthstore"
)

// fakeStore fails the first failures[window index] reads of each window.
type fakeStore struct {
	calls    []Window
	failures map[int]int
	failErr  error
	attempts map[time.Time]int
	windows  map[time.Time]int
}

func newFakeStore(endDate time.Time) *fakeStore {
	f := &fakeStore{
		failures: map[int]int{},
		failErr:  healthstore.ErrStoreUnavailable,
		attempts: map[time.Time]int{},
		windows:  map[time.Time]int{},
	}
	for i, w := range Windows(endDate) {
		f.windows[w.Start] = i
	}
	return f
}

func (f *fakeStore) ReadRange(
	_ context.Context,
	t healthstore.RecordType,
	start, end time.Time,
	ascending bool,
) ([]healthstore.HealthRecord, error) {
	f.calls = append(f.calls, Window{Start: start, End: end})
	idx := f.windows[start]
	f.attempts[start]++
	if f.attempts[start] <= f.failures[idx] {
		return nil, f.failErr
	}
	if ascending {
		return nil, errors.New("expected descending read")
	}
	// Two records per window, newest first.
	return []healthstore.HealthRecord{
		{Type: t, Start: start.Add(time.Hour), Value: float64(idx*10 + 1)},
		{Type: t, Start: start, Value: float64(idx * 10)},
	}, nil
}

func (f *fakeStore) Aggregate(context.Context, healthstore.Metric, time.Time, time.Time) (float64, error) {
	return 0, nil
}

func (f *fakeStore) HasPermissions(context.Context, []healthstore.Permission) (bool, error) {
	return true, nil
}

func (f *fakeStore) RequestPermissions(context.Context, []healthstore.Permission) error { return nil }

func noSleep(sleeps *[]time.Duration) Option {
	return WithSleep(func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	})
}

func TestReadRecordsByWeek_Order(t *testing.T) {
	end := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(end)

	records, err := New(store).ReadRecordsByWeek(context.Background(), healthstore.Steps, end)
	require.NoError(t, err)

	// 19 days -> 2 whole weeks -> 3 windows, two records each.
	require.Len(t, store.calls, 3)
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.Value
	}
	assert.Equal(t, []float64{1, 0, 11, 10, 21, 20}, values)
}

func TestReadRecordsByWeek_RetriesWithBackoff(t *testing.T) {
	end := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(end)
	store.failures[1] = 3

	var sleeps []time.Duration
	records, err := New(store, noSleep(&sleeps)).ReadRecordsByWeek(context.Background(), healthstore.Steps, end)
	require.NoError(t, err)

	assert.Len(t, records, 4)
	assert.Len(t, store.calls, 5)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeps)
}

func TestReadRecordsByWeek_BackoffCapped(t *testing.T) {
	end := time.Date(2026, time.January, 3, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(end)
	store.failures[0] = 100

	var sleeps []time.Duration
	r := New(store, noSleep(&sleeps), WithRetryPolicy(RetryPolicy{
		MaxAttempts:    8,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}))

	_, err := r.ReadRecordsByWeek(context.Background(), healthstore.Steps, end)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorIs(t, err, healthstore.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "2026-01-01..2026-01-04")
	assert.Len(t, store.calls, 8)
	require.Len(t, sleeps, 7)
	assert.Equal(t, 2*time.Second, sleeps[len(sleeps)-1])
	for _, d := range sleeps {
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestReadRecordsByWeek_NonRetryable(t *testing.T) {
	end := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(end)
	store.failures[0] = 1
	store.failErr = healthstore.ErrPermissionDenied

	var sleeps []time.Duration
	_, err := New(store, noSleep(&sleeps)).ReadRecordsByWeek(context.Background(), healthstore.Weight, end)
	require.ErrorIs(t, err, healthstore.ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Len(t, store.calls, 1)
	assert.Empty(t, sleeps)
}

func TestReadRecordsByWeek_CancelDuringBackoff(t *testing.T) {
	end := time.Date(2026, time.January, 3, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(end)
	store.failures[0] = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store).ReadRecordsByWeek(ctx, healthstore.Steps, end)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.calls, 1)
}
