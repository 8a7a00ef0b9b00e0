package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/healthbridge/internal/healthstore"
)

func seededStore(t *testing.T) *healthstore.SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := healthstore.OpenSQLite(ctx, ":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Insert(ctx,
		healthstore.HealthRecord{
			Type:  healthstore.SleepSession,
			Start: time.Date(2026, time.January, 2, 22, 0, 0, 0, time.UTC),
			End:   time.Date(2026, time.January, 3, 6, 30, 0, 0, time.UTC),
			Title: "Night",
		},
		healthstore.HealthRecord{
			Type:  healthstore.SleepSession,
			Start: time.Date(2026, time.January, 12, 23, 0, 0, 0, time.UTC),
			End:   time.Date(2026, time.January, 13, 6, 0, 0, 0, time.UTC),
		},
		healthstore.HealthRecord{
			Type:  healthstore.OxygenSaturation,
			Start: time.Date(2026, time.January, 4, 8, 0, 0, 0, time.UTC),
			End:   time.Date(2026, time.January, 4, 8, 0, 0, 0, time.UTC),
			Value: 97.5,
		},
	))
	return store
}

func TestReadSleepSessions(t *testing.T) {
	store := seededStore(t)
	end := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)

	sessions, err := New(store).ReadSleepSessions(context.Background(), end)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "Night", sessions[0].Title)
	assert.Equal(t, 8*time.Hour+30*time.Minute, sessions[0].Duration)
	assert.Equal(t, 7*time.Hour, sessions[1].Duration)
}

func TestReadBloodOxygen(t *testing.T) {
	store := seededStore(t)
	end := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)

	readings, err := New(store).ReadBloodOxygen(context.Background(), end)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "97.5", readings[0].Value)
	assert.Equal(t, time.Date(2026, time.January, 4, 8, 0, 0, 0, time.UTC), readings[0].Time)
}

func TestReadAll(t *testing.T) {
	store := seededStore(t)
	end := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)

	all, err := New(store).ReadAll(context.Background(),
		[]healthstore.RecordType{healthstore.SleepSession, healthstore.Steps}, end)
	require.NoError(t, err)
	assert.Len(t, all[healthstore.SleepSession], 2)
	assert.Empty(t, all[healthstore.Steps])
}

func TestReadAll_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	store, err := healthstore.OpenSQLite(ctx, ":memory:", true)
	require.NoError(t, err)
	defer store.Close()

	_, err = New(store).ReadAll(ctx, []healthstore.RecordType{healthstore.Steps}, time.Now())
	require.ErrorIs(t, err, healthstore.ErrPermissionDenied)
}
