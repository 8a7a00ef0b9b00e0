package healthstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_SleepSessions(t *testing.T) {
	end := time.Date(2026, time.May, 10, 15, 0, 0, 0, time.UTC)
	sessions := NewGenerator(7).SleepSessions(14, end)

	require.Len(t, sessions, 14)
	for i, s := range sessions {
		assert.Equal(t, SleepSession, s.Type)
		assert.GreaterOrEqual(t, s.Duration(), 6*time.Hour)
		assert.Less(t, s.Duration(), 9*time.Hour)
		assert.InDelta(t, s.Duration().Seconds(), s.Value, 0.001)
		assert.Less(t, s.Start, end)
		if i > 0 {
			assert.True(t, s.Start.After(sessions[i-1].Start), "sessions are chronological")
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	end := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(42).Samples(HeartRate, 3, 4, end)
	b := NewGenerator(42).Samples(HeartRate, 3, 4, end)

	require.Len(t, a, 12)
	for i := range a {
		assert.Equal(t, a[i].Start, b[i].Start)
		assert.InDelta(t, a[i].Value, b[i].Value, 0)
		assert.GreaterOrEqual(t, a[i].Value, 55.0)
		assert.LessOrEqual(t, a[i].Value, 150.0)
	}
}

func TestGenerator_All(t *testing.T) {
	end := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	records := NewGenerator(1).All(4, 2, end)

	seen := map[RecordType]int{}
	for _, r := range records {
		seen[r.Type]++
	}
	for _, typ := range AllRecordTypes() {
		assert.Positive(t, seen[typ], "type %s", typ)
	}
	assert.Equal(t, 4, seen[SleepSession])
	assert.Equal(t, 2, seen[ExerciseSession])
	assert.Equal(t, 8, seen[Steps])
}

func TestRecordTypes(t *testing.T) {
	types := AllRecordTypes()
	assert.Len(t, types, 26)
	for _, typ := range types {
		assert.True(t, typ.Valid())
		assert.NotEmpty(t, typ.Unit())
	}

	got, err := ParseRecordType("StepsRecord")
	require.NoError(t, err)
	assert.Equal(t, Steps, got)

	_, err = ParseRecordType("Steps")
	require.ErrorIs(t, err, ErrUnknownRecordType)

	assert.Equal(t, Permission("read:WeightRecord"), ReadPermission(Weight))
	assert.Len(t, AllReadPermissions(), 26)
}
