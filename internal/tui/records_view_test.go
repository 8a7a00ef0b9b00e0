package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rshade/healthbridge/internal/healthstore"
)

func TestNewRecordTable(t *testing.T) {
	start := time.Date(2026, time.March, 2, 23, 0, 0, 0, time.Local)
	records := []healthstore.HealthRecord{
		{Type: healthstore.SleepSession, Start: start, End: start.Add(8 * time.Hour), Title: "Night", Unit: "s"},
		{Type: healthstore.HeartRate, Start: start, End: start, Value: 62.5, Unit: "bpm"},
	}

	tbl := NewRecordTable(records, 20)
	rows := tbl.Rows()

	assert.Len(t, rows, 2)
	assert.Equal(t, "2026-03-02 23:00", rows[0][0])
	assert.Equal(t, "8h0m0s", rows[0][4])
	assert.Equal(t, "Night", rows[0][5])
	assert.Equal(t, "62.5", rows[1][2])
	assert.Empty(t, rows[1][4], "point samples have no duration")
	assert.Contains(t, tbl.View(), "Start")
}

func TestNewCountTable(t *testing.T) {
	tbl := NewCountTable([]TypeCount{
		{Type: healthstore.Steps, Count: 1200, Granted: true},
		{Type: healthstore.Weight, Count: 0},
	})

	rows := tbl.Rows()
	assert.Len(t, rows, 2)
	assert.Equal(t, "StepsRecord", rows[0][0])
	assert.Equal(t, "1200", rows[0][1])
	assert.Equal(t, "granted", rows[0][2])
	assert.Equal(t, "denied", rows[1][2])
}
