package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name      string
		end       time.Time
		wantCount int
		wantLast  Window
	}{
		{
			name:      "jan 1",
			end:       date(2026, time.January, 1),
			wantCount: 1,
			wantLast:  Window{date(2026, time.January, 1), date(2026, time.January, 2)},
		},
		{
			name:      "exact week boundary",
			end:       date(2026, time.January, 8),
			wantCount: 2,
			wantLast:  Window{date(2026, time.January, 8), date(2026, time.January, 9)},
		},
		{
			name:      "mid week",
			end:       date(2026, time.January, 12),
			wantCount: 2,
			wantLast:  Window{date(2026, time.January, 8), date(2026, time.January, 13)},
		},
		{
			name:      "full year",
			end:       date(2026, time.December, 31),
			wantCount: 53,
			wantLast:  Window{date(2026, time.December, 31), date(2027, time.January, 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := Windows(tt.end)
			require.Len(t, windows, tt.wantCount)
			assert.Equal(t, tt.wantLast, windows[len(windows)-1])
			assert.Equal(t, date(tt.end.Year(), time.January, 1), windows[0].Start)

			for i, w := range windows {
				assert.True(t, w.End.After(w.Start))
				assert.LessOrEqual(t, w.End.Sub(w.Start), 7*24*time.Hour)
				if i < len(windows)-1 {
					assert.Equal(t, 7*24*time.Hour, w.End.Sub(w.Start), "only the last window may be short")
					assert.Equal(t, w.End, windows[i+1].Start)
				}
			}
		})
	}
}

func TestWindows_CountFormula(t *testing.T) {
	start := date(2025, time.January, 1)
	for day := range 365 {
		end := start.AddDate(0, 0, day)
		assert.Len(t, Windows(end), day/7+1, "end=%s", end.Format(time.DateOnly))
	}
}

func TestWindows_IgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	end := time.Date(2026, time.January, 5, 18, 30, 0, 0, loc)

	windows := Windows(end)
	require.Len(t, windows, 1)
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, loc), windows[0].Start)
	assert.Equal(t, time.Date(2026, time.January, 6, 0, 0, 0, 0, loc), windows[0].End)
}

func TestWindow_String(t *testing.T) {
	w := Window{date(2026, time.March, 1), date(2026, time.March, 8)}
	assert.Equal(t, "2026-03-01..2026-03-08", w.String())
}
