package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/healthbridge/internal/engine"
	aggregate "github.com/rshade/healthbridge/internal/progress"
)

func snapshot() aggregate.Snapshot {
	return aggregate.Snapshot{
		Types: map[string]aggregate.TypeProgress{
			"StepsRecord":      {Completed: 50, Total: 120},
			"SleepSessionData": {Completed: 3, Total: 3},
		},
		Completed: 53,
		Total:     123,
	}
}

func update(t *testing.T, m ExportModel, msg tea.Msg) (ExportModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	em, ok := next.(ExportModel)
	require.True(t, ok)
	return em, cmd
}

func TestExportModel_Phases(t *testing.T) {
	m := NewExportModel(nil)
	assert.Equal(t, PhaseCollecting, m.Phase())
	assert.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "reading health records")

	m, _ = update(t, m, CollectedMsg{Types: 2, Records: 123})
	assert.Equal(t, PhaseExporting, m.Phase())

	m, _ = update(t, m, ExportProgressMsg{Snapshot: snapshot()})
	view := m.View()
	assert.Contains(t, view, "SleepSessionData")
	assert.Contains(t, view, "50/120")
	assert.Contains(t, view, "43%")
	assert.Contains(t, view, "q: cancel")

	m, cmd := update(t, m, ExportDoneMsg{Summary: engine.Summary{Completed: 123, Duration: 2 * time.Second}})
	assert.Equal(t, PhaseDone, m.Phase())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "exported 123 records")
}

func TestExportModel_ProgressSkipsCollecting(t *testing.T) {
	m, _ := update(t, NewExportModel(nil), ExportProgressMsg{Snapshot: snapshot()})
	assert.Equal(t, PhaseExporting, m.Phase())
}

func TestExportModel_DoneWithFailures(t *testing.T) {
	m, _ := update(t, NewExportModel(nil), ExportDoneMsg{Summary: engine.Summary{FailedChunks: 2}})
	assert.Contains(t, m.View(), "2 failed chunk(s)")

	m, _ = update(t, NewExportModel(nil), ExportDoneMsg{Err: context.Canceled})
	require.Error(t, m.Err())
	assert.Contains(t, m.View(), "export cancelled")
}

func TestExportModel_QuitCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewExportModel(cancel)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.Quitting())
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}

func TestExportModel_QuitAfterDoneDoesNotCancel(t *testing.T) {
	called := false
	m := NewExportModel(func() { called = true })
	m, _ = update(t, m, ExportDoneMsg{})
	_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.False(t, called)
}

func TestExportModel_Resize(t *testing.T) {
	m, _ := update(t, NewExportModel(nil), tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, maxBarWidth, m.barWidth())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 40})
	assert.Equal(t, minBarWidth, m.barWidth())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.InDelta(t, 0.0, fraction(1, 0), 0)
	assert.InDelta(t, 0.5, fraction(1, 2), 0)
}
