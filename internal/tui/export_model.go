package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/healthbridge/internal/engine"
	aggregate "github.com/rshade/healthbridge/internal/progress"
)

const (
	defaultWidth   = 80
	minBarWidth    = 10
	maxBarWidth    = 50
	typeNameWidth  = 28
	keyQuit        = "q"
	keyCtrlC       = "ctrl+c"
	keyEsc         = "esc"
	counterPadding = 16
)

// ExportPhase is where the export session currently is.
type ExportPhase int

const (
	// PhaseCollecting means records are being read from the store.
	PhaseCollecting ExportPhase = iota
	// PhaseExporting means chunks are being uploaded.
	PhaseExporting
	// PhaseDone means the session finished, successfully or not.
	PhaseDone
)

// CollectedMsg reports that reading finished and uploads are starting.
type CollectedMsg struct {
	Types   int
	Records int
}

// ExportProgressMsg carries an aggregated progress snapshot.
type ExportProgressMsg struct {
	Snapshot aggregate.Snapshot
}

// ExportDoneMsg ends the session.
type ExportDoneMsg struct {
	Summary engine.Summary
	Err     error
}

// ExportModel renders one progress bar per record type.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View interface methods.
type ExportModel struct {
	phase    ExportPhase
	cancel   context.CancelFunc
	spinner  spinner.Model
	bar      progress.Model
	width    int
	snapshot aggregate.Snapshot
	summary  engine.Summary
	err      error
	started  time.Time
	quitting bool
}

// NewExportModel returns a model in the collecting phase. cancel is called
// when the user quits before the session is done.
func NewExportModel(cancel context.CancelFunc) ExportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = LabelStyle

	return ExportModel{
		phase:   PhaseCollecting,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:   defaultWidth,
		started: time.Now(),
	}
}

// Init starts the spinner.
func (m ExportModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles progress messages, resizes and the quit keys.
func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case keyQuit, keyCtrlC, keyEsc:
			if m.phase != PhaseDone && m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case CollectedMsg:
		m.phase = PhaseExporting
		return m, nil
	case ExportProgressMsg:
		if m.phase == PhaseCollecting {
			m.phase = PhaseExporting
		}
		m.snapshot = msg.Snapshot
		return m, nil
	case ExportDoneMsg:
		m.phase = PhaseDone
		m.summary = msg.Summary
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.phase == PhaseDone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the header, one bar per type and a footer.
func (m ExportModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("healthbridge export"))
	b.WriteString("\n\n")

	switch m.phase {
	case PhaseCollecting:
		fmt.Fprintf(&b, " %s reading health records...\n", m.spinner.View())
	case PhaseExporting, PhaseDone:
		m.renderBars(&b)
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	return b.String()
}

// Phase returns the current phase.
func (m ExportModel) Phase() ExportPhase {
	return m.phase
}

// Err returns the error the session ended with, if any.
func (m ExportModel) Err() error {
	return m.err
}

// Quitting reports whether the user asked to quit.
func (m ExportModel) Quitting() bool {
	return m.quitting
}

func (m ExportModel) renderBars(b *strings.Builder) {
	bar := m.bar
	bar.Width = m.barWidth()

	for _, name := range m.snapshot.TypeNames() {
		tp := m.snapshot.Types[name]
		fmt.Fprintf(b, " %s %s %s\n",
			LabelStyle.Render(padRight(truncate(name, typeNameWidth), typeNameWidth)),
			bar.ViewAs(fraction(tp.Completed, tp.Total)),
			ValueStyle.Render(fmt.Sprintf("%d/%d", tp.Completed, tp.Total)),
		)
	}
	fmt.Fprintf(b, "\n %s %s %s\n",
		LabelStyle.Render(padRight("Overall", typeNameWidth)),
		bar.ViewAs(fraction(m.snapshot.Completed, m.snapshot.Total)),
		ValueStyle.Render(fmt.Sprintf("%d%%", m.snapshot.Percent())),
	)
}

func (m ExportModel) footer() string {
	if m.phase != PhaseDone {
		return HelpStyle.Render(" q: cancel")
	}
	if m.err != nil {
		return ErrorStyle.Render(" export cancelled: " + m.err.Error())
	}
	if m.summary.Failed() {
		return WarnStyle.Render(fmt.Sprintf(" done with %d failed chunk(s) in %s",
			m.summary.FailedChunks, m.summary.Duration.Round(time.Millisecond)))
	}
	return OKStyle.Render(fmt.Sprintf(" exported %d records in %s",
		m.summary.Completed, m.summary.Duration.Round(time.Millisecond)))
}

func (m ExportModel) barWidth() int {
	w := m.width - typeNameWidth - counterPadding
	return min(max(w, minBarWidth), maxBarWidth)
}

func fraction(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
