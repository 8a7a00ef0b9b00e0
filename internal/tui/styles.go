package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	ColorHeader    = lipgloss.Color("63")
	ColorLabel     = lipgloss.Color("245")
	ColorValue     = lipgloss.Color("255")
	ColorOK        = lipgloss.Color("42")
	ColorWarning   = lipgloss.Color("214")
	ColorError     = lipgloss.Color("196")
	ColorMuted     = lipgloss.Color("240")
	ColorHighlight = lipgloss.Color("212")
)

// Shared styles.
//
//nolint:gochecknoglobals // Style definitions are effectively constants.
var (
	TitleStyle = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	LabelStyle = lipgloss.NewStyle().Foreground(ColorLabel)
	ValueStyle = lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	OKStyle    = lipgloss.NewStyle().Foreground(ColorOK).Bold(true)
	WarnStyle  = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	HelpStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorHeader).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(ColorMuted).
				BorderBottom(true).
				Bold(true)
	TableSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57")).
				Bold(false)
)
