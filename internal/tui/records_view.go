package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/rshade/healthbridge/internal/healthstore"
)

// recordTimeLayout is the timestamp format used in record tables.
const recordTimeLayout = "2006-01-02 15:04"

// NewRecordTable builds a table of records, newest first as given.
func NewRecordTable(records []healthstore.HealthRecord, height int) table.Model {
	columns := []table.Column{
		{Title: "Start", Width: 16},    //nolint:mnd // Column width.
		{Title: "End", Width: 16},      //nolint:mnd // Column width.
		{Title: "Value", Width: 12},    //nolint:mnd // Column width.
		{Title: "Unit", Width: 8},      //nolint:mnd // Column width.
		{Title: "Duration", Width: 10}, //nolint:mnd // Column width.
		{Title: "Title", Width: 24},    //nolint:mnd // Column width.
	}

	rows := make([]table.Row, len(records))
	for i, r := range records {
		duration := ""
		if d := r.Duration(); d > 0 {
			duration = d.Round(time.Minute).String()
		}
		rows[i] = table.Row{
			r.Start.Local().Format(recordTimeLayout),
			r.End.Local().Format(recordTimeLayout),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.Unit,
			duration,
			truncate(r.Title, 24), //nolint:mnd // Matches column width.
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(max(1, min(height, len(rows)+1))),
	)

	s := table.DefaultStyles()
	s.Header = TableHeaderStyle
	s.Selected = TableSelectedStyle
	t.SetStyles(s)

	return t
}

// TypeCount is one row of the record count table.
type TypeCount struct {
	Type    healthstore.RecordType
	Count   int
	Granted bool
}

// NewCountTable builds the per-type summary table shown by `records`.
func NewCountTable(counts []TypeCount) table.Model {
	columns := []table.Column{
		{Title: "Record type", Width: 32}, //nolint:mnd // Column width.
		{Title: "Records", Width: 10},     //nolint:mnd // Column width.
		{Title: "Access", Width: 8},       //nolint:mnd // Column width.
	}

	rows := make([]table.Row, len(counts))
	for i, c := range counts {
		access := "denied"
		if c.Granted {
			access = "granted"
		}
		rows[i] = table.Row{string(c.Type), strconv.Itoa(c.Count), access}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = TableHeaderStyle
	s.Selected = s.Cell
	t.SetStyles(s)

	return t
}
