package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/datenknoten/restic-orchestrator/internal/history"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-focused Bubbles table with the CLI's styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true)
	// Without focus no row is selected, so the selection style is plain.
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a static table for CLI output.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

var historyColumns = []TableColumn{
	{Title: "RUN", Width: 8},
	{Title: "MODE", Width: 6},
	{Title: "STARTED", Width: 16},
	{Title: "TOOK", Width: 8},
	{Title: "HOSTS", Width: 6},
	{Title: "FAILED", Width: 16},
}

// RenderHistory renders recorded runs relative to now.
func RenderHistory(runs []history.Run, now time.Time) string {
	if len(runs) == 0 {
		return fg(ColorMuted).Render("No runs recorded yet") + "\n"
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		failed := "-"
		switch {
		case r.Error != "":
			failed = "aborted"
		case r.FailedHosts > 0:
			failed = fmt.Sprintf("%d hosts/%d steps", r.FailedHosts, r.FailedSteps)
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows[i] = []string{
			id,
			r.Mode,
			humanize.RelTime(r.Started, now, "ago", "from now"),
			FormatDuration(r.Duration),
			fmt.Sprint(r.Hosts),
			failed,
		}
	}
	return RenderSimpleTable(historyColumns, rows) + "\n"
}

var stepColumns = []TableColumn{
	{Title: "HOST", Width: 24},
	{Title: "STEP", Width: 20},
	{Title: "EXIT", Width: 8},
	{Title: "TOOK", Width: 8},
}

// RenderSteps renders the steps of one recorded run. The last stderr line
// of each failed step is listed under the table.
func RenderSteps(steps []history.Step) string {
	if len(steps) == 0 {
		return fg(ColorMuted).Render("No steps recorded for this run") + "\n"
	}

	var failures []string
	rows := make([][]string, len(steps))
	for i, st := range steps {
		exit := fmt.Sprint(st.ReturnCode)
		if st.Skipped {
			exit = "skipped"
		} else if st.ReturnCode != 0 {
			if msg := lastLine(st.Stderr); msg != "" {
				failures = append(failures, fmt.Sprintf("%s %s %s: %s", SymbolFail, st.Host, st.Name, msg))
			}
		}
		rows[i] = []string{st.Host, st.Name, exit, FormatDuration(st.Duration)}
	}

	out := RenderSimpleTable(stepColumns, rows) + "\n"
	for _, f := range failures {
		out += fg(ColorError).Render(f) + "\n"
	}
	return out
}
