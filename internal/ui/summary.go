package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// SummaryRenderer formats lifecycle reports.
type SummaryRenderer struct {
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	warnStyle    lipgloss.Style
	hostStyle    lipgloss.Style
	mutedStyle   lipgloss.Style

	// ShowCommands adds the masked remote command under each step.
	ShowCommands bool
}

// NewSummaryRenderer creates a new summary renderer with default styles.
func NewSummaryRenderer() *SummaryRenderer {
	return &SummaryRenderer{
		errorStyle:   fg(ColorError),
		successStyle: fg(ColorSuccess),
		warnStyle:    fg(ColorWarning),
		hostStyle:    fg(ColorInfo).Bold(true),
		mutedStyle:   fg(ColorMuted),
	}
}

// RenderReports renders every report followed by a one-line total.
func RenderReports(reports []*lifecycle.Report) string {
	return NewSummaryRenderer().Render(reports)
}

// Render renders every report followed by a one-line total.
func (r *SummaryRenderer) Render(reports []*lifecycle.Report) string {
	var sb strings.Builder

	failed := 0
	for _, rep := range reports {
		if rep.Failed() {
			failed++
		}
		sb.WriteString(r.RenderReport(rep))
		sb.WriteString("\n")
	}

	total := fmt.Sprintf("%d %s", len(reports), util.Pluralize(len(reports), "host", "hosts"))
	if failed == 0 {
		sb.WriteString(r.successStyle.Render(fmt.Sprintf("%s %s ok", SymbolSuccess, total)))
	} else {
		sb.WriteString(r.errorStyle.Render(fmt.Sprintf("%s %s, %d with failures", SymbolFail, total, failed)))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderReport renders one host: a header line and one line per step.
func (r *SummaryRenderer) RenderReport(rep *lifecycle.Report) string {
	var sb strings.Builder

	sb.WriteString(r.hostStyle.Render(rep.Host))
	sb.WriteString(" ")
	sb.WriteString(r.mutedStyle.Render(fmt.Sprintf("%s, %s", rep.Mode, FormatDuration(rep.Duration))))
	if rep.Aborted {
		sb.WriteString(" ")
		sb.WriteString(r.warnStyle.Render("(stopped after failure)"))
	}
	sb.WriteString("\n")

	for _, s := range rep.Steps {
		sb.WriteString("  ")
		sb.WriteString(r.stepLine(s))
		sb.WriteString("\n")
		if r.ShowCommands && s.Command != "" {
			sb.WriteString("      ")
			sb.WriteString(r.mutedStyle.Render(s.Command))
			sb.WriteString("\n")
		}
	}

	if rep.Err != nil {
		sb.WriteString("  ")
		sb.WriteString(r.errorStyle.Render(SymbolFail + " " + firstLine(rep.Err.Error())))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *SummaryRenderer) stepLine(s lifecycle.StepResult) string {
	switch {
	case s.Skipped:
		return r.warnStyle.Render(SymbolSkipped) + " " + s.Name + " " + r.mutedStyle.Render("skipped")
	case s.Failed():
		line := r.errorStyle.Render(SymbolFail) + " " + s.Name + " " +
			r.errorStyle.Render(fmt.Sprintf("exit %d", s.Result.ReturnCode)) + " " +
			r.mutedStyle.Render(FormatDuration(s.Duration))
		if msg := lastLine(s.Result.Stderr); msg != "" {
			line += "\n      " + r.mutedStyle.Render(msg)
		}
		return line
	default:
		return r.successStyle.Render(SymbolSuccess) + " " + s.Name + " " + r.mutedStyle.Render(FormatDuration(s.Duration))
	}
}

func firstLine(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), SymbolFail+" ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
