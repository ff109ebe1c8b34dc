package ui

import (
	"strings"

	"github.com/datenknoten/restic-orchestrator/internal/doctor"
)

// RenderChecks renders check results grouped by category in first-seen
// order, followed by the doctor summary.
func RenderChecks(results []doctor.CheckResult) string {
	var (
		sb     strings.Builder
		order  []string
		groups = make(map[string][]doctor.CheckResult)
	)
	for _, r := range results {
		if _, ok := groups[r.Category]; !ok {
			order = append(order, r.Category)
		}
		groups[r.Category] = append(groups[r.Category], r)
	}

	for _, cat := range order {
		sb.WriteString(fg(ColorInfo).Bold(true).Render(cat))
		sb.WriteString("\n")
		for _, r := range groups[cat] {
			sb.WriteString("  ")
			sb.WriteString(checkSymbol(r.Status))
			sb.WriteString(" ")
			sb.WriteString(r.Message)
			sb.WriteString("\n")
			if r.Suggestion != "" && r.Status != doctor.StatusPass {
				sb.WriteString("    ")
				sb.WriteString(fg(ColorMuted).Render(r.Suggestion))
				sb.WriteString("\n")
			}
		}
	}

	summary := doctor.Summary(results)
	if doctor.HasFailures(results) {
		sb.WriteString(fg(ColorError).Render(summary))
	} else if summary != "Everything looks good" {
		sb.WriteString(fg(ColorWarning).Render(summary))
	} else {
		sb.WriteString(fg(ColorSuccess).Render(summary))
	}
	sb.WriteString("\n")
	return sb.String()
}

func checkSymbol(s doctor.CheckStatus) string {
	switch s {
	case doctor.StatusPass:
		return fg(ColorSuccess).Render(SymbolSuccess)
	case doctor.StatusWarn:
		return fg(ColorWarning).Render(SymbolWarn)
	default:
		return fg(ColorError).Render(SymbolFail)
	}
}
