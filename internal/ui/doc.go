// Package ui renders restic-orchestrator's terminal output: run summaries,
// check results, the history table and a per-step spinner.
//
// Colors are ANSI codes so they degrade well on limited terminals:
//
//	ColorSuccess (green)  - passed steps and checks
//	ColorError   (red)    - failed steps and checks
//	ColorWarning (yellow) - warnings and skipped steps
//	ColorInfo    (cyan)   - host names
//	ColorMuted   (gray)   - timing and secondary text
//
// Call DisableColors for --no-color.
package ui
