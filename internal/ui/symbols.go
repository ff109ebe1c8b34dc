package ui

// Status symbols.
const (
	SymbolSuccess  = "✓"
	SymbolFail     = "✗"
	SymbolWarn     = "!"
	SymbolPending  = "○"
	SymbolProgress = "◐"
	SymbolSkipped  = "⊘"
)
