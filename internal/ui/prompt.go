package ui

import (
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm asks a yes/no question. Without a terminal it returns def
// without prompting.
func Confirm(title, description string, def bool) (bool, error) {
	if !IsInteractive() {
		return def, nil
	}
	answer := def
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&answer).
		Run()
	if err != nil {
		return false, err
	}
	return answer, nil
}
