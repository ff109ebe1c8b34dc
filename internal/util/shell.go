// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote wraps a string in single quotes, escaping any existing single quotes.
// The remote shell then treats the string literally.
func ShellQuote(s string) string {
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// EscapeDoubleQuotes replaces every " with \" and leaves everything else
// alone. Backslashes, $, backticks and ; pass through untouched, so the
// result is only safe for trusted, operator-authored input.
func EscapeDoubleQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
