// Package strutil holds small string helpers shared by the ai packages.
package strutil

import "strings"

// Truncate cuts s to at most maxRunes runes and appends "..." when it cut.
// A non-positive maxRunes yields "".
func Truncate(s string, maxRunes int) string {
	if s == "" || maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Preview renders s as a single log-friendly line of at most maxRunes runes.
// Runs of whitespace, newlines included, collapse to one space.
func Preview(s string, maxRunes int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxRunes)
}
