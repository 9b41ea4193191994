// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// NormalizeLabel trims surrounding whitespace and collapses inner runs of
// whitespace to a single space.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
