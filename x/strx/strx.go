// Package strx holds small string helpers shared by configuration handling.
package strx

import "strings"

// Coalesce returns s if non-empty, otherwise d.
func Coalesce(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// Canonical lower-cases s and strips surrounding space, the form all
// config enum values are compared in.
func Canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
