package utils

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters (keeping line breaks and
// tabs) and trims surrounding whitespace. Display names and chat text
// pass through here before going on the wire.
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// TruncateString shortens s to at most maxLen bytes, ellipsized when
// there is room for the marker.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return s[:maxLen-3] + "..."
	}
	return s[:maxLen]
}

// IsEmpty reports whether s holds nothing but whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
