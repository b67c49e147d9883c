package utils

import "time"

// IsExpired checks whether a timestamp is past its ttl.
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return time.Since(timestamp) > ttl
}

// FormatTimestamp formats a timestamp in ISO 8601.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
