package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Now returns the current UTC time at the precision the stores keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
