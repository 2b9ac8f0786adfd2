package utils

import (
	"math"
	"time"
)

// Now returns current time (useful for mocking in tests)
var Now = time.Now

// FormatTimestamp formats timestamp in ISO 8601 format
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SecondsToDuration converts a playback position in seconds.
// Negative, NaN and infinite values clamp to zero.
func SecondsToDuration(seconds float64) time.Duration {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0
	}
	if seconds >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}

// DurationToSeconds is the inverse of SecondsToDuration.
func DurationToSeconds(d time.Duration) float64 {
	return d.Seconds()
}

// IsExpired checks if a timestamp is older than ttl
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return Now().Sub(timestamp) > ttl
}
