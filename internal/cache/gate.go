// Package cache decides whether a refresh is due and persists the earnings
// index artifacts on disk.
package cache

import "time"

// DefaultTTLHours is the minimum artifact age before a refresh is due.
const DefaultTTLHours = 20

// NormalizeTTL validates a configured TTL, falling back to the default for
// non-positive values. Bad configuration degrades, it never fails a run.
func NormalizeTTL(hours int) int {
	if hours <= 0 {
		return DefaultTTLHours
	}
	return hours
}

// ShouldRefresh reports whether the stored artifact is stale. A missing
// artifact (last == nil) is always stale; otherwise the artifact is stale
// once its age reaches the TTL exactly.
func ShouldRefresh(last *time.Time, ttlHours int, now time.Time) bool {
	if last == nil {
		return true
	}
	ttl := time.Duration(NormalizeTTL(ttlHours)) * time.Hour
	return now.Sub(*last) >= ttl
}
