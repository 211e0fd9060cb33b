// Package detect implements the windowed detection engine: nine
// detectors that query the event store, draft alerts and hand them to
// the deduplicator, driven by a periodic scheduler.
package detect

import (
	"context"
	"strings"
	"time"
)

// Detector is one detection strategy. Detect runs a single evaluation
// against the event store and returns the number of alerts it created.
// Disabled detectors return 0 immediately.
type Detector interface {
	Name() string
	Enabled() bool
	Detect(ctx context.Context, now time.Time) (int, error)
}

// joinOrDefault renders a value list for alert descriptions, falling
// back when the list is empty.
func joinOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

// windowStart returns the lookback boundary for a window in minutes.
func windowStart(now time.Time, minutes int) time.Time {
	return now.Add(-time.Duration(minutes) * time.Minute)
}
