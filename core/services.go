package core

import (
	"context"
	"time"
)

// EventStore is the read contract detectors run against. The ingestion
// path is the only writer; detectors never mutate events.
type EventStore interface {
	// FindEvents returns events matching the filter, sorted by timestamp
	// (ascending when asc is true).
	FindEvents(ctx context.Context, f EventFilter, asc bool) ([]Event, error)

	// GroupEvents groups matching events by the given key fields and
	// returns count, first/last timestamp and the requested accumulations
	// per group.
	GroupEvents(ctx context.Context, f EventFilter, keys []string, opts GroupOptions) ([]GroupResult, error)
}

// AlertKey identifies the open alert a new draft would merge into:
// same type and source IP, optionally the same leading attack-chain tag,
// created at or after the detector's window start.
type AlertKey struct {
	AlertType string
	SourceIP  string
	ChainTag  string
	Since     time.Time
}

// AlertStore is the alert persistence contract. Multiple detectors read
// and write it concurrently; implementations must tolerate concurrent
// inserts and updates for distinct and colliding keys.
type AlertStore interface {
	// FindActive returns the newest non-false-positive alert matching the
	// key, or nil when none exists.
	FindActive(ctx context.Context, key AlertKey) (*Alert, error)

	// Insert stores a new alert.
	Insert(ctx context.Context, alert *Alert) error

	// UpdateFields overwrites the named fields of an alert by ID.
	UpdateFields(ctx context.Context, alertID string, fields map[string]interface{}) error
}
