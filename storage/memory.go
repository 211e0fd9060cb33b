package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"argus/core"
)

// MemoryEventStore is an in-memory core.EventStore. It backs detector
// tests and small deployments that run without MongoDB.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

// Add stores events.
func (ms *MemoryEventStore) Add(events ...core.Event) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events = append(ms.events, events...)
}

// FindEvents implements core.EventStore.
func (ms *MemoryEventStore) FindEvents(_ context.Context, f core.EventFilter, asc bool) ([]core.Event, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	matched := make([]core.Event, 0)
	for i := range ms.events {
		if f.Matches(&ms.events[i]) {
			matched = append(matched, ms.events[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if asc {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})
	return matched, nil
}

// GroupEvents implements core.EventStore. Groups appear in order of
// their first member's timestamp.
func (ms *MemoryEventStore) GroupEvents(_ context.Context, f core.EventFilter, keys []string, opts core.GroupOptions) ([]core.GroupResult, error) {
	matched, err := ms.FindEvents(context.Background(), f, true)
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	var results []core.GroupResult

	for i := range matched {
		e := &matched[i]
		groupKey := ""
		for _, key := range keys {
			groupKey += key + "=" + core.FieldValue(e, key) + ";"
		}

		pos, ok := index[groupKey]
		if !ok {
			gr := core.GroupResult{
				Keys:      map[string]string{},
				FirstSeen: e.Timestamp,
				LastSeen:  e.Timestamp,
				Sets:      map[string][]string{},
				Lists:     map[string][]string{},
			}
			for _, key := range keys {
				gr.Keys[key] = core.FieldValue(e, key)
			}
			index[groupKey] = len(results)
			results = append(results, gr)
			pos = index[groupKey]
		}

		gr := &results[pos]
		gr.Count++
		if e.Timestamp.Before(gr.FirstSeen) {
			gr.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(gr.LastSeen) {
			gr.LastSeen = e.Timestamp
		}
		if opts.CollectIDs {
			gr.EventIDs = append(gr.EventIDs, e.EventID)
		}
		for _, field := range opts.Collect {
			v := core.FieldValue(e, field)
			if v == "" {
				continue
			}
			if !containsString(gr.Sets[field], v) {
				gr.Sets[field] = append(gr.Sets[field], v)
			}
		}
		for _, field := range opts.Push {
			if v := core.FieldValue(e, field); v != "" {
				gr.Lists[field] = append(gr.Lists[field], v)
			}
		}
	}
	return results, nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// MemoryAlertStore is an in-memory core.AlertStore for tests.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []core.Alert
}

// NewMemoryAlertStore creates an empty in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

// FindActive implements core.AlertStore.
func (ms *MemoryAlertStore) FindActive(_ context.Context, key core.AlertKey) (*core.Alert, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var newest *core.Alert
	for i := range ms.alerts {
		a := &ms.alerts[i]
		if a.AlertType != key.AlertType || a.SourceIP != key.SourceIP {
			continue
		}
		if a.FalsePositive || a.CreatedAt.Before(key.Since) {
			continue
		}
		if key.ChainTag != "" && a.ChainTag() != key.ChainTag {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

// Insert implements core.AlertStore.
func (ms *MemoryAlertStore) Insert(_ context.Context, alert *core.Alert) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.alerts = append(ms.alerts, *alert)
	return nil
}

// UpdateFields implements core.AlertStore.
func (ms *MemoryAlertStore) UpdateFields(_ context.Context, alertID string, fields map[string]interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := range ms.alerts {
		a := &ms.alerts[i]
		if a.AlertID != alertID {
			continue
		}
		for field, value := range fields {
			switch field {
			case "count":
				a.Count = value.(int)
			case "severity":
				a.Severity = value.(string)
			case "confidence_score":
				a.ConfidenceScore = value.(int)
			case "last_seen":
				a.LastSeen = value.(time.Time)
			case "correlated_events":
				a.CorrelatedEvents = value.([]string)
			case "acknowledged":
				a.Acknowledged = value.(bool)
			case "acknowledged_at":
				a.AcknowledgedAt = value.(time.Time)
			case "acknowledged_by":
				a.AcknowledgedBy = value.(string)
			case "assigned_to":
				a.AssignedTo = value.(string)
			case "notes":
				a.Notes = value.(string)
			case "false_positive":
				a.FalsePositive = value.(bool)
			default:
				return fmt.Errorf("unknown alert field %q", field)
			}
		}
		return nil
	}
	return ErrAlertNotFound
}

// All returns a snapshot of every stored alert.
func (ms *MemoryAlertStore) All() []core.Alert {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]core.Alert, len(ms.alerts))
	copy(out, ms.alerts)
	return out
}
