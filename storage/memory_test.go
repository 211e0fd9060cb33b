package storage

import (
	"context"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(minute int) time.Time {
	return time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)
}

func TestMemoryEventStore_FindEvents(t *testing.T) {
	store := NewMemoryEventStore()
	store.Add(
		core.Event{EventID: "a", Timestamp: ts(3), EventCode: 4625, SourceIP: "10.0.0.1"},
		core.Event{EventID: "b", Timestamp: ts(1), EventCode: 4625, SourceIP: "10.0.0.1"},
		core.Event{EventID: "c", Timestamp: ts(2), EventCode: 4624, SourceIP: "10.0.0.2"},
	)

	got, err := store.FindEvents(context.Background(), core.EventFilter{EventCode: 4625}, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].EventID)
	assert.Equal(t, "a", got[1].EventID)

	got, err = store.FindEvents(context.Background(), core.EventFilter{}, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].EventID)
}

func TestMemoryEventStore_GroupEvents(t *testing.T) {
	store := NewMemoryEventStore()
	store.Add(
		core.Event{EventID: "e1", Timestamp: ts(1), EventCode: 4625, SourceIP: "10.0.0.1", Username: "alice"},
		core.Event{EventID: "e2", Timestamp: ts(5), EventCode: 4625, SourceIP: "10.0.0.1", Username: "bob"},
		core.Event{EventID: "e3", Timestamp: ts(3), EventCode: 4625, SourceIP: "10.0.0.1", Username: "alice"},
		core.Event{EventID: "e4", Timestamp: ts(4), EventCode: 4625, SourceIP: "10.0.0.2", Username: ""},
	)

	groups, err := store.GroupEvents(context.Background(), core.EventFilter{EventCode: 4625},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldUsername}, Push: []string{core.FieldUsername}})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	first := groups[0]
	assert.Equal(t, "10.0.0.1", first.Key(core.FieldSourceIP))
	assert.Equal(t, 3, first.Count)
	assert.Equal(t, ts(1), first.FirstSeen)
	assert.Equal(t, ts(5), first.LastSeen)
	assert.Equal(t, []string{"e1", "e3", "e2"}, first.EventIDs)
	assert.Equal(t, []string{"alice", "bob"}, first.Set(core.FieldUsername))
	assert.Equal(t, []string{"alice", "alice", "bob"}, first.List(core.FieldUsername))

	// Empty values are excluded from sets and lists but still counted.
	second := groups[1]
	assert.Equal(t, "10.0.0.2", second.Key(core.FieldSourceIP))
	assert.Equal(t, 1, second.Count)
	assert.Empty(t, second.Set(core.FieldUsername))
	assert.Empty(t, second.List(core.FieldUsername))
}

func TestMemoryEventStore_GroupByUserAndHour(t *testing.T) {
	store := NewMemoryEventStore()
	store.Add(
		core.Event{EventID: "e1", Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), EventCode: 4624, Username: "alice"},
		core.Event{EventID: "e2", Timestamp: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), EventCode: 4624, Username: "svc", TargetUsername: "alice"},
		core.Event{EventID: "e3", Timestamp: time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC), EventCode: 4624, Username: "alice"},
	)

	groups, err := store.GroupEvents(context.Background(), core.EventFilter{EventCode: 4624},
		[]string{core.FieldUser, core.FieldHour}, core.GroupOptions{})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// target_username coalesces into the same "alice" group.
	assert.Equal(t, "alice", groups[0].Key(core.FieldUser))
	assert.Equal(t, "9", groups[0].Key(core.FieldHour))
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "22", groups[1].Key(core.FieldHour))
	assert.Equal(t, 1, groups[1].Count)
}

func TestMemoryAlertStore_FindActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAlertStore()

	old := core.NewAlert(core.AlertSSHBruteForce, "198.51.100.9", core.SeverityHigh)
	old.CreatedAt = ts(0)
	require.NoError(t, store.Insert(ctx, old))

	recent := core.NewAlert(core.AlertSSHBruteForce, "198.51.100.9", core.SeverityHigh)
	recent.CreatedAt = ts(10)
	recent.AttackChain = []string{"failed_logon", "ssh_brute_force"}
	require.NoError(t, store.Insert(ctx, recent))

	fp := core.NewAlert(core.AlertSSHBruteForce, "198.51.100.9", core.SeverityHigh)
	fp.CreatedAt = ts(20)
	fp.FalsePositive = true
	require.NoError(t, store.Insert(ctx, fp))

	// Newest non-false-positive match wins.
	got, err := store.FindActive(ctx, core.AlertKey{AlertType: core.AlertSSHBruteForce, SourceIP: "198.51.100.9", Since: ts(5)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, recent.AlertID, got.AlertID)

	// Chain tag restricts to alerts whose chain starts with it.
	got, err = store.FindActive(ctx, core.AlertKey{AlertType: core.AlertSSHBruteForce, SourceIP: "198.51.100.9", ChainTag: "failed_logon", Since: ts(5)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, recent.AlertID, got.AlertID)

	got, err = store.FindActive(ctx, core.AlertKey{AlertType: core.AlertSSHBruteForce, SourceIP: "198.51.100.9", ChainTag: "rdp_connection", Since: ts(5)})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Since excludes everything older.
	got, err = store.FindActive(ctx, core.AlertKey{AlertType: core.AlertSSHBruteForce, SourceIP: "198.51.100.9", Since: ts(15)})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Different source IP never matches.
	got, err = store.FindActive(ctx, core.AlertKey{AlertType: core.AlertSSHBruteForce, SourceIP: "203.0.113.1", Since: ts(0)})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryAlertStore_UpdateFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAlertStore()

	alert := core.NewAlert(core.AlertLateralMovement, "10.0.0.4", core.SeverityHigh)
	require.NoError(t, store.Insert(ctx, alert))

	err := store.UpdateFields(ctx, alert.AlertID, map[string]interface{}{
		"count":             12,
		"severity":          core.SeverityCritical,
		"confidence_score":  90,
		"last_seen":         ts(30),
		"correlated_events": []string{"e1", "e2"},
		"notes":             "escalated",
	})
	require.NoError(t, err)

	got := store.All()[0]
	assert.Equal(t, 12, got.Count)
	assert.Equal(t, core.SeverityCritical, got.Severity)
	assert.Equal(t, 90, got.ConfidenceScore)
	assert.Equal(t, ts(30), got.LastSeen)
	assert.Equal(t, []string{"e1", "e2"}, got.CorrelatedEvents)
	assert.Equal(t, "escalated", got.Notes)

	assert.ErrorIs(t, store.UpdateFields(ctx, "missing", map[string]interface{}{"count": 1}), ErrAlertNotFound)
	assert.Error(t, store.UpdateFields(ctx, alert.AlertID, map[string]interface{}{"bogus": 1}))
}
