package detect

import (
	"context"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicator_UpsertInsertsWhenNoMatch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	draft := core.NewAlert(core.AlertSSHBruteForce, "203.0.113.7", core.SeverityHigh)
	draft.Count = 6
	draft.AttackChain = []string{"failed_logon", "ssh_brute_force"}

	created, err := h.dedup.Upsert(ctx, draft, core.AlertKey{
		AlertType: core.AlertSSHBruteForce,
		SourceIP:  "203.0.113.7",
		Since:     testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, h.alerts.All(), 1)
}

func TestDeduplicator_UpsertMergesIntoOpenAlert(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	key := core.AlertKey{
		AlertType: core.AlertSSHBruteForce,
		SourceIP:  "203.0.113.7",
		Since:     testNow.Add(-time.Hour),
	}

	first := core.NewAlert(core.AlertSSHBruteForce, "203.0.113.7", core.SeverityHigh)
	first.Count = 6
	first.ConfidenceScore = 75
	first.Description = "first description"
	created, err := h.dedup.Upsert(ctx, first, key)
	require.NoError(t, err)
	require.True(t, created)

	// Triage happens between cycles.
	require.NoError(t, h.alerts.UpdateFields(ctx, first.AlertID, map[string]interface{}{
		"acknowledged":    true,
		"acknowledged_by": "analyst3",
		"notes":           "under investigation",
	}))

	second := core.NewAlert(core.AlertSSHBruteForce, "203.0.113.7", core.SeverityCritical)
	second.Count = 14
	second.ConfidenceScore = 90
	second.LastSeen = testNow
	second.CorrelatedEvents = []string{"e1", "e2"}
	second.Description = "second description"
	created, err = h.dedup.Upsert(ctx, second, key)
	require.NoError(t, err)
	assert.False(t, created)

	all := h.alerts.All()
	require.Len(t, all, 1)
	merged := all[0]

	// Activity fields are refreshed.
	assert.Equal(t, 14, merged.Count)
	assert.Equal(t, core.SeverityCritical, merged.Severity)
	assert.Equal(t, 90, merged.ConfidenceScore)
	assert.Equal(t, testNow, merged.LastSeen)
	assert.Equal(t, []string{"e1", "e2"}, merged.CorrelatedEvents)

	// Triage fields and the original description survive the merge.
	assert.True(t, merged.Acknowledged)
	assert.Equal(t, "analyst3", merged.AcknowledgedBy)
	assert.Equal(t, "under investigation", merged.Notes)
	assert.Equal(t, "first description", merged.Description)
}

func TestDeduplicator_DismissedAlertsDoNotAbsorbNewOnes(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	key := core.AlertKey{
		AlertType: core.AlertMalware,
		SourceIP:  "10.0.0.8",
		Since:     testNow.Add(-time.Hour),
	}

	first := core.NewAlert(core.AlertMalware, "10.0.0.8", core.SeverityHigh)
	created, err := h.dedup.Upsert(ctx, first, key)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, h.alerts.UpdateFields(ctx, first.AlertID, map[string]interface{}{"false_positive": true}))

	second := core.NewAlert(core.AlertMalware, "10.0.0.8", core.SeverityHigh)
	created, err = h.dedup.Upsert(ctx, second, key)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, h.alerts.All(), 2)
}

func TestDeduplicator_InsertBypassesDedup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	a := core.NewAlert(core.AlertCompliance, "10.0.0.2", core.SeverityHigh)
	b := core.NewAlert(core.AlertCompliance, "10.0.0.2", core.SeverityHigh)
	require.NoError(t, h.dedup.Insert(ctx, a))
	require.NoError(t, h.dedup.Insert(ctx, b))
	assert.Len(t, h.alerts.All(), 2)
}
