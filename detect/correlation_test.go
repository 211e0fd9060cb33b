package detect

import (
	"context"
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCorrelationEngine(h *harness) *CorrelationEngine {
	return NewCorrelationEngine(h.events, h.dedup, true, 15, zap.NewNop().Sugar())
}

func TestCorrelation_FailedThenSuccessfulLogon(t *testing.T) {
	h := newHarness()
	failed := winEvent(core.CodeLogonFailure, 10, func(e *core.Event) {
		e.Username = "jdoe"
		e.SourceIP = "203.0.113.4"
		e.Status = core.StatusFailure
	})
	success := winEvent(core.CodeLogonSuccess, 5, func(e *core.Event) {
		e.Username = "jdoe"
		e.SourceIP = "203.0.113.4"
	})
	h.events.Add(failed, success)

	created, err := newCorrelationEngine(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, core.AlertCorrelatedAttack, a.AlertType)
	assert.Equal(t, core.SeverityHigh, a.Severity)
	assert.Equal(t, 85, a.ConfidenceScore)
	assert.Equal(t, []string{"brute_force_to_success", "failed_logon", "successful_logon"}, a.AttackChain)
	assert.Equal(t, 2, a.Count)
	// Matched events are reported in chronological order.
	assert.Equal(t, []string{failed.EventID, success.EventID}, a.CorrelatedEvents)
	assert.Equal(t, failed.Timestamp, a.FirstSeen)
	assert.Equal(t, success.Timestamp, a.LastSeen)
	assert.Contains(t, a.Description, "jdoe")
}

func TestCorrelation_OrderMatters(t *testing.T) {
	h := newHarness()
	// Success before failure does not match brute_force_to_success.
	h.events.Add(
		winEvent(core.CodeLogonSuccess, 10, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "203.0.113.4"
		}),
		winEvent(core.CodeLogonFailure, 5, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "203.0.113.4"
			e.Status = core.StatusFailure
		}),
	)

	created, err := newCorrelationEngine(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, h.alerts.All())
}

func TestCorrelation_SeparateIPsDoNotChain(t *testing.T) {
	h := newHarness()
	h.events.Add(
		winEvent(core.CodeLogonFailure, 10, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "203.0.113.4"
			e.Status = core.StatusFailure
		}),
		winEvent(core.CodeLogonSuccess, 5, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "198.51.100.7"
		}),
	)

	created, err := newCorrelationEngine(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestCorrelation_AdminLogonToLateralMovement(t *testing.T) {
	h := newHarness()
	h.events.Add(
		winEvent(core.CodeAdminLogon, 10, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "10.0.0.5"
		}),
		winEvent(core.CodeExplicitCredentials, 5, func(e *core.Event) {
			e.Username = "jdoe"
			e.SourceIP = "10.0.0.5"
		}),
	)

	created, err := newCorrelationEngine(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, core.SeverityCritical, a.Severity)
	assert.Equal(t, "privilege_escalation_to_lateral_movement", a.ChainTag())
}

func TestCorrelation_MixedSSHAndWindowsTags(t *testing.T) {
	h := newHarness()
	// SSH failure followed by a Windows logon from the same IP and user.
	fail := sshFailure("203.0.113.4", "jdoe", 12)
	success := winEvent(core.CodeLogonSuccess, 3, func(e *core.Event) {
		e.Username = "jdoe"
		e.SourceIP = "203.0.113.4"
	})
	h.events.Add(fail, success)

	created, err := newCorrelationEngine(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestPatternTag(t *testing.T) {
	tests := []struct {
		name  string
		event core.Event
		tag   string
	}{
		{"windows_failure", core.Event{EventCode: 4625}, "failed_logon"},
		{"ssh_failure", core.Event{EventType: "ssh_login", Status: core.StatusFailure}, "failed_logon"},
		{"windows_success", core.Event{EventCode: 4624}, "successful_logon"},
		{"ssh_success", core.Event{EventType: "ssh_login", Status: core.StatusSuccess}, "successful_logon"},
		{"admin", core.Event{EventCode: 4672}, "admin_logon"},
		{"explicit", core.Event{EventCode: 4648}, "explicit_credentials"},
		{"process", core.Event{EventCode: 4688}, "process_creation"},
		{"share", core.Event{EventCode: 5145}, "network_share_access"},
		{"unrelated", core.Event{EventCode: 4657}, ""},
		{"http", core.Event{EventType: "http_request", Status: core.StatusFailure}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tag, patternTag(&tt.event))
		})
	}
}
