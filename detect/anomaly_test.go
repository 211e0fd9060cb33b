package detect

import (
	"context"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAnomalyDetector(h *harness) *AnomalyDetector {
	return NewAnomalyDetector(h.events, h.dedup, true, 7, 2.5, zap.NewNop().Sugar())
}

// addLogon stores a 4624 at an absolute time.
func addLogon(h *harness, username, sourceIP string, at time.Time) {
	e := winEvent(core.CodeLogonSuccess, 0, func(e *core.Event) {
		e.Username = username
		e.SourceIP = sourceIP
	})
	e.Timestamp = at
	h.events.Add(e)
}

func TestAnomaly_LogonTimeSpike(t *testing.T) {
	h := newHarness()

	// Baseline: two logons at 09:00 on each of two prior days.
	for day := 1; day <= 2; day++ {
		at := testNow.AddDate(0, 0, -day).Truncate(24 * time.Hour).Add(9 * time.Hour)
		addLogon(h, "alice", "10.0.0.5", at)
		addLogon(h, "alice", "10.0.0.5", at.Add(10*time.Minute))
	}
	// Current hour: ten logons.
	for i := 0; i < 10; i++ {
		addLogon(h, "alice", "10.0.0.5", testNow.Add(-50*time.Minute).Add(time.Duration(i)*time.Minute))
	}

	created, err := newAnomalyDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, core.AlertAnomaly, a.AlertType)
	assert.Equal(t, core.SeverityCritical, a.Severity) // z = 8, beyond twice the threshold
	assert.Equal(t, 90, a.ConfidenceScore)
	assert.Equal(t, []string{"unusual_logon_time", "anomaly"}, a.AttackChain)
	assert.Contains(t, a.Description, "alice")
	assert.Contains(t, a.Description, "standard deviations above baseline")
}

func TestAnomaly_NormalActivityIsQuiet(t *testing.T) {
	h := newHarness()
	for day := 1; day <= 3; day++ {
		at := testNow.AddDate(0, 0, -day).Truncate(24 * time.Hour).Add(11 * time.Hour)
		addLogon(h, "alice", "10.0.0.5", at)
		addLogon(h, "alice", "10.0.0.5", at.Add(5*time.Minute))
	}
	// Current hour matches the baseline rate and IP.
	addLogon(h, "alice", "10.0.0.5", testNow.Add(-30*time.Minute))
	addLogon(h, "alice", "10.0.0.5", testNow.Add(-20*time.Minute))

	created, err := newAnomalyDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, h.alerts.All())
}

func TestAnomaly_UsersWithoutBaselineAreSkipped(t *testing.T) {
	h := newHarness()
	// First activity ever for this user; nothing to deviate from.
	for i := 0; i < 20; i++ {
		addLogon(h, "newhire", "10.0.0.9", testNow.Add(-time.Duration(i)*time.Minute))
	}

	created, err := newAnomalyDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestAnomaly_NewLocation(t *testing.T) {
	h := newHarness()
	for day := 1; day <= 2; day++ {
		at := testNow.AddDate(0, 0, -day).Truncate(24 * time.Hour).Add(9 * time.Hour)
		addLogon(h, "alice", "10.0.0.5", at)
		addLogon(h, "alice", "10.0.0.5", at.Add(10*time.Minute))
		addLogon(h, "alice", "10.0.0.5", at.Add(20*time.Minute))
	}
	// One logon from an address never seen for this user.
	addLogon(h, "alice", "203.0.113.8", testNow.Add(-15*time.Minute))

	created, err := newAnomalyDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, "203.0.113.8", a.SourceIP)
	assert.Equal(t, 75, a.ConfidenceScore)
	assert.Equal(t, []string{"unusual_location", "anomaly"}, a.AttackChain)
}

func TestAnomaly_NewProcess(t *testing.T) {
	h := newHarness()
	baselineAt := testNow.AddDate(0, 0, -2)
	e := winEvent(core.CodeProcessCreation, 0, func(e *core.Event) {
		e.Username = "alice"
		e.SourceIP = "10.0.0.5"
		e.ProcessName = "excel.exe"
	})
	e.Timestamp = baselineAt
	h.events.Add(e)

	current := winEvent(core.CodeProcessCreation, 0, func(e *core.Event) {
		e.Username = "alice"
		e.SourceIP = "10.0.0.5"
		e.ProcessName = "nc.exe"
	})
	current.Timestamp = testNow.Add(-10 * time.Minute)
	h.events.Add(current)

	created, err := newAnomalyDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, 70, a.ConfidenceScore)
	assert.Equal(t, []string{"unusual_process", "anomaly"}, a.AttackChain)
	assert.Contains(t, a.Description, "nc.exe")
}

func TestMeanStddev(t *testing.T) {
	mean, stddev := meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 0.0001)
	assert.InDelta(t, 2.0, stddev, 0.0001)

	mean, stddev = meanStddev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}
