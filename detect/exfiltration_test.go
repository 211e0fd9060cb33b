package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newExfilDetector(h *harness) *DataExfiltrationDetector {
	return NewDataExfiltrationDetector(h.events, h.dedup, true, 10, zap.NewNop().Sugar())
}

func addShareAccess(h *harness, sourceIP, username, filePath string, minutesAgo int) {
	h.events.Add(winEvent(core.CodeNetworkShareAccess, minutesAgo, func(e *core.Event) {
		e.SourceIP = sourceIP
		e.Username = username
		e.FilePath = filePath
	}))
}

func TestExfiltration_SensitiveFileAccess(t *testing.T) {
	h := newHarness()
	addShareAccess(h, "10.0.0.5", "jdoe", `\\FS-01\finance\passwords.xlsx`, 5)
	for i := 0; i < 4; i++ {
		addShareAccess(h, "10.0.0.5", "jdoe", fmt.Sprintf(`\\FS-01\public\report_%d.txt`, i), i)
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, core.AlertDataExfiltration, a.AlertType)
	assert.Equal(t, core.SeverityCritical, a.Severity)
	assert.Equal(t, 85, a.ConfidenceScore)
	assert.Contains(t, a.Tags, "sensitive_data")
	assert.Contains(t, a.Description, "passwords.xlsx")
	assert.Equal(t, []string{"network_share_access", "data_access", "potential_exfiltration"}, a.AttackChain)
}

func TestExfiltration_BulkAccessWithoutSensitiveFiles(t *testing.T) {
	h := newHarness()
	for i := 0; i < 20; i++ {
		addShareAccess(h, "10.0.0.5", "jdoe", fmt.Sprintf(`\\FS-01\public\doc_%d.txt`, i), i%10)
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, core.SeverityHigh, a.Severity)
	assert.Equal(t, 70, a.ConfidenceScore)
	assert.Contains(t, a.Tags, "bulk_access")
}

func TestExfiltration_ModerateBenignAccessIgnored(t *testing.T) {
	h := newHarness()
	for i := 0; i < 10; i++ {
		addShareAccess(h, "10.0.0.5", "jdoe", fmt.Sprintf(`\\FS-01\public\doc_%d.txt`, i), i)
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, h.alerts.All())
}

func TestExfiltration_AfterHoursAccess(t *testing.T) {
	h := newHarness()
	night := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := winEvent(core.CodeNetworkShareAccess, 0, func(e *core.Event) {
			e.SourceIP = "10.0.0.5"
			e.Username = "jdoe"
		})
		e.Timestamp = night.Add(-time.Duration(i) * time.Minute)
		h.events.Add(e)
	}

	created, err := newExfilDetector(h).Detect(context.Background(), night)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, []string{"after_hours_access", "unusual_pattern", "potential_exfiltration"}, a.AttackChain)
	assert.Equal(t, 65, a.ConfidenceScore)
	assert.Contains(t, a.Description, "outside business hours")
}

func TestExfiltration_BusinessHoursAccessNotAfterHours(t *testing.T) {
	h := newHarness()
	// testNow is midday; access volume alone does not make it unusual.
	for i := 0; i < 5; i++ {
		h.events.Add(winEvent(core.CodeNetworkShareAccess, i, func(e *core.Event) {
			e.SourceIP = "10.0.0.5"
			e.Username = "jdoe"
		}))
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestExfiltration_ExternalIP(t *testing.T) {
	h := newHarness()
	for i := 0; i < 7; i++ {
		h.events.Add(winEvent(core.CodeNetworkShareAccess, i, func(e *core.Event) {
			e.SourceIP = "203.0.113.77"
			e.Username = "jdoe"
		}))
	}
	for i := 0; i < 4; i++ {
		h.events.Add(winEvent(core.CodeLogonSuccess, i, func(e *core.Event) {
			e.SourceIP = "203.0.113.77"
			e.Username = "jdoe"
			e.LogonType = core.LogonTypeNetwork
		}))
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	a := h.alerts.All()[0]
	assert.Equal(t, []string{"external_connection", "network_share_access", "potential_exfiltration"}, a.AttackChain)
	assert.Equal(t, 70, a.ConfidenceScore)
	assert.Equal(t, 11, a.Count) // share accesses plus network logons
}

func TestExfiltration_PrivateIPNeverExternal(t *testing.T) {
	h := newHarness()
	for i := 0; i < 15; i++ {
		h.events.Add(winEvent(core.CodeNetworkShareAccess, i%10, func(e *core.Event) {
			e.SourceIP = "192.168.1.50"
			e.Username = "jdoe"
		}))
	}

	created, err := newExfilDetector(h).Detect(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestTruncateList(t *testing.T) {
	assert.Equal(t, "a, b", truncateList([]string{"a", "b"}, 3))
	assert.Equal(t, "a, b, c...", truncateList([]string{"a", "b", "c", "d"}, 3))
}
