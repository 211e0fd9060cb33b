package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDetector struct {
	name    string
	enabled bool
	alerts  int
	err     error
	panics  bool
	calls   int
}

func (s *stubDetector) Name() string  { return s.name }
func (s *stubDetector) Enabled() bool { return s.enabled }

func (s *stubDetector) Detect(context.Context, time.Time) (int, error) {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.alerts, s.err
}

func TestEngine_RunCycleAccumulatesStats(t *testing.T) {
	a := &stubDetector{name: "a", enabled: true, alerts: 2}
	b := &stubDetector{name: "b", enabled: true, alerts: 3}
	en := NewEngine([]Detector{a, b}, time.Minute, zap.NewNop().Sugar())

	en.RunCycle(context.Background(), time.Now().UTC())
	en.RunCycle(context.Background(), time.Now().UTC())

	stats := en.Stats()
	assert.Equal(t, 2, stats.DetectorCount)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 10, stats.TotalAlerts)
	assert.Equal(t, 2, stats.Detectors["a"].Runs)
	assert.Equal(t, 4, stats.Detectors["a"].Alerts)
	assert.Equal(t, 6, stats.Detectors["b"].Alerts)
}

func TestEngine_FailingDetectorIsIsolated(t *testing.T) {
	ok := &stubDetector{name: "ok", enabled: true, alerts: 1}
	bad := &stubDetector{name: "bad", enabled: true, err: errors.New("query timeout")}
	en := NewEngine([]Detector{ok, bad}, time.Minute, zap.NewNop().Sugar())

	en.RunCycle(context.Background(), time.Now().UTC())

	stats := en.Stats()
	assert.Equal(t, 1, stats.TotalAlerts)
	assert.Equal(t, 1, stats.Detectors["ok"].Alerts)
	assert.Equal(t, 1, stats.Detectors["bad"].Runs)
	assert.Equal(t, 0, stats.Detectors["bad"].Alerts)
}

func TestEngine_PanickingDetectorIsIsolated(t *testing.T) {
	ok := &stubDetector{name: "ok", enabled: true, alerts: 2}
	angry := &stubDetector{name: "angry", enabled: true, panics: true}
	en := NewEngine([]Detector{ok, angry}, time.Minute, zap.NewNop().Sugar())

	// Must not crash the cycle.
	en.RunCycle(context.Background(), time.Now().UTC())

	stats := en.Stats()
	assert.Equal(t, 2, stats.TotalAlerts)
	assert.Equal(t, 1, stats.Detectors["angry"].Runs)
}

func TestEngine_StartRunsImmediateCycleAndStops(t *testing.T) {
	d := &stubDetector{name: "d", enabled: true, alerts: 1}
	en := NewEngine([]Detector{d}, time.Hour, zap.NewNop().Sugar())

	en.Start(context.Background())
	assert.True(t, en.Stats().Running)
	require.Equal(t, 1, en.Stats().TotalRuns)

	en.Stop()
	assert.False(t, en.Stats().Running)

	// Stopping twice is a no-op.
	en.Stop()
}

func TestEngine_DetectorStatus(t *testing.T) {
	a := &stubDetector{name: "a", enabled: true}
	b := &stubDetector{name: "b", enabled: false}
	en := NewEngine([]Detector{a, b}, time.Minute, zap.NewNop().Sugar())

	status := en.DetectorStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "a", status[0]["name"])
	assert.Equal(t, true, status[0]["enabled"])
	assert.Equal(t, "b", status[1]["name"])
	assert.Equal(t, false, status[1]["enabled"])
}

func TestRunDetector_ConvertsPanicToError(t *testing.T) {
	angry := &stubDetector{name: "angry", enabled: true, panics: true}

	alerts, err := runDetector(context.Background(), angry, time.Now().UTC())
	assert.Zero(t, alerts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "angry")
}
