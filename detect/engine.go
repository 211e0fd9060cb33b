package detect

import (
	"context"
	"sync"
	"time"

	"argus/metrics"

	"go.uber.org/zap"
)

// DetectorStats accumulates per-detector run counters and a rolling
// average cycle duration.
type DetectorStats struct {
	Runs    int     `json:"runs"`
	Alerts  int     `json:"alerts"`
	AvgTime float64 `json:"avg_time_ms"`
}

// EngineStats is a snapshot of the scheduler's counters.
type EngineStats struct {
	Running       bool                     `json:"running"`
	DetectorCount int                      `json:"detector_count"`
	TotalRuns     int                      `json:"total_runs"`
	TotalAlerts   int                      `json:"total_alerts"`
	Detectors     map[string]DetectorStats `json:"detectors"`
}

// Engine drives detection cycles on a fixed interval. Each cycle fans
// out all detectors concurrently and fans back in before closing; a
// failing detector is isolated and contributes zero alerts. Cycles are
// not serialized against each other: a slow cycle may overlap the next
// tick.
type Engine struct {
	detectors []Detector
	interval  time.Duration
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	running     bool
	totalRuns   int
	totalAlerts int
	stats       map[string]*DetectorStats

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEngine creates a scheduler over the given detector list. The list
// order is kept for status reporting; it does not order execution.
func NewEngine(detectors []Detector, interval time.Duration, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		detectors: detectors,
		interval:  interval,
		logger:    logger,
		stats:     map[string]*DetectorStats{},
	}
}

// Start runs one cycle immediately, then one per interval until Stop.
func (en *Engine) Start(ctx context.Context) {
	en.mu.Lock()
	if en.running {
		en.mu.Unlock()
		en.logger.Warn("Detection engine already running")
		return
	}
	en.running = true
	en.stop = make(chan struct{})
	en.mu.Unlock()

	en.logger.Infof("Detection engine started (checking every %s)", en.interval)
	en.logger.Infof("Loaded %d detectors", len(en.detectors))

	en.RunCycle(ctx, time.Now().UTC())

	en.wg.Add(1)
	go func() {
		defer en.wg.Done()
		ticker := time.NewTicker(en.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Overlap with a still-running cycle is allowed.
				go en.RunCycle(ctx, time.Now().UTC())
			case <-en.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the timer. Cycles already in flight run to completion.
func (en *Engine) Stop() {
	en.mu.Lock()
	if !en.running {
		en.mu.Unlock()
		return
	}
	en.running = false
	close(en.stop)
	en.mu.Unlock()

	en.wg.Wait()
	en.logger.Info("Detection engine stopped")
}

type cycleResult struct {
	name     string
	alerts   int
	duration time.Duration
	err      error
}

// RunCycle executes every detector once, concurrently, and folds the
// results into the engine counters.
func (en *Engine) RunCycle(ctx context.Context, now time.Time) {
	cycleStart := time.Now()
	results := make(chan cycleResult, len(en.detectors))

	for _, det := range en.detectors {
		go func(det Detector) {
			start := time.Now()
			alerts, err := runDetector(ctx, det, now)
			results <- cycleResult{
				name:     det.Name(),
				alerts:   alerts,
				duration: time.Since(start),
				err:      err,
			}
		}(det)
	}

	totalAlerts := 0
	for range en.detectors {
		r := <-results
		if r.err != nil {
			en.logger.Errorf("Error in detector %s: %v", r.name, r.err)
			metrics.DetectorErrors.WithLabelValues(r.name).Inc()
		}
		totalAlerts += r.alerts
		en.recordRun(r)
	}

	duration := time.Since(cycleStart)
	metrics.DetectionCycleDuration.Observe(duration.Seconds())

	en.mu.Lock()
	en.totalRuns++
	en.totalAlerts += totalAlerts
	en.mu.Unlock()

	en.logger.Debugf("Detection cycle completed in %s. Alerts: %d", duration, totalAlerts)
}

// runDetector isolates a detector invocation, converting panics into
// errors so one detector cannot take down the cycle.
func runDetector(ctx context.Context, det Detector, now time.Time) (alerts int, err error) {
	defer func() {
		if r := recover(); r != nil {
			alerts = 0
			err = &detectorPanicError{detector: det.Name(), value: r}
		}
	}()
	return det.Detect(ctx, now)
}

type detectorPanicError struct {
	detector string
	value    interface{}
}

func (e *detectorPanicError) Error() string {
	return "detector panic: " + e.detector
}

func (en *Engine) recordRun(r cycleResult) {
	en.mu.Lock()
	defer en.mu.Unlock()

	s, ok := en.stats[r.name]
	if !ok {
		s = &DetectorStats{}
		en.stats[r.name] = s
	}
	s.Runs++
	s.Alerts += r.alerts
	ms := float64(r.duration.Milliseconds())
	s.AvgTime = (s.AvgTime*float64(s.Runs-1) + ms) / float64(s.Runs)
}

// Stats returns a snapshot of the engine counters.
func (en *Engine) Stats() EngineStats {
	en.mu.Lock()
	defer en.mu.Unlock()

	detectors := make(map[string]DetectorStats, len(en.stats))
	for name, s := range en.stats {
		detectors[name] = *s
	}
	return EngineStats{
		Running:       en.running,
		DetectorCount: len(en.detectors),
		TotalRuns:     en.totalRuns,
		TotalAlerts:   en.totalAlerts,
		Detectors:     detectors,
	}
}

// DetectorStatus lists each detector with its enabled flag, in
// composition order.
func (en *Engine) DetectorStatus() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(en.detectors))
	for _, det := range en.detectors {
		out = append(out, map[string]interface{}{
			"name":    det.Name(),
			"enabled": det.Enabled(),
		})
	}
	return out
}
