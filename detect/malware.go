package detect

import (
	"context"
	"fmt"
	"time"

	"argus/config"
	"argus/core"

	"go.uber.org/zap"
)

// MalwareDetector flags repeated suspicious process creations (4688)
// per (user, source IP), reusing the normalizer's suspicious-process
// pattern set.
type MalwareDetector struct {
	events core.EventStore
	dedup  *Deduplicator
	cfg    config.DetectorConfig
	logger *zap.SugaredLogger
}

func NewMalwareDetector(events core.EventStore, dedup *Deduplicator, cfg config.DetectorConfig, logger *zap.SugaredLogger) *MalwareDetector {
	return &MalwareDetector{events: events, dedup: dedup, cfg: cfg, logger: logger}
}

func (d *MalwareDetector) Name() string  { return "malware_detection" }
func (d *MalwareDetector) Enabled() bool { return d.cfg.Enabled }

func (d *MalwareDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.cfg.Enabled {
		return 0, nil
	}
	start := windowStart(now, d.cfg.WindowMinutes)

	// Pattern matching happens in Go so the process name and command
	// line are tested together, same as the normalizer does.
	events, err := d.events.FindEvents(ctx, core.EventFilter{
		From:      start,
		EventCode: core.CodeProcessCreation,
	}, true)
	if err != nil {
		return 0, fmt.Errorf("process creation query: %w", err)
	}

	type groupStats struct {
		count     int
		firstSeen time.Time
		lastSeen  time.Time
		eventIDs  []string
		processes []string
	}
	groups := map[[2]string]*groupStats{}
	var order [][2]string

	for i := range events {
		e := &events[i]
		if !core.IsSuspiciousProcess(e.ProcessName, e.CommandLine) {
			continue
		}
		key := [2]string{e.User(), e.SourceIP}
		g, ok := groups[key]
		if !ok {
			g = &groupStats{firstSeen: e.Timestamp, lastSeen: e.Timestamp}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		if e.Timestamp.Before(g.firstSeen) {
			g.firstSeen = e.Timestamp
		}
		if e.Timestamp.After(g.lastSeen) {
			g.lastSeen = e.Timestamp
		}
		g.eventIDs = append(g.eventIDs, e.EventID)
		if e.ProcessName != "" && !containsValue(g.processes, e.ProcessName) {
			g.processes = append(g.processes, e.ProcessName)
		}
	}

	created := 0
	for _, key := range order {
		g := groups[key]
		if g.count < d.cfg.Threshold {
			continue
		}
		username, sourceIP := key[0], key[1]

		severity := core.SeverityHigh
		confidence := 70
		if g.count >= d.cfg.Threshold*2 {
			severity = core.SeverityCritical
			confidence = 85
		}

		alert := core.NewAlert(core.AlertMalware, sourceIP, severity)
		alert.Count = g.count
		alert.FirstSeen = g.firstSeen
		alert.LastSeen = g.lastSeen
		alert.CorrelatedEvents = g.eventIDs
		alert.AttackChain = []string{"suspicious_process", "malware_execution"}
		alert.ConfidenceScore = confidence
		alert.Tags = []string{"malware", "suspicious_process", "windows"}
		alert.Description = fmt.Sprintf(
			"Suspicious process activity detected: User %s from %s executed %d suspicious processes (Event ID 4688) in the last %d minutes. Processes: %s",
			username, sourceIP, g.count, d.cfg.WindowMinutes, joinOrDefault(g.processes, "unknown"))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertMalware,
			SourceIP:  sourceIP,
			Since:     start,
		})
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

func containsValue(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
