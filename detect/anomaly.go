package detect

import (
	"context"
	"fmt"
	"math"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// AnomalyDetector compares the last hour of activity against a
// multi-day per-user baseline: logon counts per hour of day, known
// source IPs, and known processes.
type AnomalyDetector struct {
	events       core.EventStore
	dedup        *Deduplicator
	enabled      bool
	baselineDays int
	threshold    float64 // standard deviations
	logger       *zap.SugaredLogger
}

func NewAnomalyDetector(events core.EventStore, dedup *Deduplicator, enabled bool, baselineDays int, threshold float64, logger *zap.SugaredLogger) *AnomalyDetector {
	return &AnomalyDetector{
		events:       events,
		dedup:        dedup,
		enabled:      enabled,
		baselineDays: baselineDays,
		threshold:    threshold,
		logger:       logger,
	}
}

func (d *AnomalyDetector) Name() string  { return "anomaly_detection" }
func (d *AnomalyDetector) Enabled() bool { return d.enabled }

func (d *AnomalyDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	baselineStart := now.Add(-time.Duration(d.baselineDays) * 24 * time.Hour)
	currentStart := now.Add(-time.Hour)

	drafts, err := d.logonTimeAnomalies(ctx, baselineStart, currentStart, now)
	if err != nil {
		return 0, err
	}

	more, err := d.locationAnomalies(ctx, baselineStart, currentStart, now)
	if err != nil {
		return 0, err
	}
	drafts = append(drafts, more...)

	more, err = d.processAnomalies(ctx, baselineStart, currentStart, now)
	if err != nil {
		return 0, err
	}
	drafts = append(drafts, more...)

	created := 0
	for _, alert := range drafts {
		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertAnomaly,
			SourceIP:  alert.SourceIP,
			Since:     currentStart,
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

type hourBaseline struct {
	mean   float64
	stddev float64
}

// logonTimeAnomalies flags users whose last-hour logon count deviates
// from their per-hour baseline by more than the configured number of
// standard deviations.
func (d *AnomalyDetector) logonTimeAnomalies(ctx context.Context, baselineStart, currentStart, now time.Time) ([]*core.Alert, error) {
	baseline, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: baselineStart, To: currentStart, EventCode: core.CodeLogonSuccess},
		[]string{core.FieldUsername, core.FieldHour},
		core.GroupOptions{},
	)
	if err != nil {
		return nil, fmt.Errorf("logon baseline query: %w", err)
	}

	countsByUser := map[string][]float64{}
	for _, g := range baseline {
		user := g.Key(core.FieldUsername)
		countsByUser[user] = append(countsByUser[user], float64(g.Count))
	}
	baselines := map[string]hourBaseline{}
	for user, counts := range countsByUser {
		mean, stddev := meanStddev(counts)
		if stddev == 0 {
			stddev = 1
		}
		baselines[user] = hourBaseline{mean: mean, stddev: stddev}
	}

	current, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: currentStart, EventCode: core.CodeLogonSuccess},
		[]string{core.FieldUsername, core.FieldHour},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldSourceIP}},
	)
	if err != nil {
		return nil, fmt.Errorf("logon current query: %w", err)
	}

	var drafts []*core.Alert
	for _, g := range current {
		user := g.Key(core.FieldUsername)
		b, ok := baselines[user]
		if !ok {
			continue
		}
		z := (float64(g.Count) - b.mean) / b.stddev
		if z <= d.threshold {
			continue
		}

		sourceIP := "unknown"
		if ips := g.Set(core.FieldSourceIP); len(ips) > 0 {
			sourceIP = ips[0]
		}
		severity := core.SeverityHigh
		if z > d.threshold*2 {
			severity = core.SeverityCritical
		}

		alert := core.NewAlert(core.AlertAnomaly, sourceIP, severity)
		alert.Count = g.Count
		alert.FirstSeen = currentStart
		alert.LastSeen = now
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"unusual_logon_time", "anomaly"}
		alert.ConfidenceScore = int(math.Min(90, 50+z*10))
		alert.Tags = []string{"anomaly", "unusual_pattern", "logon_time"}
		alert.Description = fmt.Sprintf(
			"Unusual logon pattern detected: User %s has %d logons at hour %s, which is %.2f standard deviations above baseline (avg: %.2f)",
			user, g.Count, g.Key(core.FieldHour), z, b.mean)
		drafts = append(drafts, alert)
	}
	return drafts, nil
}

// locationAnomalies flags logons from a source IP absent from the
// user's baseline IP set. Users with no baseline are skipped.
func (d *AnomalyDetector) locationAnomalies(ctx context.Context, baselineStart, currentStart, now time.Time) ([]*core.Alert, error) {
	baseline, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: baselineStart, To: currentStart, EventCode: core.CodeLogonSuccess},
		[]string{core.FieldUsername},
		core.GroupOptions{Collect: []string{core.FieldSourceIP}},
	)
	if err != nil {
		return nil, fmt.Errorf("location baseline query: %w", err)
	}
	knownIPs := map[string]map[string]bool{}
	for _, g := range baseline {
		ips := map[string]bool{}
		for _, ip := range g.Set(core.FieldSourceIP) {
			ips[ip] = true
		}
		knownIPs[g.Key(core.FieldUsername)] = ips
	}

	current, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: currentStart, EventCode: core.CodeLogonSuccess},
		[]string{core.FieldUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return nil, fmt.Errorf("location current query: %w", err)
	}

	var drafts []*core.Alert
	for _, g := range current {
		user := g.Key(core.FieldUsername)
		sourceIP := g.Key(core.FieldSourceIP)
		ips, ok := knownIPs[user]
		if !ok || ips[sourceIP] {
			continue
		}

		alert := core.NewAlert(core.AlertAnomaly, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = currentStart
		alert.LastSeen = now
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"unusual_location", "anomaly"}
		alert.ConfidenceScore = 75
		alert.Tags = []string{"anomaly", "unusual_pattern", "location"}
		alert.Description = fmt.Sprintf(
			"Unusual logon location: User %s logged in from %s, which is not in their baseline IP set",
			user, sourceIP)
		drafts = append(drafts, alert)
	}
	return drafts, nil
}

// processAnomalies flags process executions absent from the user's
// baseline process set.
func (d *AnomalyDetector) processAnomalies(ctx context.Context, baselineStart, currentStart, now time.Time) ([]*core.Alert, error) {
	baseline, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: baselineStart, To: currentStart, EventCode: core.CodeProcessCreation},
		[]string{core.FieldUsername},
		core.GroupOptions{Collect: []string{core.FieldProcessName}},
	)
	if err != nil {
		return nil, fmt.Errorf("process baseline query: %w", err)
	}
	knownProcs := map[string]map[string]bool{}
	for _, g := range baseline {
		procs := map[string]bool{}
		for _, p := range g.Set(core.FieldProcessName) {
			procs[p] = true
		}
		knownProcs[g.Key(core.FieldUsername)] = procs
	}

	current, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:          currentStart,
			EventCode:     core.CodeProcessCreation,
			RequireFields: []string{core.FieldProcessName},
		},
		[]string{core.FieldUsername, core.FieldProcessName, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return nil, fmt.Errorf("process current query: %w", err)
	}

	var drafts []*core.Alert
	for _, g := range current {
		user := g.Key(core.FieldUsername)
		process := g.Key(core.FieldProcessName)
		sourceIP := g.Key(core.FieldSourceIP)
		procs, ok := knownProcs[user]
		if !ok || procs[process] {
			continue
		}

		alert := core.NewAlert(core.AlertAnomaly, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = currentStart
		alert.LastSeen = now
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"unusual_process", "anomaly"}
		alert.ConfidenceScore = 70
		alert.Tags = []string{"anomaly", "unusual_pattern", "process"}
		alert.Description = fmt.Sprintf(
			"Unusual process execution: User %s executed %s from %s, which is not in their baseline process set",
			user, process, sourceIP)
		drafts = append(drafts, alert)
	}
	return drafts, nil
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
