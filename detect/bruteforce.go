package detect

import (
	"context"
	"fmt"
	"time"

	"argus/config"
	"argus/core"

	"go.uber.org/zap"
)

// SSHBruteForceDetector raises an alert when one source IP accumulates
// enough failed SSH logins inside the lookback window.
type SSHBruteForceDetector struct {
	events core.EventStore
	dedup  *Deduplicator
	cfg    config.DetectorConfig
	logger *zap.SugaredLogger
}

func NewSSHBruteForceDetector(events core.EventStore, dedup *Deduplicator, cfg config.DetectorConfig, logger *zap.SugaredLogger) *SSHBruteForceDetector {
	return &SSHBruteForceDetector{events: events, dedup: dedup, cfg: cfg, logger: logger}
}

func (d *SSHBruteForceDetector) Name() string  { return "ssh_brute_force" }
func (d *SSHBruteForceDetector) Enabled() bool { return d.cfg.Enabled }

func (d *SSHBruteForceDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.cfg.Enabled {
		return 0, nil
	}
	start := windowStart(now, d.cfg.WindowMinutes)

	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:      start,
			EventType: "ssh_login",
			Status:    core.StatusFailure,
		},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldUsername}},
	)
	if err != nil {
		return 0, fmt.Errorf("ssh brute force query: %w", err)
	}

	created := 0
	for _, g := range groups {
		if g.Count < d.cfg.Threshold {
			continue
		}
		sourceIP := g.Key(core.FieldSourceIP)

		alert := core.NewAlert(core.AlertSSHBruteForce, sourceIP, bruteForceSeverity(g.Count, d.cfg.Threshold))
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"failed_logon", "ssh_brute_force"}
		alert.ConfidenceScore = bruteForceConfidence(g.Count, d.cfg.Threshold)
		alert.Tags = []string{"brute_force", "ssh"}
		alert.Description = fmt.Sprintf(
			"SSH brute force attack detected from %s. %d failed login attempts in the last %d minutes. Attempted usernames: %s",
			sourceIP, g.Count, d.cfg.WindowMinutes, joinOrDefault(g.Set(core.FieldUsername), "various"))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertSSHBruteForce,
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

// RDPBruteForceDetector raises an alert when one source IP accumulates
// enough failed RDP logons (event code 4625, logon type 10) inside the
// lookback window.
type RDPBruteForceDetector struct {
	events core.EventStore
	dedup  *Deduplicator
	cfg    config.DetectorConfig
	logger *zap.SugaredLogger
}

func NewRDPBruteForceDetector(events core.EventStore, dedup *Deduplicator, cfg config.DetectorConfig, logger *zap.SugaredLogger) *RDPBruteForceDetector {
	return &RDPBruteForceDetector{events: events, dedup: dedup, cfg: cfg, logger: logger}
}

func (d *RDPBruteForceDetector) Name() string  { return "rdp_brute_force" }
func (d *RDPBruteForceDetector) Enabled() bool { return d.cfg.Enabled }

func (d *RDPBruteForceDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.cfg.Enabled {
		return 0, nil
	}
	start := windowStart(now, d.cfg.WindowMinutes)

	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:      start,
			EventCode: core.CodeLogonFailure,
			LogonType: core.LogonTypeRemoteInteractive,
		},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldTargetUsername}},
	)
	if err != nil {
		return 0, fmt.Errorf("rdp brute force query: %w", err)
	}

	created := 0
	for _, g := range groups {
		if g.Count < d.cfg.Threshold {
			continue
		}
		sourceIP := g.Key(core.FieldSourceIP)

		alert := core.NewAlert(core.AlertRDPBruteForce, sourceIP, bruteForceSeverity(g.Count, d.cfg.Threshold))
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"failed_logon", "rdp_brute_force"}
		alert.ConfidenceScore = bruteForceConfidence(g.Count, d.cfg.Threshold)
		alert.Tags = []string{"brute_force", "rdp", "windows"}
		alert.Description = fmt.Sprintf(
			"RDP brute force attack detected from %s. %d failed RDP login attempts (Event ID 4625, Logon Type 10) in the last %d minutes. Attempted usernames: %s",
			sourceIP, g.Count, d.cfg.WindowMinutes, joinOrDefault(g.Set(core.FieldTargetUsername), "various"))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertRDPBruteForce,
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

func bruteForceSeverity(count, threshold int) string {
	if count >= threshold*2 {
		return core.SeverityCritical
	}
	return core.SeverityHigh
}

func bruteForceConfidence(count, threshold int) int {
	if count >= threshold*2 {
		return 90
	}
	return 75
}
