package detect

import (
	"context"
	"fmt"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// ComplianceDetector audits a rolling 24-hour window: excessive failed
// authentications, heavy admin-privilege usage, and account lockouts.
type ComplianceDetector struct {
	events              core.EventStore
	dedup               *Deduplicator
	enabled             bool
	failedAuthThreshold int
	logger              *zap.SugaredLogger
}

const (
	complianceWindow    = 24 * time.Hour
	adminUsageThreshold = 10
)

func NewComplianceDetector(events core.EventStore, dedup *Deduplicator, enabled bool, failedAuthThreshold int, logger *zap.SugaredLogger) *ComplianceDetector {
	return &ComplianceDetector{
		events:              events,
		dedup:               dedup,
		enabled:             enabled,
		failedAuthThreshold: failedAuthThreshold,
		logger:              logger,
	}
}

func (d *ComplianceDetector) Name() string  { return "compliance" }
func (d *ComplianceDetector) Enabled() bool { return d.enabled }

func (d *ComplianceDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	start := now.Add(-complianceWindow)

	created, err := d.detectFailedAuth(ctx, start)
	if err != nil {
		return created, err
	}

	n, err := d.detectAdminUsage(ctx, start)
	created += n
	if err != nil {
		return created, err
	}

	n, err = d.detectLockouts(ctx, start)
	created += n
	return created, err
}

// detectFailedAuth merges Windows failed logons and SSH failures per
// (user, IP) and flags pairs exceeding the failed-auth threshold.
func (d *ComplianceDetector) detectFailedAuth(ctx context.Context, start time.Time) (int, error) {
	winGroups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeLogonFailure},
		[]string{core.FieldUser, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return 0, fmt.Errorf("failed auth query: %w", err)
	}

	sshGroups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventType: "ssh_login", Status: core.StatusFailure},
		[]string{core.FieldUser, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return 0, fmt.Errorf("ssh failed auth query: %w", err)
	}

	type pair struct{ user, ip string }
	merged := map[pair]*core.GroupResult{}
	var order []pair
	for _, groups := range [][]core.GroupResult{winGroups, sshGroups} {
		for i := range groups {
			g := groups[i]
			key := pair{g.Key(core.FieldUser), g.Key(core.FieldSourceIP)}
			m, ok := merged[key]
			if !ok {
				copied := g
				merged[key] = &copied
				order = append(order, key)
				continue
			}
			m.Count += g.Count
			if g.FirstSeen.Before(m.FirstSeen) {
				m.FirstSeen = g.FirstSeen
			}
			if g.LastSeen.After(m.LastSeen) {
				m.LastSeen = g.LastSeen
			}
			m.EventIDs = append(m.EventIDs, g.EventIDs...)
		}
	}

	created := 0
	for _, key := range order {
		g := merged[key]
		if g.Count < d.failedAuthThreshold {
			continue
		}
		username := key.user
		if username == "" {
			username = "unknown"
		}

		alert := core.NewAlert(core.AlertCompliance, key.ip, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"failed_auth", "compliance_violation"}
		alert.ConfidenceScore = 90
		alert.Tags = []string{"compliance", "failed_auth", "policy_violation"}
		alert.Description = fmt.Sprintf(
			"Compliance violation: %d failed authentication attempts for user %s from %s in the last 24 hours. This exceeds the compliance threshold of %d failed attempts.",
			g.Count, username, key.ip, d.failedAuthThreshold)

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertCompliance,
			SourceIP:  key.ip,
			ChainTag:  "failed_auth",
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

// detectAdminUsage tracks admin-privilege usage per (user, IP) for
// audit purposes; informational, medium severity.
func (d *ComplianceDetector) detectAdminUsage(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeAdminLogon},
		[]string{core.FieldUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Push: []string{core.FieldPrivilegeList}},
	)
	if err != nil {
		return 0, fmt.Errorf("admin usage query: %w", err)
	}

	created := 0
	for _, g := range groups {
		if g.Count < adminUsageThreshold {
			continue
		}
		username := g.Key(core.FieldUsername)
		sourceIP := g.Key(core.FieldSourceIP)
		privilegeList := ""
		if lists := g.List(core.FieldPrivilegeList); len(lists) > 0 {
			privilegeList = lists[0]
		}

		alert := core.NewAlert(core.AlertCompliance, sourceIP, core.SeverityMedium)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"admin_usage", "compliance_tracking"}
		alert.ConfidenceScore = 100
		alert.Tags = []string{"compliance", "admin_usage", "audit"}
		alert.Description = fmt.Sprintf(
			"Admin account usage: User %s from %s used admin privileges %d times in the last 24 hours. Privileges: %s",
			username, sourceIP, g.Count, orNA(privilegeList))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertCompliance,
			SourceIP:  sourceIP,
			ChainTag:  "admin_usage",
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

// detectLockouts raises one alert per (account, IP) lockout group.
// Lockouts are audit records and are never deduplicated against prior
// lockout alerts.
func (d *ComplianceDetector) detectLockouts(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeAccountLockout},
		[]string{core.FieldTargetUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return 0, fmt.Errorf("lockout query: %w", err)
	}

	created := 0
	for _, g := range groups {
		username := g.Key(core.FieldTargetUsername)
		if username == "" {
			username = "unknown"
		}
		sourceIP := g.Key(core.FieldSourceIP)

		alert := core.NewAlert(core.AlertCompliance, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"account_lockout", "compliance_violation"}
		alert.ConfidenceScore = 100
		alert.Tags = []string{"compliance", "account_lockout", "policy_violation"}
		alert.Description = fmt.Sprintf(
			"Account lockout event: Account %s was locked out %d time(s) from %s in the last 24 hours.",
			username, g.Count, sourceIP)

		if err := d.dedup.Insert(ctx, alert); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
