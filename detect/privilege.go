package detect

import (
	"context"
	"fmt"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// PrivilegeEscalationDetector covers two Windows escalation patterns:
// an admin logon (4672) shortly after a successful logon (4624) for the
// same user, and explicit-credential use (4648) carrying a sensitive
// privilege.
type PrivilegeEscalationDetector struct {
	events        core.EventStore
	dedup         *Deduplicator
	enabled       bool
	windowMinutes int
	logger        *zap.SugaredLogger
}

// adminLogonLeadTime is how far back an admin logon may follow a
// successful logon and still count as one escalation.
const adminLogonLeadTime = 5 * time.Minute

func NewPrivilegeEscalationDetector(events core.EventStore, dedup *Deduplicator, enabled bool, windowMinutes int, logger *zap.SugaredLogger) *PrivilegeEscalationDetector {
	return &PrivilegeEscalationDetector{
		events:        events,
		dedup:         dedup,
		enabled:       enabled,
		windowMinutes: windowMinutes,
		logger:        logger,
	}
}

func (d *PrivilegeEscalationDetector) Name() string  { return "privilege_escalation" }
func (d *PrivilegeEscalationDetector) Enabled() bool { return d.enabled }

func (d *PrivilegeEscalationDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	start := windowStart(now, d.windowMinutes)

	created, err := d.detectAdminLogons(ctx, start)
	if err != nil {
		return created, err
	}

	n, err := d.detectExplicitCredentials(ctx, start)
	created += n
	return created, err
}

// detectAdminLogons flags 4672 events preceded within five minutes by a
// 4624 for the same user, grouped by (username, source_ip).
func (d *PrivilegeEscalationDetector) detectAdminLogons(ctx context.Context, start time.Time) (int, error) {
	adminLogons, err := d.events.FindEvents(ctx, core.EventFilter{
		From:      start,
		EventCode: core.CodeAdminLogon,
	}, true)
	if err != nil {
		return 0, fmt.Errorf("admin logon query: %w", err)
	}
	if len(adminLogons) == 0 {
		return 0, nil
	}

	// One lookup window covers every candidate admin logon.
	successLogons, err := d.events.FindEvents(ctx, core.EventFilter{
		From:      start.Add(-adminLogonLeadTime),
		EventCode: core.CodeLogonSuccess,
	}, true)
	if err != nil {
		return 0, fmt.Errorf("successful logon query: %w", err)
	}

	type groupStats struct {
		count         int
		firstSeen     time.Time
		lastSeen      time.Time
		eventIDs      []string
		privilegeList string
	}
	groups := map[[2]string]*groupStats{}
	var order [][2]string

	for i := range adminLogons {
		e := &adminLogons[i]
		if !hasPrecedingLogon(successLogons, e) {
			continue
		}
		key := [2]string{e.Username, e.SourceIP}
		g, ok := groups[key]
		if !ok {
			g = &groupStats{firstSeen: e.Timestamp, lastSeen: e.Timestamp, privilegeList: e.PrivilegeList}
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
	}

	created := 0
	for _, key := range order {
		g := groups[key]
		username, sourceIP := key[0], key[1]

		alert := core.NewAlert(core.AlertPrivilegeEscalation, sourceIP, core.SeverityCritical)
		alert.Count = g.count
		alert.FirstSeen = g.firstSeen
		alert.LastSeen = g.lastSeen
		alert.CorrelatedEvents = g.eventIDs
		alert.AttackChain = []string{"successful_logon", "admin_logon", "privilege_escalation"}
		alert.ConfidenceScore = 85
		alert.Tags = []string{"privilege_escalation", "windows", "critical"}
		alert.Description = fmt.Sprintf(
			"Privilege escalation detected: User %s from %s obtained admin privileges (Event ID 4672). Privileges: %s",
			username, sourceIP, orNA(g.privilegeList))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertPrivilegeEscalation,
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

// hasPrecedingLogon reports whether any successful logon for the admin
// event's user falls within the lead time before it.
func hasPrecedingLogon(logons []core.Event, admin *core.Event) bool {
	for i := range logons {
		l := &logons[i]
		if l.Username != admin.Username {
			continue
		}
		if !l.Timestamp.After(admin.Timestamp) && !l.Timestamp.Before(admin.Timestamp.Add(-adminLogonLeadTime)) {
			return true
		}
	}
	return false
}

// detectExplicitCredentials flags 4648 events whose privilege list
// names a sensitive privilege.
func (d *PrivilegeEscalationDetector) detectExplicitCredentials(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:          start,
			EventCode:     core.CodeExplicitCredentials,
			RequireFields: []string{core.FieldPrivilegeList},
			MatchAny: []core.FieldPattern{
				{Field: core.FieldPrivilegeList, Pattern: core.SensitivePrivilegePattern},
			},
		},
		[]string{core.FieldUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Push: []string{core.FieldPrivilegeList}},
	)
	if err != nil {
		return 0, fmt.Errorf("explicit credentials query: %w", err)
	}

	created := 0
	for _, g := range groups {
		username := g.Key(core.FieldUsername)
		sourceIP := g.Key(core.FieldSourceIP)
		privilegeList := ""
		if lists := g.List(core.FieldPrivilegeList); len(lists) > 0 {
			privilegeList = lists[0]
		}

		alert := core.NewAlert(core.AlertPrivilegeEscalation, sourceIP, core.SeverityCritical)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"explicit_credentials", "privilege_escalation"}
		alert.ConfidenceScore = 90
		alert.Tags = []string{"privilege_escalation", "windows", "explicit_credentials", "critical"}
		alert.Description = fmt.Sprintf(
			"Privilege escalation via explicit credentials: User %s from %s used explicit credentials with high privileges (Event ID 4648). Privileges: %s",
			username, sourceIP, privilegeList)

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertPrivilegeEscalation,
			SourceIP:  sourceIP,
			ChainTag:  "explicit_credentials",
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

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
