package detect

import (
	"context"
	"fmt"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// LateralMovementDetector covers three spread patterns: explicit
// credentials across hosts (4648), RDP fan-out (4624 type 10) and bulk
// network share access (5145) touching multiple hosts from one IP.
type LateralMovementDetector struct {
	events        core.EventStore
	dedup         *Deduplicator
	enabled       bool
	windowMinutes int
	hostThreshold int
	logger        *zap.SugaredLogger
}

func NewLateralMovementDetector(events core.EventStore, dedup *Deduplicator, enabled bool, windowMinutes, hostThreshold int, logger *zap.SugaredLogger) *LateralMovementDetector {
	return &LateralMovementDetector{
		events:        events,
		dedup:         dedup,
		enabled:       enabled,
		windowMinutes: windowMinutes,
		hostThreshold: hostThreshold,
		logger:        logger,
	}
}

func (d *LateralMovementDetector) Name() string  { return "lateral_movement" }
func (d *LateralMovementDetector) Enabled() bool { return d.enabled }

func (d *LateralMovementDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	start := windowStart(now, d.windowMinutes)

	created, err := d.detectExplicitCredentialSpread(ctx, start)
	if err != nil {
		return created, err
	}

	n, err := d.detectRDPSpread(ctx, start)
	created += n
	if err != nil {
		return created, err
	}

	n, err = d.detectShareSpread(ctx, start)
	created += n
	return created, err
}

func (d *LateralMovementDetector) detectExplicitCredentialSpread(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeExplicitCredentials},
		[]string{core.FieldUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldHostname}},
	)
	if err != nil {
		return 0, fmt.Errorf("explicit credential spread query: %w", err)
	}

	created := 0
	for _, g := range groups {
		hosts := g.Set(core.FieldHostname)
		if len(hosts) < d.hostThreshold {
			continue
		}
		username := g.Key(core.FieldUsername)
		sourceIP := g.Key(core.FieldSourceIP)

		confidence := 75
		if len(hosts) >= 5 {
			confidence = 90
		}

		alert := core.NewAlert(core.AlertLateralMovement, sourceIP, core.SeverityCritical)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"explicit_credentials", "lateral_movement"}
		alert.ConfidenceScore = confidence
		alert.Tags = []string{"lateral_movement", "windows", "explicit_credentials", "critical"}
		alert.Description = fmt.Sprintf(
			"Lateral movement detected: User %s from %s used explicit credentials to access %d different hosts (%s) within %d minutes. Event ID 4648.",
			username, sourceIP, len(hosts), joinOrDefault(hosts, "unknown"), d.windowMinutes)

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertLateralMovement,
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

func (d *LateralMovementDetector) detectRDPSpread(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:      start,
			EventCode: core.CodeLogonSuccess,
			LogonType: core.LogonTypeRemoteInteractive,
		},
		[]string{core.FieldUsername, core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldHostname}},
	)
	if err != nil {
		return 0, fmt.Errorf("rdp spread query: %w", err)
	}

	created := 0
	for _, g := range groups {
		hosts := g.Set(core.FieldHostname)
		if len(hosts) < d.hostThreshold {
			continue
		}
		username := g.Key(core.FieldUsername)
		sourceIP := g.Key(core.FieldSourceIP)

		confidence := 65
		if len(hosts) >= 5 {
			confidence = 80
		}

		alert := core.NewAlert(core.AlertLateralMovement, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"rdp_connection", "lateral_movement"}
		alert.ConfidenceScore = confidence
		alert.Tags = []string{"lateral_movement", "rdp", "windows"}
		alert.Description = fmt.Sprintf(
			"Lateral movement via RDP: User %s from %s established RDP connections to %d different hosts (%s) within %d minutes.",
			username, sourceIP, len(hosts), joinOrDefault(hosts, "unknown"), d.windowMinutes)

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertLateralMovement,
			SourceIP:  sourceIP,
			ChainTag:  "rdp_connection",
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

// shareAccessFloor is the per-IP access count below which share fan-out
// is not considered movement.
const shareAccessFloor = 10

func (d *LateralMovementDetector) detectShareSpread(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeNetworkShareAccess},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldHostname, core.FieldUsername}},
	)
	if err != nil {
		return 0, fmt.Errorf("share spread query: %w", err)
	}

	created := 0
	for _, g := range groups {
		hosts := g.Set(core.FieldHostname)
		if g.Count < shareAccessFloor || len(hosts) < 2 {
			continue
		}
		sourceIP := g.Key(core.FieldSourceIP)

		confidence := 60
		if len(hosts) >= 3 {
			confidence = 75
		}

		alert := core.NewAlert(core.AlertLateralMovement, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"smb_access", "lateral_movement"}
		alert.ConfidenceScore = confidence
		alert.Tags = []string{"lateral_movement", "smb", "network_share", "windows"}
		alert.Description = fmt.Sprintf(
			"Lateral movement via SMB: IP %s accessed network shares on %d different hosts (%s) with %d total access attempts. Users: %s",
			sourceIP, len(hosts), joinOrDefault(hosts, "unknown"), g.Count, joinOrDefault(g.Set(core.FieldUsername), "unknown"))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertLateralMovement,
			SourceIP:  sourceIP,
			ChainTag:  "smb_access",
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
