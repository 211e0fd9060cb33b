package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// DataExfiltrationDetector covers three share-access patterns: bulk or
// sensitive file access per (IP, user), after-hours access, and heavy
// share traffic from non-private source addresses.
type DataExfiltrationDetector struct {
	events        core.EventStore
	dedup         *Deduplicator
	enabled       bool
	windowMinutes int
	logger        *zap.SugaredLogger
}

// Business hours in UTC. Share access outside them is treated as an
// unusual pattern.
var businessHours = core.HourRange{Start: 8, End: 18}

const (
	exfilAccessFloor     = 5
	exfilBulkAccessFloor = 20
	externalAccessFloor  = 10
)

func NewDataExfiltrationDetector(events core.EventStore, dedup *Deduplicator, enabled bool, windowMinutes int, logger *zap.SugaredLogger) *DataExfiltrationDetector {
	return &DataExfiltrationDetector{
		events:        events,
		dedup:         dedup,
		enabled:       enabled,
		windowMinutes: windowMinutes,
		logger:        logger,
	}
}

func (d *DataExfiltrationDetector) Name() string  { return "data_exfiltration" }
func (d *DataExfiltrationDetector) Enabled() bool { return d.enabled }

func (d *DataExfiltrationDetector) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	start := windowStart(now, d.windowMinutes)

	created, err := d.detectFileAccess(ctx, start)
	if err != nil {
		return created, err
	}

	n, err := d.detectAfterHours(ctx, start)
	created += n
	if err != nil {
		return created, err
	}

	n, err = d.detectExternal(ctx, start)
	created += n
	return created, err
}

// detectFileAccess flags (IP, user) pairs with heavy share access,
// critical when sensitive paths are among the accessed files.
func (d *DataExfiltrationDetector) detectFileAccess(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:          start,
			EventCode:     core.CodeNetworkShareAccess,
			RequireFields: []string{core.FieldFilePath},
		},
		[]string{core.FieldSourceIP, core.FieldUsername},
		core.GroupOptions{CollectIDs: true, Push: []string{core.FieldFilePath}},
	)
	if err != nil {
		return 0, fmt.Errorf("file access query: %w", err)
	}

	created := 0
	for _, g := range groups {
		if g.Count < exfilAccessFloor {
			continue
		}

		var sensitiveFiles []string
		for _, path := range g.List(core.FieldFilePath) {
			if core.IsSensitiveFile(path) {
				sensitiveFiles = append(sensitiveFiles, path)
			}
		}
		if len(sensitiveFiles) == 0 && g.Count < exfilBulkAccessFloor {
			continue
		}

		sourceIP := g.Key(core.FieldSourceIP)
		username := g.Key(core.FieldUsername)

		severity := core.SeverityHigh
		confidence := 70
		lastTag := "bulk_access"
		description := fmt.Sprintf(
			"Potential data exfiltration: User %s from %s accessed %d files via network shares within %d minutes.",
			username, sourceIP, g.Count, d.windowMinutes)
		if len(sensitiveFiles) > 0 {
			severity = core.SeverityCritical
			confidence = 85
			lastTag = "sensitive_data"
			description = fmt.Sprintf(
				"Data exfiltration detected: User %s from %s accessed %d sensitive files (%s) via network shares. Total accesses: %d",
				username, sourceIP, len(sensitiveFiles), truncateList(sensitiveFiles, 3), g.Count)
		}

		alert := core.NewAlert(core.AlertDataExfiltration, sourceIP, severity)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"network_share_access", "data_access", "potential_exfiltration"}
		alert.ConfidenceScore = confidence
		alert.Tags = []string{"data_exfiltration", "network_share", "windows", lastTag}
		alert.Description = description

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertDataExfiltration,
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

// detectAfterHours flags share access outside business hours.
func (d *DataExfiltrationDetector) detectAfterHours(ctx context.Context, start time.Time) (int, error) {
	groups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:         start,
			EventCode:    core.CodeNetworkShareAccess,
			OutsideHours: &businessHours,
		},
		[]string{core.FieldSourceIP, core.FieldUsername},
		core.GroupOptions{CollectIDs: true},
	)
	if err != nil {
		return 0, fmt.Errorf("after-hours query: %w", err)
	}

	created := 0
	for _, g := range groups {
		if g.Count < exfilAccessFloor {
			continue
		}
		sourceIP := g.Key(core.FieldSourceIP)
		username := g.Key(core.FieldUsername)

		alert := core.NewAlert(core.AlertDataExfiltration, sourceIP, core.SeverityHigh)
		alert.Count = g.Count
		alert.FirstSeen = g.FirstSeen
		alert.LastSeen = g.LastSeen
		alert.CorrelatedEvents = g.EventIDs
		alert.AttackChain = []string{"after_hours_access", "unusual_pattern", "potential_exfiltration"}
		alert.ConfidenceScore = 65
		alert.Tags = []string{"data_exfiltration", "unusual_pattern", "after_hours", "windows"}
		alert.Description = fmt.Sprintf(
			"Unusual data access pattern: User %s from %s accessed %d files via network shares outside business hours (before 8 AM or after 6 PM).",
			username, sourceIP, g.Count)

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertDataExfiltration,
			SourceIP:  sourceIP,
			ChainTag:  "after_hours_access",
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

// detectExternal flags heavy share traffic whose source IP is not in
// the private ranges. Share accesses and network logons are queried
// separately and merged per IP.
func (d *DataExfiltrationDetector) detectExternal(ctx context.Context, start time.Time) (int, error) {
	shareGroups, err := d.events.GroupEvents(ctx,
		core.EventFilter{From: start, EventCode: core.CodeNetworkShareAccess},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldUsername}},
	)
	if err != nil {
		return 0, fmt.Errorf("external share query: %w", err)
	}

	logonGroups, err := d.events.GroupEvents(ctx,
		core.EventFilter{
			From:      start,
			EventCode: core.CodeLogonSuccess,
			LogonType: core.LogonTypeNetwork,
		},
		[]string{core.FieldSourceIP},
		core.GroupOptions{CollectIDs: true, Collect: []string{core.FieldUsername}},
	)
	if err != nil {
		return 0, fmt.Errorf("external logon query: %w", err)
	}
	logonByIP := map[string]core.GroupResult{}
	for _, g := range logonGroups {
		logonByIP[g.Key(core.FieldSourceIP)] = g
	}

	created := 0
	for _, g := range shareGroups {
		sourceIP := g.Key(core.FieldSourceIP)
		count := g.Count
		firstSeen, lastSeen := g.FirstSeen, g.LastSeen
		eventIDs := g.EventIDs
		usernames := g.Set(core.FieldUsername)

		if lg, ok := logonByIP[sourceIP]; ok {
			count += lg.Count
			if lg.FirstSeen.Before(firstSeen) {
				firstSeen = lg.FirstSeen
			}
			if lg.LastSeen.After(lastSeen) {
				lastSeen = lg.LastSeen
			}
			eventIDs = append(eventIDs, lg.EventIDs...)
			for _, u := range lg.Set(core.FieldUsername) {
				if !containsValue(usernames, u) {
					usernames = append(usernames, u)
				}
			}
		}

		if count < externalAccessFloor || core.IsPrivateIP(sourceIP) {
			continue
		}

		alert := core.NewAlert(core.AlertDataExfiltration, sourceIP, core.SeverityHigh)
		alert.Count = count
		alert.FirstSeen = firstSeen
		alert.LastSeen = lastSeen
		alert.CorrelatedEvents = eventIDs
		alert.AttackChain = []string{"external_connection", "network_share_access", "potential_exfiltration"}
		alert.ConfidenceScore = 70
		alert.Tags = []string{"data_exfiltration", "external_ip", "network_share", "windows"}
		alert.Description = fmt.Sprintf(
			"Potential data exfiltration to external IP: %s accessed network shares with %d events. Users: %s",
			sourceIP, count, joinOrDefault(usernames, "unknown"))

		inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
			AlertType: core.AlertDataExfiltration,
			SourceIP:  sourceIP,
			ChainTag:  "external_connection",
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

// truncateList renders up to max values, appending an ellipsis when
// more exist.
func truncateList(values []string, max int) string {
	if len(values) <= max {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:max], ", ") + "..."
}
