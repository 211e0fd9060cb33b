package detect

import (
	"context"
	"fmt"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// correlationRule is an ordered tag sequence. A group of events matches
// when the tags appear as a subsequence in timestamp order.
type correlationRule struct {
	name     string
	pattern  []string
	severity string
}

var correlationRules = []correlationRule{
	{
		name:     "brute_force_to_success",
		pattern:  []string{"failed_logon", "successful_logon"},
		severity: core.SeverityHigh,
	},
	{
		name:     "successful_logon_to_privilege_escalation",
		pattern:  []string{"successful_logon", "admin_logon"},
		severity: core.SeverityCritical,
	},
	{
		name:     "privilege_escalation_to_lateral_movement",
		pattern:  []string{"admin_logon", "explicit_credentials"},
		severity: core.SeverityCritical,
	},
	{
		name:     "process_creation_to_data_transfer",
		pattern:  []string{"process_creation", "network_share_access"},
		severity: core.SeverityHigh,
	},
}

// CorrelationEngine scans each (source IP, username) group's events in
// timestamp order against the rule set. The scan is greedy and
// non-backtracking: the pointer advances on the first tag match and
// only the first qualifying subsequence per rule per group is reported.
type CorrelationEngine struct {
	events        core.EventStore
	dedup         *Deduplicator
	enabled       bool
	windowMinutes int
	logger        *zap.SugaredLogger
}

func NewCorrelationEngine(events core.EventStore, dedup *Deduplicator, enabled bool, windowMinutes int, logger *zap.SugaredLogger) *CorrelationEngine {
	return &CorrelationEngine{
		events:        events,
		dedup:         dedup,
		enabled:       enabled,
		windowMinutes: windowMinutes,
		logger:        logger,
	}
}

func (d *CorrelationEngine) Name() string  { return "correlation_engine" }
func (d *CorrelationEngine) Enabled() bool { return d.enabled }

func (d *CorrelationEngine) Detect(ctx context.Context, now time.Time) (int, error) {
	if !d.enabled {
		return 0, nil
	}
	start := windowStart(now, d.windowMinutes)

	events, err := d.events.FindEvents(ctx, core.EventFilter{From: start}, true)
	if err != nil {
		return 0, fmt.Errorf("correlation query: %w", err)
	}

	type group struct {
		sourceIP string
		username string
		events   []*core.Event
	}
	groups := map[string]*group{}
	var order []string

	for i := range events {
		e := &events[i]
		username := e.Username
		if username == "" {
			username = "unknown"
		}
		key := e.SourceIP + ":" + username
		g, ok := groups[key]
		if !ok {
			g = &group{sourceIP: e.SourceIP, username: username}
			groups[key] = g
			order = append(order, key)
		}
		g.events = append(g.events, e)
	}

	created := 0
	for _, key := range order {
		g := groups[key]
		for _, rule := range correlationRules {
			matched := matchRule(g.events, rule.pattern)
			if matched == nil {
				continue
			}

			eventIDs := make([]string, len(matched))
			for i, e := range matched {
				eventIDs[i] = e.EventID
			}

			alert := core.NewAlert(core.AlertCorrelatedAttack, g.sourceIP, rule.severity)
			alert.Count = len(matched)
			alert.FirstSeen = matched[0].Timestamp
			alert.LastSeen = matched[len(matched)-1].Timestamp
			alert.CorrelatedEvents = eventIDs
			alert.AttackChain = append([]string{rule.name}, rule.pattern...)
			alert.ConfidenceScore = 85
			alert.Tags = append([]string{"correlation", "attack_chain"}, rule.pattern...)
			alert.Description = fmt.Sprintf(
				"Correlated attack chain detected: %s. Pattern: %s. User: %s",
				rule.name, joinOrDefault(rule.pattern, "none"), g.username)

			inserted, err := d.dedup.Upsert(ctx, alert, core.AlertKey{
				AlertType: core.AlertCorrelatedAttack,
				SourceIP:  g.sourceIP,
				ChainTag:  rule.name,
				Since:     start,
			})
			if err != nil {
				return created, err
			}
			if inserted {
				created++
			}
		}
	}
	return created, nil
}

// matchRule advances a single forward pointer through the pattern,
// returning the matched events or nil.
func matchRule(events []*core.Event, pattern []string) []*core.Event {
	var matched []*core.Event
	idx := 0
	for _, e := range events {
		if patternTag(e) != pattern[idx] {
			continue
		}
		matched = append(matched, e)
		idx++
		if idx >= len(pattern) {
			return matched
		}
	}
	return nil
}

// patternTag maps an event to its correlation tag, or "" when it plays
// no role in any rule.
func patternTag(e *core.Event) string {
	switch {
	case e.EventCode == core.CodeLogonFailure,
		e.EventType == "ssh_login" && e.Status == core.StatusFailure:
		return "failed_logon"
	case e.EventCode == core.CodeLogonSuccess,
		e.EventType == "ssh_login" && e.Status == core.StatusSuccess:
		return "successful_logon"
	case e.EventCode == core.CodeAdminLogon:
		return "admin_logon"
	case e.EventCode == core.CodeExplicitCredentials:
		return "explicit_credentials"
	case e.EventCode == core.CodeProcessCreation:
		return "process_creation"
	case e.EventCode == core.CodeNetworkShareAccess:
		return "network_share_access"
	}
	return ""
}
