package detect

import (
	"context"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// Deduplicator routes alert drafts to the alert store. A draft whose
// key matches an open alert is merged into it instead of inserted;
// merging overwrites only count, severity, confidence_score, last_seen
// and correlated_events, never the triage fields.
type Deduplicator struct {
	alerts core.AlertStore
	logger *zap.SugaredLogger
}

// NewDeduplicator creates a deduplicator over the given alert store.
func NewDeduplicator(alerts core.AlertStore, logger *zap.SugaredLogger) *Deduplicator {
	return &Deduplicator{alerts: alerts, logger: logger}
}

// Upsert merges the draft into an open alert matching the key, or
// inserts it when none exists. It reports whether a new alert was
// created.
func (d *Deduplicator) Upsert(ctx context.Context, draft *core.Alert, key core.AlertKey) (bool, error) {
	existing, err := d.alerts.FindActive(ctx, key)
	if err != nil {
		return false, err
	}

	if existing != nil {
		err := d.alerts.UpdateFields(ctx, existing.AlertID, map[string]interface{}{
			"count":             draft.Count,
			"severity":          draft.Severity,
			"confidence_score":  draft.ConfidenceScore,
			"last_seen":         draft.LastSeen,
			"correlated_events": draft.CorrelatedEvents,
		})
		if err != nil {
			return false, err
		}
		metrics.AlertsMerged.WithLabelValues(draft.AlertType).Inc()
		return false, nil
	}

	if err := d.Insert(ctx, draft); err != nil {
		return false, err
	}
	return true, nil
}

// Insert stores a draft unconditionally, bypassing deduplication.
// Account-lockout compliance alerts use this path.
func (d *Deduplicator) Insert(ctx context.Context, draft *core.Alert) error {
	if err := d.alerts.Insert(ctx, draft); err != nil {
		return err
	}
	metrics.AlertsGenerated.WithLabelValues(draft.AlertType, draft.Severity).Inc()
	d.logger.Warnf("Alert created: %s from %s - %s", draft.AlertType, draft.SourceIP, draft.Description)
	return nil
}
