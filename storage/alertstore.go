package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"argus/core"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrAlertNotFound is returned when an update targets an alert_id that
// does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// AlertStorage persists alerts and implements core.AlertStore.
type AlertStorage struct {
	AlertsColl EventCollection
	logger     *zap.SugaredLogger
}

// NewAlertStorage creates a new alert storage handler.
func NewAlertStorage(mongoDB *MongoDB, logger *zap.SugaredLogger) *AlertStorage {
	return &AlertStorage{
		AlertsColl: &mongoCollection{Collection: mongoDB.Database.Collection("alerts")},
		logger:     logger,
	}
}

// FindActive implements core.AlertStore. It returns the newest open
// alert matching the dedup key, or nil when none exists.
func (as *AlertStorage) FindActive(ctx context.Context, key core.AlertKey) (*core.Alert, error) {
	filter := bson.M{
		"alert_type":     key.AlertType,
		"source_ip":      key.SourceIP,
		"created_at":     bson.M{"$gte": key.Since},
		"false_positive": false,
	}
	if key.ChainTag != "" {
		filter["attack_chain.0"] = key.ChainTag
	}

	findOptions := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var alert core.Alert
	err := as.AlertsColl.FindOne(ctx, filter, findOptions).Decode(&alert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active alert: %w", err)
	}
	return &alert, nil
}

// Insert implements core.AlertStore.
func (as *AlertStorage) Insert(ctx context.Context, alert *core.Alert) error {
	if _, err := as.AlertsColl.InsertOne(ctx, alert); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// UpdateFields implements core.AlertStore, applying a $set of the given
// fields to the alert with the given alert_id.
func (as *AlertStorage) UpdateFields(ctx context.Context, alertID string, fields map[string]interface{}) error {
	result, err := as.AlertsColl.UpdateOne(ctx, bson.M{"alert_id": alertID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Acknowledge marks an alert as acknowledged by the given analyst.
func (as *AlertStorage) Acknowledge(ctx context.Context, alertID, analyst string) error {
	return as.UpdateFields(ctx, alertID, map[string]interface{}{
		"acknowledged":    true,
		"acknowledged_at": time.Now().UTC(),
		"acknowledged_by": analyst,
	})
}

// Dismiss marks an alert as a false positive, taking it out of the
// dedup window for future detections.
func (as *AlertStorage) Dismiss(ctx context.Context, alertID string) error {
	return as.UpdateFields(ctx, alertID, map[string]interface{}{
		"false_positive": true,
	})
}

// Assign sets the analyst an alert is assigned to.
func (as *AlertStorage) Assign(ctx context.Context, alertID, analyst string) error {
	return as.UpdateFields(ctx, alertID, map[string]interface{}{
		"assigned_to": analyst,
	})
}

// SetNotes replaces the triage notes on an alert.
func (as *AlertStorage) SetNotes(ctx context.Context, alertID, notes string) error {
	return as.UpdateFields(ctx, alertID, map[string]interface{}{
		"notes": notes,
	})
}

// ListRecent returns the newest alerts, up to limit.
func (as *AlertStorage) ListRecent(ctx context.Context, limit int64) ([]core.Alert, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := as.AlertsColl.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := make([]core.Alert, 0)
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

// GetAlertCount returns the total number of alerts
func (as *AlertStorage) GetAlertCount(ctx context.Context) (int64, error) {
	count, err := as.AlertsColl.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}
