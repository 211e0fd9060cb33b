package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"argus/config"
	"argus/core"
	"argus/metrics"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EventStorage handles event persistence and implements core.EventStore,
// the read contract the detectors run against.
type EventStorage struct {
	mongoDB             *MongoDB
	EventsColl          EventCollection
	dlColl              EventCollection
	batchSize           int
	eventCh             <-chan *core.Event
	timeout             time.Duration
	wg                  sync.WaitGroup
	dedupCache          *lru.Cache[string, struct{}]
	enableDeduplication bool
	logger              *zap.SugaredLogger
}

// NewEventStorage creates a new event storage handler consuming the
// ingestion channel.
func NewEventStorage(mongoDB *MongoDB, cfg *config.Config, eventCh <-chan *core.Event, logger *zap.SugaredLogger) (*EventStorage, error) {
	cache, err := lru.New[string, struct{}](cfg.Storage.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}

	return &EventStorage{
		mongoDB:             mongoDB,
		EventsColl:          &mongoCollection{Collection: mongoDB.Database.Collection("events")},
		dlColl:              &mongoCollection{Collection: mongoDB.Database.Collection("dead_letter_events")},
		batchSize:           cfg.Storage.BufferSize,
		eventCh:             eventCh,
		timeout:             time.Duration(cfg.MongoDB.BatchInsertTimeout) * time.Second,
		dedupCache:          cache,
		enableDeduplication: cfg.Storage.Deduplication,
		logger:              logger,
	}, nil
}

// Start starts the event storage workers
func (es *EventStorage) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		es.wg.Add(1)
		go es.worker()
	}
}

// worker drains the ingestion channel into batched inserts.
func (es *EventStorage) worker() {
	defer es.wg.Done()
	batch := make([]interface{}, 0, es.batchSize)

	for event := range es.eventCh {
		if es.enableDeduplication {
			hash := es.hashEvent(event)
			if _, seen := es.dedupCache.Get(hash); seen {
				continue
			}
			es.dedupCache.Add(hash, struct{}{})
		}

		batch = append(batch, event)

		if len(batch) >= es.batchSize {
			es.insertBatch(batch)
			batch = batch[:0]
		}
	}

	// Insert remaining
	if len(batch) > 0 {
		es.insertBatch(batch)
	}
}

// hashEvent generates a fast xxHash for duplicate-line suppression
// (non-cryptographic).
func (es *EventStorage) hashEvent(event *core.Event) string {
	data := fmt.Sprintf("%s|%s|%s|%d", event.RawLog, event.EventType, event.SourceIP, event.Timestamp.Unix())
	return fmt.Sprintf("%016x", xxhash.Sum64String(data))
}

// insertBatch inserts a batch of events
func (es *EventStorage) insertBatch(batch []interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), es.timeout)
	defer cancel()

	_, err := es.EventsColl.InsertMany(ctx, batch)
	if err != nil {
		es.logger.Errorf("Failed to insert event batch: %v", err)
		es.insertDeadLetter(ctx, batch)
		return
	}
	for _, item := range batch {
		event := item.(*core.Event)
		metrics.EventsIngested.WithLabelValues(event.SourceFormat).Inc()
	}
}

// insertDeadLetter inserts failed events to the dead letter collection
func (es *EventStorage) insertDeadLetter(ctx context.Context, batch []interface{}) {
	dlDocs := make([]interface{}, len(batch))
	for i, doc := range batch {
		dlDocs[i] = bson.M{
			"failed_at": time.Now(),
			"document":  doc,
		}
	}
	if _, err := es.dlColl.InsertMany(ctx, dlDocs); err != nil {
		es.logger.Errorf("Failed to insert to dead letter: %v", err)
		metrics.DeadLetterInsertFailures.Inc()
	}
}

// Stop waits for the storage workers to drain the channel.
func (es *EventStorage) Stop() {
	es.wg.Wait()
}

// StartRetention launches the retention loop: one cleanup at startup,
// then one per tick until the context is cancelled.
func (es *EventStorage) StartRetention(ctx context.Context, retentionDays int, interval time.Duration) {
	es.wg.Add(1)
	go es.retentionLoop(ctx, retentionDays, interval)
}

func (es *EventStorage) retentionLoop(ctx context.Context, retentionDays int, interval time.Duration) {
	defer es.wg.Done()

	if err := es.CleanupOldEvents(retentionDays); err != nil {
		es.logger.Errorf("Retention cleanup failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := es.CleanupOldEvents(retentionDays); err != nil {
				es.logger.Errorf("Retention cleanup failed: %v", err)
			}
		}
	}
}

// CleanupOldEvents deletes events older than the specified retention period
func (es *EventStorage) CleanupOldEvents(retentionDays int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	filter := bson.M{"timestamp": bson.M{"$lt": cutoff}}

	result, err := es.EventsColl.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete old events: %w", err)
	}

	es.logger.Infof("Deleted %d old events", result.DeletedCount)
	return nil
}

// GetEventCount returns the total number of events
func (es *EventStorage) GetEventCount(ctx context.Context) (int64, error) {
	count, err := es.EventsColl.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// FindEvents implements core.EventStore.
func (es *EventStorage) FindEvents(ctx context.Context, f core.EventFilter, asc bool) ([]core.Event, error) {
	order := -1
	if asc {
		order = 1
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "timestamp", Value: order}})

	cursor, err := es.EventsColl.Find(ctx, matchFilter(f), findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]core.Event, 0)
	for cursor.Next(ctx) {
		var event core.Event
		if err := cursor.Decode(&event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, event)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return events, nil
}

// GroupEvents implements core.EventStore via an aggregation pipeline:
// one $match stage compiled from the filter, one $group stage carrying
// the requested accumulators.
func (es *EventStorage) GroupEvents(ctx context.Context, f core.EventFilter, keys []string, opts core.GroupOptions) ([]core.GroupResult, error) {
	id := bson.M{}
	for _, key := range keys {
		id[key] = groupKeyExpr(key)
	}

	group := bson.M{
		"_id":        id,
		"count":      bson.M{"$sum": 1},
		"first_seen": bson.M{"$min": "$timestamp"},
		"last_seen":  bson.M{"$max": "$timestamp"},
	}
	if opts.CollectIDs {
		group["event_ids"] = bson.M{"$push": "$event_id"}
	}
	for _, field := range opts.Collect {
		group["set_"+field] = bson.M{"$addToSet": "$" + field}
	}
	for _, field := range opts.Push {
		group["list_"+field] = bson.M{"$push": "$" + field}
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: matchFilter(f)}},
		bson.D{{Key: "$sort", Value: bson.M{"timestamp": 1}}},
		bson.D{{Key: "$group", Value: group}},
	}

	cursor, err := es.EventsColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}

	results := make([]core.GroupResult, 0, len(rows))
	for _, row := range rows {
		gr := core.GroupResult{
			Keys:      map[string]string{},
			Count:     asInt(row["count"]),
			FirstSeen: asTime(row["first_seen"]),
			LastSeen:  asTime(row["last_seen"]),
			Sets:      map[string][]string{},
			Lists:     map[string][]string{},
		}
		if idDoc, ok := row["_id"].(bson.M); ok {
			for _, key := range keys {
				gr.Keys[key] = asString(idDoc[key])
			}
		}
		if opts.CollectIDs {
			gr.EventIDs = asStringSlice(row["event_ids"])
		}
		for _, field := range opts.Collect {
			gr.Sets[field] = dropEmpty(asStringSlice(row["set_"+field]))
		}
		for _, field := range opts.Push {
			gr.Lists[field] = dropEmpty(asStringSlice(row["list_"+field]))
		}
		results = append(results, gr)
	}
	return results, nil
}

// matchFilter compiles an EventFilter into a $match document with the
// same semantics as core.EventFilter.Matches.
func matchFilter(f core.EventFilter) bson.M {
	match := bson.M{}

	ts := bson.M{}
	if !f.From.IsZero() {
		ts["$gte"] = f.From
	}
	if !f.To.IsZero() {
		ts["$lt"] = f.To
	}
	if len(ts) > 0 {
		match["timestamp"] = ts
	}

	if f.EventCode != 0 {
		match["event_code"] = f.EventCode
	}
	if f.EventType != "" {
		match["event_type"] = f.EventType
	}
	if f.Status != "" {
		match["status"] = f.Status
	}
	if f.LogonType != 0 {
		match["logon_type"] = f.LogonType
	}
	for _, field := range f.RequireFields {
		match[field] = bson.M{"$nin": bson.A{"", nil}}
	}
	if len(f.MatchAny) > 0 {
		var or bson.A
		for _, fp := range f.MatchAny {
			or = append(or, bson.M{fp.Field: mongoRegex(fp.Pattern.String())})
		}
		match["$or"] = or
	}
	if f.OutsideHours != nil {
		match["$expr"] = bson.M{"$or": bson.A{
			bson.M{"$lt": bson.A{bson.M{"$hour": "$timestamp"}, f.OutsideHours.Start}},
			bson.M{"$gte": bson.A{bson.M{"$hour": "$timestamp"}, f.OutsideHours.End}},
		}}
	}
	return match
}

// groupKeyExpr maps a grouping field to its aggregation expression.
// FieldUser coalesces target_username/username; FieldHour extracts the
// UTC hour of day.
func groupKeyExpr(field string) interface{} {
	switch field {
	case core.FieldUser:
		return bson.M{"$cond": bson.A{
			bson.M{"$ne": bson.A{"$target_username", ""}},
			"$target_username",
			"$username",
		}}
	case core.FieldHour:
		return bson.M{"$hour": "$timestamp"}
	default:
		return "$" + field
	}
}

// mongoRegex converts a Go regexp source to a Mongo regex, hoisting a
// leading case-insensitivity flag into regex options.
func mongoRegex(pattern string) primitive.Regex {
	re := primitive.Regex{Pattern: pattern}
	if strings.HasPrefix(pattern, "(?i)") {
		re.Pattern = strings.TrimPrefix(pattern, "(?i)")
		re.Options = "i"
	}
	return re
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case int32:
		return strconv.Itoa(int(s))
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}

func asStringSlice(v interface{}) []string {
	arr, ok := v.(bson.A)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, asString(item))
	}
	return out
}

func dropEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
