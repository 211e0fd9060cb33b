package detect

import (
	"fmt"
	"time"

	"argus/core"
	"argus/storage"

	"go.uber.org/zap"
)

// Shared detector test fixtures over the in-memory stores.

var testNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type harness struct {
	events *storage.MemoryEventStore
	alerts *storage.MemoryAlertStore
	dedup  *Deduplicator
}

func newHarness() *harness {
	alerts := storage.NewMemoryAlertStore()
	return &harness{
		events: storage.NewMemoryEventStore(),
		alerts: alerts,
		dedup:  NewDeduplicator(alerts, zap.NewNop().Sugar()),
	}
}

var eventSeq int

// winEvent builds a Windows event n minutes before testNow.
func winEvent(code, minutesAgo int, mutate func(*core.Event)) core.Event {
	eventSeq++
	e := core.Event{
		EventID:   fmt.Sprintf("ev-%d", eventSeq),
		Timestamp: testNow.Add(-time.Duration(minutesAgo) * time.Minute),
		EventCode: code,
		EventType: core.EventTypeByCode[code],
		Status:    core.StatusSuccess,
	}
	if mutate != nil {
		mutate(&e)
	}
	return e
}

// sshFailure builds a failed SSH login n minutes before testNow.
func sshFailure(sourceIP, username string, minutesAgo int) core.Event {
	eventSeq++
	return core.Event{
		EventID:   fmt.Sprintf("ev-%d", eventSeq),
		Timestamp: testNow.Add(-time.Duration(minutesAgo) * time.Minute),
		EventType: "ssh_login",
		Status:    core.StatusFailure,
		SourceIP:  sourceIP,
		Username:  username,
		Service:   "sshd",
	}
}
