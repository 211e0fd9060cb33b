package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the canonical normalized record persisted for every ingested
// log line. Immutable once stored; detectors only read events.
//
// All optional fields default to the empty string (or zero) rather than
// being omitted, so every stored document has the full shape.
type Event struct {
	EventID       string    `json:"event_id" bson:"event_id"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	SourceFormat  string    `json:"source_format" bson:"source_format"`
	SourceIP      string    `json:"source_ip" bson:"source_ip"`
	DestinationIP string    `json:"destination_ip" bson:"destination_ip"`
	Username      string    `json:"username" bson:"username"`
	EventType     string    `json:"event_type" bson:"event_type"`
	Service       string    `json:"service" bson:"service"`
	Status        string    `json:"status" bson:"status"`
	Severity      string    `json:"severity" bson:"severity"`
	RawLog        string    `json:"raw_log" bson:"raw_log"`
	IngestionTime time.Time `json:"ingestion_time" bson:"ingestion_time"`

	// Windows Event Log fields. EventCode is the numeric Windows event
	// ID (4624, 4625, ...); zero for non-Windows events.
	EventCode      int    `json:"event_code" bson:"event_code"`
	LogonType      int    `json:"logon_type" bson:"logon_type"`
	ProcessName    string `json:"process_name" bson:"process_name"`
	CommandLine    string `json:"command_line" bson:"command_line"`
	TargetUsername string `json:"target_username" bson:"target_username"`
	PrivilegeList  string `json:"privilege_list" bson:"privilege_list"`
	FilePath       string `json:"file_path" bson:"file_path"`
	RegistryKey    string `json:"registry_key" bson:"registry_key"`
	Hostname       string `json:"hostname" bson:"hostname"`
	Domain         string `json:"domain" bson:"domain"`
}

// NewEvent creates an Event with a generated ID and ingestion time.
func NewEvent() *Event {
	return &Event{
		EventID:       uuid.New().String(),
		IngestionTime: time.Now().UTC(),
	}
}

// User returns the best available account name for grouping: the target
// account when present, otherwise the subject account.
func (e *Event) User() string {
	if e.TargetUsername != "" {
		return e.TargetUsername
	}
	return e.Username
}
