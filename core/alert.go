package core

import (
	"time"

	"github.com/google/uuid"
)

// Alert is a detection finding. Detectors create drafts; the deduplicator
// either inserts them or merges them into an existing open alert.
//
// Triage fields (Acknowledged, AcknowledgedAt, AcknowledgedBy, AssignedTo,
// Notes, FalsePositive) are owned by the external triage API. The
// detection core never writes them after insert; a dedup merge overwrites
// only Count, Severity, ConfidenceScore, LastSeen and CorrelatedEvents.
type Alert struct {
	AlertID     string    `json:"alert_id" bson:"alert_id"`
	AlertType   string    `json:"alert_type" bson:"alert_type"`
	SourceIP    string    `json:"source_ip" bson:"source_ip"`
	Severity    string    `json:"severity" bson:"severity"`
	Count       int       `json:"count" bson:"count"`
	FirstSeen   time.Time `json:"first_seen" bson:"first_seen"`
	LastSeen    time.Time `json:"last_seen" bson:"last_seen"`
	Description string    `json:"description" bson:"description"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`

	CorrelatedEvents []string `json:"correlated_events" bson:"correlated_events"`
	AttackChain      []string `json:"attack_chain" bson:"attack_chain"`
	ConfidenceScore  int      `json:"confidence_score" bson:"confidence_score"`
	Tags             []string `json:"tags" bson:"tags"`

	FalsePositive  bool      `json:"false_positive" bson:"false_positive"`
	Acknowledged   bool      `json:"acknowledged" bson:"acknowledged"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty" bson:"acknowledged_by,omitempty"`
	AssignedTo     string    `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	Notes          string    `json:"notes,omitempty" bson:"notes,omitempty"`
}

// NewAlert creates an alert draft with a generated ID and creation time.
func NewAlert(alertType, sourceIP, severity string) *Alert {
	return &Alert{
		AlertID:         uuid.New().String(),
		AlertType:       alertType,
		SourceIP:        sourceIP,
		Severity:        severity,
		CreatedAt:       time.Now().UTC(),
		ConfidenceScore: 50,
	}
}

// ChainTag returns the leading attack-chain tag, used by the deduplicator
// to distinguish sub-cases within one alert type.
func (a *Alert) ChainTag() string {
	if len(a.AttackChain) == 0 {
		return ""
	}
	return a.AttackChain[0]
}
