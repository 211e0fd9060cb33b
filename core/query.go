package core

import (
	"regexp"
	"strconv"
	"time"
)

// Field names usable in filters and grouping keys. These are the event
// fields detectors group and match on; the storage layer maps them to its
// own column/field naming.
const (
	FieldSourceIP       = "source_ip"
	FieldUsername       = "username"
	FieldTargetUsername = "target_username"
	FieldProcessName    = "process_name"
	FieldFilePath       = "file_path"
	FieldPrivilegeList  = "privilege_list"
	FieldHostname       = "hostname"

	// FieldUser groups by the coalesced account name: target_username
	// when set, otherwise username.
	FieldUser = "user"

	// FieldHour groups by the event timestamp's UTC hour of day ("0".."23").
	FieldHour = "hour"
)

// FieldPattern is a regex predicate on a string event field.
type FieldPattern struct {
	Field   string
	Pattern *regexp.Regexp
}

// HourRange is a daily window [Start, End) in UTC hours. Filters using it
// select events OUTSIDE the range (before Start or at/after End).
type HourRange struct {
	Start int
	End   int
}

// EventFilter selects events for a query. Zero values mean "any".
// From is inclusive, To exclusive.
type EventFilter struct {
	From time.Time
	To   time.Time

	EventCode int
	EventType string
	Status    string
	LogonType int

	// RequireFields lists string fields that must be non-empty.
	RequireFields []string

	// MatchAny requires at least one of the patterns to match its field.
	MatchAny []FieldPattern

	// OutsideHours, when set, keeps only events outside the given daily
	// window (the after-hours restriction).
	OutsideHours *HourRange
}

// Matches reports whether an event satisfies the filter. The in-memory
// store evaluates filters with this; the Mongo store compiles them into
// aggregation match stages with identical semantics.
func (f *EventFilter) Matches(e *Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	if f.EventCode != 0 && e.EventCode != f.EventCode {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.LogonType != 0 && e.LogonType != f.LogonType {
		return false
	}
	for _, field := range f.RequireFields {
		if FieldValue(e, field) == "" {
			return false
		}
	}
	if len(f.MatchAny) > 0 {
		matched := false
		for _, fp := range f.MatchAny {
			if fp.Pattern.MatchString(FieldValue(e, fp.Field)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.OutsideHours != nil {
		hour := e.Timestamp.UTC().Hour()
		if hour >= f.OutsideHours.Start && hour < f.OutsideHours.End {
			return false
		}
	}
	return true
}

// GroupOptions controls what each group accumulates beyond count and the
// first/last timestamps.
type GroupOptions struct {
	// CollectIDs accumulates the event IDs of every member, in the
	// order encountered.
	CollectIDs bool
	// Collect accumulates the set of distinct non-empty values per field.
	Collect []string
	// Push accumulates every non-empty value per field, duplicates kept.
	Push []string
}

// GroupResult is one group produced by EventStore.GroupEvents.
type GroupResult struct {
	Keys      map[string]string
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
	EventIDs  []string
	Sets      map[string][]string
	Lists     map[string][]string
}

// Key returns the group's value for a grouping field.
func (g *GroupResult) Key(field string) string { return g.Keys[field] }

// Set returns the distinct values collected for a field.
func (g *GroupResult) Set(field string) []string { return g.Sets[field] }

// List returns the pushed values for a field.
func (g *GroupResult) List(field string) []string { return g.Lists[field] }

// FieldValue extracts a named string field from an event. FieldHour
// renders the UTC hour of day; unknown names yield "".
func FieldValue(e *Event, field string) string {
	switch field {
	case FieldSourceIP:
		return e.SourceIP
	case FieldUsername:
		return e.Username
	case FieldTargetUsername:
		return e.TargetUsername
	case FieldUser:
		return e.User()
	case FieldProcessName:
		return e.ProcessName
	case FieldFilePath:
		return e.FilePath
	case FieldPrivilegeList:
		return e.PrivilegeList
	case FieldHostname:
		return e.Hostname
	case FieldHour:
		return strconv.Itoa(e.Timestamp.UTC().Hour())
	}
	return ""
}
