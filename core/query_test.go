package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventFilter_Matches(t *testing.T) {
	base := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	ev := &Event{
		Timestamp:     base,
		EventCode:     4625,
		EventType:     "windows_logon_failure",
		Status:        StatusFailure,
		LogonType:     10,
		SourceIP:      "203.0.113.50",
		Username:      "svc_backup",
		PrivilegeList: "SeDebugPrivilege",
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty_matches_all", EventFilter{}, true},
		{"from_inclusive", EventFilter{From: base}, true},
		{"from_excludes_earlier", EventFilter{From: base.Add(time.Second)}, false},
		{"to_exclusive", EventFilter{To: base}, false},
		{"to_includes_earlier", EventFilter{To: base.Add(time.Second)}, true},
		{"event_code_match", EventFilter{EventCode: 4625}, true},
		{"event_code_mismatch", EventFilter{EventCode: 4624}, false},
		{"event_type_match", EventFilter{EventType: "windows_logon_failure"}, true},
		{"event_type_mismatch", EventFilter{EventType: "ssh_login"}, false},
		{"status_mismatch", EventFilter{Status: StatusSuccess}, false},
		{"logon_type_match", EventFilter{LogonType: 10}, true},
		{"logon_type_mismatch", EventFilter{LogonType: 3}, false},
		{"require_present_field", EventFilter{RequireFields: []string{FieldPrivilegeList}}, true},
		{"require_empty_field", EventFilter{RequireFields: []string{FieldFilePath}}, false},
		{"match_any_hit", EventFilter{MatchAny: []FieldPattern{
			{Field: FieldPrivilegeList, Pattern: regexp.MustCompile(`SeDebugPrivilege`)},
		}}, true},
		{"match_any_miss", EventFilter{MatchAny: []FieldPattern{
			{Field: FieldPrivilegeList, Pattern: regexp.MustCompile(`SeTcbPrivilege`)},
		}}, false},
		{"inside_hours_rejected", EventFilter{OutsideHours: &HourRange{Start: 8, End: 18}}, false},
		{"outside_hours_kept", EventFilter{OutsideHours: &HourRange{Start: 15, End: 18}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestFieldValue(t *testing.T) {
	ev := &Event{
		Timestamp:      time.Date(2024, 3, 10, 23, 5, 0, 0, time.UTC),
		SourceIP:       "10.0.0.9",
		Username:       "operator",
		TargetUsername: "administrator",
		ProcessName:    "powershell.exe",
		Hostname:       "WS-42",
	}

	assert.Equal(t, "10.0.0.9", FieldValue(ev, FieldSourceIP))
	assert.Equal(t, "operator", FieldValue(ev, FieldUsername))
	assert.Equal(t, "administrator", FieldValue(ev, FieldTargetUsername))
	assert.Equal(t, "powershell.exe", FieldValue(ev, FieldProcessName))
	assert.Equal(t, "WS-42", FieldValue(ev, FieldHostname))
	assert.Equal(t, "23", FieldValue(ev, FieldHour))
	assert.Equal(t, "", FieldValue(ev, "no_such_field"))

	// user coalesces to target_username when present.
	assert.Equal(t, "administrator", FieldValue(ev, FieldUser))
	ev.TargetUsername = ""
	assert.Equal(t, "operator", FieldValue(ev, FieldUser))
}

func TestEventUser(t *testing.T) {
	e := &Event{Username: "alice"}
	assert.Equal(t, "alice", e.User())
	e.TargetUsername = "bob"
	assert.Equal(t, "bob", e.User())
}
