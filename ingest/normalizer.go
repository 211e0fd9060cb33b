package ingest

import (
	"argus/core"
)

// Normalize completes a parsed event into the canonical record: every
// optional field gets an explicit default, the timestamp falls back to
// ingestion time, and severity is computed unless the parser pre-hinted
// it.
func Normalize(parsed *ParsedEvent) *core.Event {
	if parsed == nil {
		return nil
	}

	ev := core.NewEvent()
	ev.Timestamp = parsed.Timestamp
	if ev.Timestamp.IsZero() {
		ev.Timestamp = ev.IngestionTime
	}

	ev.SourceIP = parsed.SourceIP
	if ev.SourceIP == "" {
		ev.SourceIP = core.UnknownIP
	}
	ev.DestinationIP = parsed.DestinationIP
	ev.Username = parsed.Username
	ev.TargetUsername = parsed.TargetUsername

	ev.EventType = parsed.EventType
	if ev.EventType == "" {
		ev.EventType = "unknown"
	}
	ev.Service = parsed.Service
	if ev.Service == "" {
		ev.Service = "unknown"
	}
	ev.Status = parsed.Status
	if ev.Status == "" {
		ev.Status = core.StatusUnknown
	}

	ev.EventCode = parsed.EventCode
	ev.LogonType = parsed.LogonType
	ev.ProcessName = parsed.ProcessName
	ev.CommandLine = parsed.CommandLine
	ev.PrivilegeList = parsed.PrivilegeList
	ev.FilePath = parsed.FilePath
	ev.RegistryKey = parsed.RegistryKey
	ev.Hostname = parsed.Hostname
	ev.Domain = parsed.Domain
	ev.RawLog = parsed.RawLog

	ev.Severity = parsed.Severity
	if ev.Severity == "" {
		ev.Severity = calculateSeverity(parsed)
	}
	return ev
}

// calculateSeverity scores an event. Windows events use a fixed
// code-based table, refined by the suspicious-process and sensitive-file
// pattern sets; everything else falls back to the legacy status rules.
func calculateSeverity(parsed *ParsedEvent) string {
	if parsed.EventCode != 0 {
		switch parsed.EventCode {
		case core.CodeLogonFailure, core.CodeAdminLogon, core.CodeAccountLockout:
			return core.SeverityHigh
		case core.CodeExplicitCredentials:
			return core.SeverityCritical
		case core.CodeProcessCreation:
			if core.IsSuspiciousProcess(parsed.ProcessName, parsed.CommandLine) {
				return core.SeverityHigh
			}
			return core.SeverityMedium
		case core.CodeNetworkShareAccess:
			if core.IsSensitiveFile(parsed.FilePath) {
				return core.SeverityHigh
			}
			return core.SeverityMedium
		case core.CodeRegistryModified:
			return core.SeverityHigh
		case core.CodeLogonSuccess:
			if parsed.LogonType == core.LogonTypeRemoteInteractive {
				return core.SeverityMedium
			}
			return core.SeverityLow
		default:
			return core.SeverityMedium
		}
	}

	switch {
	case parsed.Status == core.StatusFailure && parsed.EventType == "ssh_login":
		return core.SeverityHigh
	case parsed.Status == core.StatusFailure && parsed.EventType == "http_request":
		return core.SeverityMedium
	case parsed.Status == core.StatusSuccess:
		return core.SeverityLow
	default:
		return core.SeverityLow
	}
}
