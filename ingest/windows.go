package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"argus/core"
)

// WindowsEventParser recognizes Windows Security event log fragments in
// three shapes, tried in order: XML export, CSV export, loose text.
// Events whose ID is not in core.EventTypeByCode are absent.
type WindowsEventParser struct{}

// NewWindowsEventParser creates a Windows Event Log parser.
func NewWindowsEventParser() *WindowsEventParser { return &WindowsEventParser{} }

// Name implements Parser.
func (p *WindowsEventParser) Name() string { return "windows_event" }

var (
	winXMLEventIDRe   = regexp.MustCompile(`(?i)<EventID[^>]*>(\d+)</EventID>`)
	winXMLTimeRe      = regexp.MustCompile(`(?i)<TimeCreated[^>]*SystemTime="([^"]+)"`)
	winXMLEventDataRe = regexp.MustCompile(`(?is)<EventData[^>]*>(.*?)</EventData>`)
	winXMLDataElemRe  = regexp.MustCompile(`(?i)<Data[^>]*Name="([^"]+)"[^>]*>([^<]*)</Data>`)

	winIPv4Re      = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	winTextIDRe    = regexp.MustCompile(`(?i)Event[_\s]*ID[:\s]*(\d+)`)
	winLeadingIDRe = regexp.MustCompile(`^(\d{4})\s*-`)
	winLogonTypeRe = regexp.MustCompile(`(?i)Logon[_\s]*Type[:\s]*(\d+)`)
	winUserRe      = regexp.MustCompile(`(?i)(?:Account|User|Subject)[\s:]+(?:Name)?[\s:]+([^\\\s,]+(?:\\[^\s,]+)?)`)
	winProcessRe   = regexp.MustCompile(`(?i)(?:Process|Image|New[_\s]*Process)[\s:]+Name[:\s]+([^\s,]+)`)
	winCmdLineRe   = regexp.MustCompile(`(?i)(?:Process[_\s]*)?Command[_\s]*Line[:\s]+(.+?)(?:$|,)`)
)

var winTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// Parse implements Parser.
func (p *WindowsEventParser) Parse(line string) *ParsedEvent {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if ev := p.parseXML(line); ev != nil {
		return ev
	}
	if ev := p.parseCSV(line); ev != nil {
		return ev
	}
	return p.parseText(line)
}

func (p *WindowsEventParser) parseXML(raw string) *ParsedEvent {
	idMatch := winXMLEventIDRe.FindStringSubmatch(raw)
	if idMatch == nil {
		return nil
	}
	code, err := strconv.Atoi(idMatch[1])
	if err != nil || core.EventTypeByCode[code] == "" {
		return nil
	}

	ev := newWindowsEvent(code, raw)

	if tm := winXMLTimeRe.FindStringSubmatch(raw); tm != nil {
		ev.Timestamp = parseWindowsTimestamp(tm[1])
	}

	if section := winXMLEventDataRe.FindStringSubmatch(raw); section != nil {
		ipCount := 0
		for _, elem := range winXMLDataElemRe.FindAllStringSubmatch(section[1], -1) {
			name := strings.ToLower(elem[1])
			value := strings.TrimSpace(elem[2])
			if value == "" || value == "-" {
				continue
			}
			switch name {
			case "targetusername":
				ev.TargetUsername = value
			case "subjectusername":
				ev.Username = value
			case "ipaddress", "sourceaddress", "clientaddress":
				// First address is the source, second the destination.
				if ipCount == 0 {
					ev.SourceIP = value
				} else if ev.DestinationIP == "" {
					ev.DestinationIP = value
				}
				ipCount++
			case "logontype":
				if lt, err := strconv.Atoi(value); err == nil {
					ev.LogonType = lt
				}
			case "processname", "newprocessname":
				ev.ProcessName = value
			case "commandline", "processcommandline":
				ev.CommandLine = value
			case "privilegelist":
				ev.PrivilegeList = value
			case "objectname", "sharename", "relativetargetname":
				switch code {
				case core.CodeNetworkShareAccess:
					if ev.FilePath == "" {
						ev.FilePath = value
					}
				case core.CodeRegistryModified:
					ev.RegistryKey = value
				}
			case "workstationname", "computername":
				ev.Hostname = value
			case "targetdomainname", "domain":
				ev.Domain = value
			}
		}
	}

	if ev.SourceIP == "" {
		if ip := winIPv4Re.FindString(raw); ip != "" {
			ev.SourceIP = ip
		}
	}
	return ev
}

func (p *WindowsEventParser) parseCSV(raw string) *ParsedEvent {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return nil
	}
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `"`)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil || core.EventTypeByCode[code] == "" {
		return nil
	}

	ev := newWindowsEvent(code, raw)
	if parts[0] != "" {
		ev.Timestamp = parseWindowsTimestamp(parts[0])
	}

	message := raw
	if len(parts) > 3 && parts[3] != "" {
		message = parts[3]
	}
	extractWindowsFields(ev, message)
	return ev
}

func (p *WindowsEventParser) parseText(raw string) *ParsedEvent {
	var code int
	if m := winTextIDRe.FindStringSubmatch(raw); m != nil {
		code, _ = strconv.Atoi(m[1])
	} else if m := winLeadingIDRe.FindStringSubmatch(raw); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	if code == 0 || core.EventTypeByCode[code] == "" {
		return nil
	}

	ev := newWindowsEvent(code, raw)
	extractWindowsFields(ev, raw)
	return ev
}

// extractWindowsFields pulls common fields out of a free-form message:
// IP addresses (first is source, second destination), the account name
// (splitting DOMAIN\user when present), logon type, process and command
// line.
func extractWindowsFields(ev *ParsedEvent, message string) {
	ips := winIPv4Re.FindAllString(message, 2)
	if len(ips) > 0 {
		ev.SourceIP = ips[0]
	}
	if len(ips) > 1 {
		ev.DestinationIP = ips[1]
	}

	if m := winUserRe.FindStringSubmatch(message); m != nil {
		user := m[1]
		if domain, name, ok := strings.Cut(user, `\`); ok {
			ev.Domain = domain
			ev.Username = name
		} else {
			ev.Username = user
		}
	}

	if m := winLogonTypeRe.FindStringSubmatch(message); m != nil {
		if lt, err := strconv.Atoi(m[1]); err == nil {
			ev.LogonType = lt
		}
	}
	if m := winProcessRe.FindStringSubmatch(message); m != nil {
		ev.ProcessName = m[1]
	}
	if m := winCmdLineRe.FindStringSubmatch(message); m != nil {
		ev.CommandLine = strings.TrimSpace(m[1])
	}
}

func newWindowsEvent(code int, raw string) *ParsedEvent {
	return &ParsedEvent{
		EventCode: code,
		EventType: core.EventTypeByCode[code],
		Service:   "windows_event_log",
		Status:    windowsStatus(code),
		RawLog:    raw,
	}
}

// windowsStatus derives the event status from the event code: logon
// success, admin logon and Kerberos ticket events succeed, failed logons
// fail, and audit-style events (process creation, share access, registry
// modification, explicit credentials, lockout) are unknown.
func windowsStatus(code int) string {
	switch code {
	case core.CodeLogonSuccess, core.CodeAdminLogon, core.CodeKerberosTGT, core.CodeKerberosService:
		return core.StatusSuccess
	case core.CodeLogonFailure:
		return core.StatusFailure
	default:
		return core.StatusUnknown
	}
}

func parseWindowsTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range winTimestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
