package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"argus/core"
)

// httpLogRe matches "timestamp httpd[pid]: METHOD /path HTTP/x.y status - source_ip".
var httpLogRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) httpd\[(\d+)\]: (\w+) (\S+) HTTP/[\d.]+ (\d+) - (\d+\.\d+\.\d+\.\d+)`)

// HTTPParser recognizes httpd access log lines.
type HTTPParser struct{}

// NewHTTPParser creates an HTTP log parser.
func NewHTTPParser() *HTTPParser { return &HTTPParser{} }

// Name implements Parser.
func (p *HTTPParser) Name() string { return "http" }

// Parse implements Parser. Status is success for 2xx/3xx responses;
// severity is pre-hinted from the response code (401/403 high, 5xx
// medium, otherwise low).
func (p *HTTPParser) Parse(line string) *ParsedEvent {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	m := httpLogRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	code, err := strconv.Atoi(m[5])
	if err != nil {
		return nil
	}

	status := core.StatusFailure
	if code >= 200 && code < 400 {
		status = core.StatusSuccess
	}

	severity := core.SeverityLow
	switch {
	case code == 401 || code == 403:
		severity = core.SeverityHigh
	case code >= 500:
		severity = core.SeverityMedium
	}

	ts, err := time.Parse(sshTimestampLayout, m[1])
	if err != nil {
		ts = time.Time{}
	}

	return &ParsedEvent{
		Timestamp: ts,
		SourceIP:  m[6],
		EventType: "http_request",
		Service:   "httpd",
		Status:    status,
		Severity:  severity,
		RawLog:    line,
	}
}
