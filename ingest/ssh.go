package ingest

import (
	"regexp"
	"strings"
	"time"

	"argus/core"
)

const sshTimestampLayout = "2006-01-02 15:04:05"

var (
	sshFailedPasswordRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) sshd\[(\d+)\]: Failed password for (?:invalid user )?(\S+) from (\d+\.\d+\.\d+\.\d+) port (\d+) ssh2`)
	sshAcceptedRe       = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) sshd\[(\d+)\]: Accepted (?:publickey|password) for (\S+) from (\d+\.\d+\.\d+\.\d+) port (\d+) ssh2`)
)

// SSHParser recognizes sshd authentication log lines.
type SSHParser struct{}

// NewSSHParser creates an SSH log parser.
func NewSSHParser() *SSHParser { return &SSHParser{} }

// Name implements Parser.
func (p *SSHParser) Name() string { return "ssh" }

// Parse implements Parser. It matches failed-password and accepted
// publickey/password lines; anything else is absent.
func (p *SSHParser) Parse(line string) *ParsedEvent {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := sshFailedPasswordRe.FindStringSubmatch(line); m != nil {
		return sshEvent(m, core.StatusFailure, line)
	}
	if m := sshAcceptedRe.FindStringSubmatch(line); m != nil {
		return sshEvent(m, core.StatusSuccess, line)
	}
	return nil
}

func sshEvent(m []string, status, line string) *ParsedEvent {
	ts, err := time.Parse(sshTimestampLayout, m[1])
	if err != nil {
		ts = time.Time{}
	}
	return &ParsedEvent{
		Timestamp: ts,
		SourceIP:  m[4],
		Username:  m[3],
		EventType: "ssh_login",
		Service:   "sshd",
		Status:    status,
		RawLog:    line,
	}
}
