// Package ingest turns raw log lines into normalized events. Each parser
// recognizes one log format; MultiParser dispatches a line to the first
// parser that accepts it and normalizes the result.
package ingest

import (
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// ParsedEvent is the intermediate output of a format parser. Unset fields
// stay at their zero value; the normalizer fills defaults and computes
// severity.
type ParsedEvent struct {
	Timestamp      time.Time
	SourceIP       string
	DestinationIP  string
	Username       string
	TargetUsername string
	EventType      string
	Service        string
	Status         string
	Severity       string
	EventCode      int
	LogonType      int
	ProcessName    string
	CommandLine    string
	PrivilegeList  string
	FilePath       string
	RegistryKey    string
	Hostname       string
	Domain         string
	RawLog         string
}

// Parser extracts a ParsedEvent from a raw log line. A nil result means
// the line is not in this parser's format; that is not an error.
type Parser interface {
	Name() string
	Parse(line string) *ParsedEvent
}

// MultiParser tries parsers in a fixed priority order: Windows Event Log
// first (most structurally specific), then SSH, then HTTP.
type MultiParser struct {
	parsers []Parser
	logger  *zap.SugaredLogger
}

// NewMultiParser creates the dispatcher with the standard parser set.
func NewMultiParser(logger *zap.SugaredLogger) *MultiParser {
	return &MultiParser{
		parsers: []Parser{
			NewWindowsEventParser(),
			NewSSHParser(),
			NewHTTPParser(),
		},
		logger: logger,
	}
}

// Parse runs the line through the parser chain and normalizes the first
// hit, tagging it with the producing parser's name. Unrecognized lines
// and internal parser faults both yield nil; ingestion never aborts on a
// bad line.
func (mp *MultiParser) Parse(line string) (event *core.Event) {
	defer func() {
		if r := recover(); r != nil {
			mp.logger.Errorw("parser panic recovered", "panic", r, "line_len", len(line))
			event = nil
		}
	}()

	for _, p := range mp.parsers {
		parsed := p.Parse(line)
		if parsed == nil {
			continue
		}
		event = Normalize(parsed)
		if event != nil {
			event.SourceFormat = p.Name()
		}
		return event
	}
	return nil
}
