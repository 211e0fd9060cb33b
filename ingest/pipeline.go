package ingest

import (
	"bufio"
	"context"
	"io"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// Pipeline feeds raw log lines through the parser chain into the
// storage channel. Unrecognized lines are counted and dropped; the
// stream itself never aborts.
type Pipeline struct {
	parser *MultiParser
	out    chan<- *core.Event
	logger *zap.SugaredLogger
}

// NewPipeline creates an ingestion pipeline writing to the given
// event channel.
func NewPipeline(parser *MultiParser, out chan<- *core.Event, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{parser: parser, out: out, logger: logger}
}

// IngestLine parses one raw line and forwards the normalized event.
// It reports whether the line was recognized.
func (p *Pipeline) IngestLine(line string) bool {
	if line == "" {
		return false
	}
	event := p.parser.Parse(line)
	if event == nil {
		metrics.LinesRejected.Inc()
		return false
	}
	p.out <- event
	return true
}

// Run reads lines from r until EOF or context cancellation.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines, accepted := 0, 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		lines++
		if p.IngestLine(scanner.Text()) {
			accepted++
		}
	}
	p.logger.Infof("Ingestion finished: %d/%d lines accepted", accepted, lines)
	return scanner.Err()
}
