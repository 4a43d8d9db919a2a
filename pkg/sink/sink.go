// Package sink delivers search events to the caller and persists rare finds.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/internal/metrics"
	"github.com/screa/vanity-search/pkg/types"
)

// Sink receives progress, found and rare events. Implementations must be
// safe for concurrent use by all workers.
type Sink interface {
	Emit(ev types.Event)
}

// JSONSink writes one JSON object per line. Write failures are counted and
// dropped; losing a line never stops a search.
type JSONSink struct {
	mu      sync.Mutex
	w       io.Writer
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewJSONSink creates a sink writing to w
func NewJSONSink(w io.Writer, log *logger.Logger, m *metrics.Metrics) *JSONSink {
	return &JSONSink{w: w, logger: log, metrics: m}
}

// Emit implements Sink
func (s *JSONSink) Emit(ev types.Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("dropping unencodable event", "kind", ev.Kind, "err", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, err = s.w.Write(line)
	s.mu.Unlock()
	if err != nil {
		s.metrics.WriteError()
		s.logger.Debug("output write failed", "kind", ev.Kind, "err", err)
	}
}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Emit implements Sink
func (r *Recorder) Emit(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kind returns the recorded events of kind k, in order.
func (r *Recorder) Kind(k types.EventKind) []types.Event {
	var out []types.Event
	for _, ev := range r.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// RareLog appends rare finds to a text file. All workers share one RareLog
// so that records never interleave.
type RareLog struct {
	mu   sync.Mutex
	path string
}

// NewRareLog returns a log appending to path. An empty path disables it.
func NewRareLog(path string) *RareLog {
	return &RareLog{path: path}
}

// Path returns the file the log appends to.
func (l *RareLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one record: pattern, address and private key followed by a
// blank line.
func (l *RareLog) Append(pattern, address, privateKey string) error {
	if l == nil || l.path == "" {
		return nil
	}
	record := fmt.Sprintf("Pattern: %s\nAddress: %s\nPrivate Key: %s\n\n", pattern, address, privateKey)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open rare log: %w", err)
	}
	if _, err := f.WriteString(record); err != nil {
		_ = f.Close()
		return fmt.Errorf("append rare log: %w", err)
	}
	return f.Close()
}
