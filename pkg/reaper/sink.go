package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vnykmshr/opsched/pkg/metrics"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

// Entry is the exported outcome of one reaped process.
type Entry struct {
	PID      opsched.PID `json:"pid"`
	Command  string      `json:"command"`
	Priority string      `json:"priority"`
	ExitCode int         `json:"exit_code"`
	ReapedAt time.Time   `json:"reaped_at"`
	Instance string      `json:"instance,omitempty"`
}

// NewEntry describes a defunct process reaped at the given time.
func NewEntry(p *opsched.Process, instance string, at time.Time) Entry {
	code, _ := p.ExitCode()
	return Entry{
		PID:      p.PID(),
		Command:  p.Command(),
		Priority: p.Priority().String(),
		ExitCode: code,
		ReapedAt: at.UTC(),
		Instance: instance,
	}
}

// Sink receives reaped entries. A failing Record leaves the process in the
// defunct queue so it can be recorded again on the next reap.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Entry) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// LogSink writes each entry as a structured log record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a sink logging at Info. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: slog.LevelInfo}
}

// WithLevel sets the level entries are logged at.
func (s *LogSink) WithLevel(level slog.Level) *LogSink {
	s.level = level
	return s
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, e Entry) error {
	s.logger.Log(ctx, s.level, "process reaped",
		"pid", e.PID,
		"command", e.Command,
		"priority", e.Priority,
		"exit_code", e.ExitCode,
		"reaped_at", e.ReapedAt,
		"instance", e.Instance,
	)
	return nil
}

// MultiSink records every entry into each of its sinks in order. All sinks are
// tried and their errors are joined. A sink that accepted an entry is skipped
// when the same entry is recorded again after another sink failed, so a retry
// only reaches the sinks still missing it.
type MultiSink struct {
	sinks []Sink

	mu      sync.Mutex
	pending map[entryKey][]bool
}

// entryKey identifies a defunct process across reap attempts. ReapedAt is left
// out because each attempt stamps a new time; the pid stays defunct, and so
// unique, until every sink has accepted it.
type entryKey struct {
	instance string
	pid      opsched.PID
	command  string
	exitCode int
}

// NewMultiSink fans entries out to sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, pending: make(map[entryKey][]bool)}
}

// Record implements Sink.
func (m *MultiSink) Record(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{instance: e.Instance, pid: e.PID, command: e.Command, exitCode: e.ExitCode}
	delivered, ok := m.pending[key]
	if !ok {
		delivered = make([]bool, len(m.sinks))
	}

	var errs []error
	for i, s := range m.sinks {
		if delivered[i] {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered[i] = true
	}

	if len(errs) == 0 {
		delete(m.pending, key)
		return nil
	}
	m.pending[key] = delivered
	return errors.Join(errs...)
}

// Pending returns the number of entries some sink has not accepted yet.
func (m *MultiSink) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// instrumented counts the outcome of every Record call.
type instrumented struct {
	name    string
	sink    Sink
	metrics *metrics.Registry
}

// WithMetrics wraps s so each Record increments the sink_records_total
// counter, labelled with name and "ok" or "error". A nil registry uses
// metrics.DefaultRegistry.
func WithMetrics(name string, s Sink, reg *metrics.Registry) Sink {
	if reg == nil {
		reg = metrics.DefaultRegistry
	}
	return &instrumented{name: name, sink: s, metrics: reg}
}

func (i *instrumented) Record(ctx context.Context, e Entry) error {
	err := i.sink.Record(ctx, e)
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.metrics.SinkRecords.WithLabelValues(i.name, result).Inc()
	return err
}
