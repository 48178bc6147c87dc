// Package audit carries the one audit fact the engine emits per completed
// run. Storing audit records is an external collaborator's job; the engine
// only produces the fact.
package audit

import (
	"context"
	"sync"

	"github.com/WilsonNous/NousCard/pkg/logger"
)

// Event is the audit fact for one reconciliation run.
type Event struct {
	TenantID     string         `json:"tenant_id"`
	UserID       string         `json:"user_id"`
	RunID        string         `json:"run_id"`
	CountsByKind map[string]int `json:"counts_by_kind"`
	DurationMs   int64          `json:"duration_ms"`
	TimedOut     bool           `json:"timed_out"`
}

// Sink receives run audit facts. Implementations must not block the run on
// slow storage; an error is logged by the caller, never fatal to the run.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes audit facts to the structured log. It is the default sink
// when no audit collaborator is wired.
type LogSink struct {
	log logger.Logger
}

// Compile-time check that LogSink implements Sink
var _ Sink = (*LogSink)(nil)

// NewLogSink creates a log-backed audit sink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("audit")}
}

// Record logs the audit fact.
func (s *LogSink) Record(ctx context.Context, event Event) error {
	s.log.WithFields(logger.Fields{
		"tenant_id":      event.TenantID,
		"user_id":        event.UserID,
		"run_id":         event.RunID,
		"counts_by_kind": event.CountsByKind,
		"duration_ms":    event.DurationMs,
		"timed_out":      event.TimedOut,
	}).Info("Reconciliation run recorded")
	return nil
}

// CaptureSink retains events in memory, for tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// Compile-time check that CaptureSink implements Sink
var _ Sink = (*CaptureSink)(nil)

// Record appends the event.
func (s *CaptureSink) Record(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns the captured events.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
