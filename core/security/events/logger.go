package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/infra/secrets"
	"github.com/google/uuid"
)

// Sink durably or observably records one event.
type Sink interface {
	Record(ctx context.Context, ev SecurityEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev SecurityEvent) error

func (f SinkFunc) Record(ctx context.Context, ev SecurityEvent) error {
	return f(ctx, ev)
}

// Logger stamps events and records them synchronously to every sink in order.
type Logger struct {
	mu    sync.RWMutex
	sinks []Sink
	now   func() time.Time
	newID func() string
}

func NewLogger(sinks ...Sink) *Logger {
	return &Logger{
		sinks: append([]Sink(nil), sinks...),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the timestamp source; used by tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	if now != nil {
		l.now = now
	}
	return l
}

// AddSink appends a sink after construction.
func (l *Logger) AddSink(s Sink) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Log fills id, timestamp, category and risk level when absent, masks
// credentials in the details and records the event. Every sink is attempted
// and each failure is logged here. The joined failures are returned; callers
// on a request path log them and carry on.
func (l *Logger) Log(ctx context.Context, ev SecurityEvent) error {
	if l == nil {
		return nil
	}
	if ev.Type == "" {
		return errors.New("security event type required")
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityLow
	}
	if ev.Category == "" {
		ev.Category = CategoryFor(ev.Type)
	}
	if ev.RiskLevel == "" {
		ev.RiskLevel = RiskFor(ev.Severity)
	}
	ev.Details, _ = secrets.RedactDetails(ev.Details)

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()

	var errs []error
	for i, sink := range sinks {
		if err := sink.Record(ctx, ev); err != nil {
			logging.Warn("security-events", "sink record failed", "sink", i, "event_id", ev.ID, "type", ev.Type, "error", err)
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
