package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cutty/cutty/core/infra/bus"
	"github.com/cutty/cutty/core/infra/kv"
	"github.com/cutty/cutty/core/infra/metrics"
)

const eventKeyPrefix = "security-event:"

// EventKey is the KV key of one recorded event.
func EventKey(id string) string {
	return eventKeyPrefix + id
}

// KVSink writes each event as JSON with a retention TTL.
type KVSink struct {
	store     kv.Store
	retention func() time.Duration
}

// NewKVSink builds a KV sink. retention may be nil for no expiry; it is
// consulted per event so policy changes apply without a restart.
func NewKVSink(store kv.Store, retention func() time.Duration) *KVSink {
	return &KVSink{store: store, retention: retention}
}

func (s *KVSink) Record(ctx context.Context, ev SecurityEvent) error {
	if s == nil || s.store == nil {
		return errors.New("kv sink unavailable")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var ttl time.Duration
	if s.retention != nil {
		ttl = s.retention()
	}
	return s.store.Put(ctx, EventKey(ev.ID), string(data), ttl)
}

// Publisher is the part of the bus the event fan-out needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// BusSink publishes each event on the subject of its category.
type BusSink struct {
	pub Publisher
}

func NewBusSink(pub Publisher) *BusSink {
	return &BusSink{pub: pub}
}

func (s *BusSink) Record(_ context.Context, ev SecurityEvent) error {
	if s == nil || s.pub == nil {
		return errors.New("bus sink unavailable")
	}
	return s.pub.PublishJSON(bus.SecuritySubject(string(ev.Category)), ev)
}

// MetricsSink counts events by type and severity.
type MetricsSink struct {
	m metrics.SecurityMetrics
}

func NewMetricsSink(m metrics.SecurityMetrics) *MetricsSink {
	if m == nil {
		m = metrics.Noop{}
	}
	return &MetricsSink{m: m}
}

func (s *MetricsSink) Record(_ context.Context, ev SecurityEvent) error {
	s.m.IncSecurityEvent(string(ev.Type), string(ev.Severity))
	return nil
}
