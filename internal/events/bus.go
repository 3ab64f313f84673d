// Package events fans pipeline progress out to the subscriber of each run.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives the events of one run.
type Sink interface {
	Send(Event) error
	Close() error
}

// FuncSink adapts a function to a Sink.
type FuncSink struct {
	fn func(Event) error
}

func NewFuncSink(fn func(Event) error) *FuncSink { return &FuncSink{fn: fn} }

func (f *FuncSink) Send(e Event) error { return f.fn(e) }
func (f *FuncSink) Close() error       { return nil }

// Bus holds at most one subscriber per run id. Sinks must be comparable.
type Bus struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[string]Sink
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "events").Logger(), subs: map[string]Sink{}}
}

// Subscribe registers sink for runID, replacing any previous subscriber.
func (b *Bus) Subscribe(runID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[runID] = sink
}

// Unsubscribe removes sink if it is still the subscriber of runID.
func (b *Bus) Unsubscribe(runID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.subs[runID]; ok && cur == sink {
		delete(b.subs, runID)
	}
}

// Publish delivers e to the subscriber of runID. Absent or failing subscribers are
// ignored; a failing one is dropped.
func (b *Bus) Publish(runID string, e Event) {
	b.mu.RLock()
	sink, ok := b.subs[runID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	if err := sink.Send(e); err != nil {
		b.log.Debug().Err(err).Str("run_id", runID).Msg("dropping subscriber")
		b.Unsubscribe(runID, sink)
		_ = sink.Close()
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
