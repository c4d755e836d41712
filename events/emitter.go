package events

import (
	"sync"

	"github.com/defistate/defistate-amm-go/state"
)

// Emitter receives events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Filter returns the events of concrete type T, in order.
func Filter[T Event](evs []Event) []T {
	var out []T
	for _, e := range evs {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// Batch buffers the events of a unit of work. Buffered events are dropped
// when the journal reverts past them and handed out by Drain on commit.
type Batch struct {
	mu      sync.Mutex
	journal *state.Journal
	events  []Event
}

// NewBatch returns a batch whose buffer is rolled back with journal.
func NewBatch(journal *state.Journal) *Batch {
	return &Batch{journal: journal}
}

func (b *Batch) Emit(e Event) {
	b.mu.Lock()
	n := len(b.events)
	b.events = append(b.events, e)
	b.mu.Unlock()

	b.journal.Append(func() {
		b.mu.Lock()
		if len(b.events) > n {
			b.events = b.events[:n]
		}
		b.mu.Unlock()
	})
}

// Len returns the number of buffered events.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Drain returns the buffered events and empties the buffer.
func (b *Batch) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}
