package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the wire form of a committed event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Height    uint64          `json:"height"`
	Timestamp uint64          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps ev with a fresh ID and the commit coordinates.
func NewEnvelope(ev Event, height, timestamp uint64) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s event: %w", ev.EventType(), err)
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      ev.EventType(),
		Height:    height,
		Timestamp: timestamp,
		Payload:   payload,
	}
	if k, ok := ev.(Keyed); ok {
		env.Key = k.EventKey()
	}
	if t, ok := ev.(Topical); ok {
		env.Topic = t.Topic().Hex()
	}
	return env, nil
}

// Wrap converts a committed batch into envelopes.
func Wrap(evs []Event, height, timestamp uint64) ([]Envelope, error) {
	out := make([]Envelope, 0, len(evs))
	for _, ev := range evs {
		env, err := NewEnvelope(ev, height, timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Sink consumes committed envelopes.
type Sink interface {
	Publish(ctx context.Context, envs []Envelope) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, envs []Envelope) error

func (f SinkFunc) Publish(ctx context.Context, envs []Envelope) error { return f(ctx, envs) }
