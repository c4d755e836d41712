// Package server publishes the exchange over JSON-RPC: a state stream that
// sends one full snapshot per subscriber followed by diffs, and read-only
// quoting methods.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

// Event types carried by Event.Type.
const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// Event is one stream message. Payload is an engine.State for full events and
// a differ.StateDiff for diff events. SentAt is in Unix nanoseconds.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Differ computes the diff between two consecutive published states.
type Differ interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// StreamerConfig holds the configuration for a Streamer.
type StreamerConfig struct {
	Differ Differ
	// BufferSize is the number of messages queued per subscriber.
	BufferSize uint
	Logger     Logger
}

func (c *StreamerConfig) validate() error {
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

type subscriber struct {
	ch       chan *Event
	needFull bool
}

func (s *subscriber) offer(ev *Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Streamer fans published states out to subscribers. Publish never blocks;
// Run encodes and delivers the latest state, so intermediate states may be
// folded into a single diff.
//
// A subscriber whose queue is full misses the message and is sent a full
// state at the next opportunity instead of a diff.
type Streamer struct {
	differ     Differ
	bufferSize int
	logger     Logger

	pending atomic.Pointer[engine.State]
	wake    chan struct{}

	mu       sync.Mutex
	last     *engine.State
	lastFull *Event
	subs     map[rpc.ID]*subscriber
	closed   bool
	done     chan struct{}
}

// NewStreamer creates a streamer. Call Run to start delivery.
func NewStreamer(cfg StreamerConfig) (*Streamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Streamer{
		differ:     cfg.Differ,
		bufferSize: int(cfg.BufferSize),
		logger:     cfg.Logger,
		wake:       make(chan struct{}, 1),
		subs:       make(map[rpc.ID]*subscriber),
		done:       make(chan struct{}),
	}, nil
}

// Publish hands the streamer a new state. It is safe to call from an
// exchange observer.
func (s *Streamer) Publish(state *engine.State) {
	if state == nil {
		return
	}
	s.pending.Store(state)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run delivers published states until ctx is done, then disconnects every
// subscriber.
func (s *Streamer) Run(ctx context.Context) {
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			if state := s.pending.Load(); state != nil {
				s.broadcast(state)
			}
		}
	}
}

// Latest returns the last state sent to subscribers.
func (s *Streamer) Latest() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Subscribers returns the number of connected subscribers.
func (s *Streamer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Streamer) broadcast(next *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.last
	if prev != nil && next.Block.Number <= prev.Block.Number {
		return
	}

	full, err := encode(EventTypeFull, next)
	if err != nil {
		s.logger.Error("failed to encode state", "height", next.Block.Number, "error", err)
		return
	}
	var diff *Event
	if prev != nil {
		d, err := s.differ.Diff(prev, next)
		if err != nil {
			s.logger.Warn("failed to diff states, sending full state", "from", prev.Block.Number, "to", next.Block.Number, "error", err)
		} else if diff, err = encode(EventTypeDiff, d); err != nil {
			s.logger.Error("failed to encode diff", "height", next.Block.Number, "error", err)
			diff = nil
		}
	}
	s.last, s.lastFull = next, full

	for id, sub := range s.subs {
		msg := diff
		if sub.needFull || msg == nil {
			msg = full
		}
		if sub.offer(msg) {
			sub.needFull = false
			continue
		}
		if !sub.needFull {
			s.logger.Warn("subscriber lagging, will resend full state", "id", id, "height", next.Block.Number)
		}
		sub.needFull = true
	}
}

// add registers a subscriber and queues the current full state for it.
func (s *Streamer) add(id rpc.ID) (*subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("server: streamer stopped")
	}
	sub := &subscriber{ch: make(chan *Event, s.bufferSize), needFull: true}
	if s.lastFull != nil && sub.offer(s.lastFull) {
		sub.needFull = false
	}
	s.subs[id] = sub
	s.logger.Info("subscriber connected", "id", id, "subscribers", len(s.subs))
	return sub, nil
}

func (s *Streamer) remove(id rpc.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	s.logger.Info("subscriber disconnected", "id", id, "subscribers", len(s.subs))
}

func (s *Streamer) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func encode(kind string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Event{Type: kind, Payload: raw, SentAt: time.Now().UnixNano()}, nil
}
