// Package client consumes the exchange state stream over JSON-RPC and keeps a
// reconstructed engine.State current by applying diffs to the last full state.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                  = "amm"
	StateStreamSubscriptionMethod = "subscribeStateStream"
)

// ErrOutOfSync is returned when a diff does not start at the last known height.
var ErrOutOfSync = errors.New("client: diff does not follow the last state")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to a previous state without mutating it.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// DecoderFunc decodes one protocol's data by schema.
type DecoderFunc func(schema engine.ProtocolSchema, data json.RawMessage) (any, error)

// DialFunc opens an RPC connection. The default dials Config.URL.
type DialFunc func(ctx context.Context) (*rpc.Client, error)

// Config holds the configuration for the client.
type Config struct {
	URL              string
	Dial             DialFunc
	Logger           Logger
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

func (c *Config) validate() error {
	if c.URL == "" && c.Dial == nil {
		return errors.New("config: URL or Dial is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	if c.StateDecoder == nil {
		return errors.New("config: StateDecoder is required")
	}
	if c.StateDiffDecoder == nil {
		return errors.New("config: StateDiffDecoder is required")
	}
	return nil
}

// StreamProcessor turns stream messages into states. It holds no connection
// and can be fed from any transport.
type StreamProcessor struct {
	lastState        *engine.State
	statePatcher     StatePatcherFunc
	stateDecoder     DecoderFunc
	stateDiffDecoder DecoderFunc
	stateCh          chan *engine.State
	logger           Logger
}

func NewStreamProcessor(
	logger Logger,
	bufferSize uint,
	statePatcher StatePatcherFunc,
	stateDecoder DecoderFunc,
	stateDiffDecoder DecoderFunc,
) *StreamProcessor {
	return &StreamProcessor{
		logger:           logger,
		stateCh:          make(chan *engine.State, bufferSize),
		statePatcher:     statePatcher,
		stateDecoder:     stateDecoder,
		stateDiffDecoder: stateDiffDecoder,
	}
}

// State returns the channel of reconstructed states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// Latest returns the last reconstructed state, or nil before the first full state.
func (sp *StreamProcessor) Latest() *engine.State {
	return sp.lastState
}

// Reset forgets the last state; the next message must be a full state.
func (sp *StreamProcessor) Reset() {
	sp.lastState = nil
}

// ProcessMessage decodes one stream message and publishes the resulting state.
// A diff that does not follow the last state yields ErrOutOfSync and leaves
// the last state in place.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	start := time.Now()
	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	var (
		state *engine.State
		err   error
	)
	switch event.Type {
	case EventTypeFull:
		state, err = sp.decodeFull(event.Payload)
	case EventTypeDiff:
		state, err = sp.applyDiff(event.Payload)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if err != nil {
		return err
	}

	sp.logLatency(state, time.Since(start), event.SentAt, event.Type)
	sp.lastState = state
	sp.stateCh <- state
	return nil
}

func (sp *StreamProcessor) decodeProtocols(in map[engine.ProtocolID]wireProtocol, decoder DecoderFunc) (map[engine.ProtocolID]engine.ProtocolState, error) {
	out := make(map[engine.ProtocolID]engine.ProtocolState, len(in))
	for id, p := range in {
		var data any
		if len(p.Data) > 0 && p.Error == "" {
			decoded, err := decoder(p.Schema, p.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode protocol %s: %w", id, err)
			}
			data = decoded
		}
		out[id] = engine.ProtocolState{
			Meta:              p.Meta,
			SyncedBlockNumber: p.SyncedBlockNumber,
			Schema:            p.Schema,
			Data:              data,
			Error:             p.Error,
		}
	}
	return out, nil
}

func (sp *StreamProcessor) decodeFull(payload json.RawMessage) (*engine.State, error) {
	var ws wireState
	if err := json.Unmarshal(payload, &ws); err != nil {
		return nil, fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}
	protocols, err := sp.decodeProtocols(ws.Protocols, sp.stateDecoder)
	if err != nil {
		return nil, err
	}
	return &engine.State{
		ChainID:   ws.ChainID,
		Timestamp: ws.Timestamp,
		Block:     ws.Block,
		Protocols: protocols,
	}, nil
}

func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*engine.State, error) {
	var wd wireStateDiff
	if err := json.Unmarshal(payload, &wd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}
	if sp.lastState == nil {
		return nil, fmt.Errorf("%w: diff %d -> %d before any full state", ErrOutOfSync, wd.FromBlock, wd.ToBlock.Number)
	}
	if last := sp.lastState.Block.Number; wd.FromBlock != last {
		return nil, fmt.Errorf("%w: last height %d, diff %d -> %d", ErrOutOfSync, last, wd.FromBlock, wd.ToBlock.Number)
	}

	decoded, err := sp.decodeProtocols(wd.Protocols, sp.stateDiffDecoder)
	if err != nil {
		return nil, err
	}
	diff := &differ.StateDiff{
		FromBlock: wd.FromBlock,
		ToBlock:   wd.ToBlock,
		Timestamp: wd.Timestamp,
		Protocols: make(map[engine.ProtocolID]differ.ProtocolDiff, len(decoded)),
	}
	for id, p := range decoded {
		diff.Protocols[id] = differ.ProtocolDiff{
			Meta:              p.Meta,
			SyncedBlockNumber: p.SyncedBlockNumber,
			Schema:            p.Schema,
			Data:              p.Data,
			Error:             p.Error,
		}
	}

	state, err := sp.statePatcher(sp.lastState, diff)
	if err != nil {
		return nil, fmt.Errorf("failed to patch state: %w", err)
	}
	state.Timestamp = diff.Timestamp
	return state, nil
}

func (sp *StreamProcessor) logLatency(state *engine.State, processing time.Duration, sentAt int64, kind string) {
	now := time.Now()
	sp.logger.Debug("state processed",
		"height", state.Block.Number,
		"type", kind,
		"protocols", len(state.Protocols),
		"latency_transport_ms", now.Add(-processing).Sub(time.Unix(0, sentAt)).Milliseconds(),
		"latency_proc_ms", processing.Milliseconds(),
		"latency_server_ms", time.Unix(0, sentAt).Sub(time.Unix(0, state.Block.ReceivedAt)).Milliseconds(),
	)
}

// Client keeps a subscription alive and feeds it to a StreamProcessor.
type Client struct {
	processor *StreamProcessor
	dial      DialFunc
	errCh     chan error
	logger    Logger
}

// NewClient starts streaming in the background until ctx is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dial := cfg.Dial
	if dial == nil {
		url := cfg.URL
		dial = func(ctx context.Context) (*rpc.Client, error) { return rpc.DialContext(ctx, url) }
	}

	c := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder),
		dial:      dial,
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go c.run(ctx)
	return c, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context) {
	defer close(c.errCh)
	delay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("client context canceled, shutting down")
			return
		}

		rpcClient, err := c.dial(ctx)
		if err != nil {
			c.logger.Error("failed to connect to RPC server, will retry", "error", err, "delay", delay)
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		c.logger.Info("connected to RPC server")
		delay = initialReconnectDelay

		// Every new subscription starts with a full state.
		c.processor.Reset()
		err = c.subscribeAndProcess(ctx, rpcClient)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("context canceled, shutting down")
			return
		}
		c.logger.Error("subscription ended, will reconnect", "error", err, "delay", delay)
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case rawData := <-rawCh:
			err := c.processor.ProcessMessage(rawData)
			if errors.Is(err, ErrOutOfSync) {
				// Resubscribing yields a fresh full state.
				return err
			}
			if err != nil {
				c.logger.Error("error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
