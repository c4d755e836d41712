// Package kafka publishes committed exchange events to a Kafka topic. Events
// are keyed by their partition key (the pair address for pair events), so
// every event of one pair lands on one partition in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/defistate/defistate-amm-go/events"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for a Publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	// Writer replaces the writer built from Brokers and Topic.
	Writer Writer
	Logger Logger
}

func (c *Config) validate() error {
	if c.Writer == nil {
		if len(c.Brokers) == 0 {
			return errors.New("config: Brokers is required")
		}
		if c.Topic == "" {
			return errors.New("config: Topic is required")
		}
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Publisher is an events.Sink writing one Kafka message per envelope.
type Publisher struct {
	writer Writer
	logger Logger
}

// NewPublisher creates a publisher. Without a Writer it builds a synchronous
// hash-balanced writer that waits for every in-sync replica.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := cfg.Writer
	if w == nil {
		w = &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
		}
	}
	return &Publisher{writer: w, logger: cfg.Logger}, nil
}

// Publish writes envs as a single batch.
func (p *Publisher) Publish(ctx context.Context, envs []events.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	msgs, err := Messages(envs)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d messages: %w", len(msgs), err)
	}
	p.logger.Debug("events published to kafka", "count", len(msgs), "height", envs[0].Height)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Messages converts envelopes to Kafka messages. Envelopes without a key are
// keyed by their type.
func Messages(envs []events.Envelope) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, len(envs))
	for i, env := range envs {
		value, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s: %w", env.ID, err)
		}
		key := env.Key
		if key == "" {
			key = env.Type
		}
		msgs[i] = kafkago.Message{
			Key:   []byte(key),
			Value: value,
			Time:  time.Unix(int64(env.Timestamp), 0),
			Headers: []kafkago.Header{
				{Key: "id", Value: []byte(env.ID)},
				{Key: "type", Value: []byte(env.Type)},
				{Key: "height", Value: []byte(strconv.FormatUint(env.Height, 10))},
			},
		}
	}
	return msgs, nil
}
