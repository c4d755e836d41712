package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func discard() Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var pairAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

func envelopes(t *testing.T) []events.Envelope {
	t.Helper()
	envs, err := events.Wrap([]events.Event{
		events.ReservesUpdated{Pair: pairAddr, Reserve0: uint256.NewInt(5), Reserve1: uint256.NewInt(10)},
		events.Transfer{Asset: pairAddr, To: pairAddr, Value: uint256.NewInt(1)},
	}, 7, 1_700_000_000)
	require.NoError(t, err)
	return envs
}

func header(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(Config{Logger: discard()})
	assert.Error(t, err)
	_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}, Logger: discard()})
	assert.Error(t, err)
	_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "amm-events"})
	assert.Error(t, err)

	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "amm-events", Logger: discard()})
	require.NoError(t, err)
	w, ok := p.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "amm-events", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
}

func TestMessages(t *testing.T) {
	envs := envelopes(t)
	msgs, err := Messages(envs)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for i, m := range msgs {
		assert.Equal(t, pairAddr.Hex(), string(m.Key))
		assert.Equal(t, envs[i].ID, header(m, "id"))
		assert.Equal(t, envs[i].Type, header(m, "type"))
		assert.Equal(t, "7", header(m, "height"))
		assert.Equal(t, int64(1_700_000_000), m.Time.Unix())

		var decoded events.Envelope
		require.NoError(t, json.Unmarshal(m.Value, &decoded))
		assert.Equal(t, envs[i].ID, decoded.ID)
		assert.JSONEq(t, string(envs[i].Payload), string(decoded.Payload))
	}
}

func TestMessages_UnkeyedUsesType(t *testing.T) {
	msgs, err := Messages([]events.Envelope{{ID: "x", Type: "custom", Payload: json.RawMessage(`{}`)}})
	require.NoError(t, err)
	assert.Equal(t, "custom", string(msgs[0].Key))
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p, err := NewPublisher(Config{Writer: w, Logger: discard()})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Empty(t, w.msgs)

	require.NoError(t, p.Publish(context.Background(), envelopes(t)))
	assert.Len(t, w.msgs, 2)

	w.err = errors.New("broker down")
	assert.ErrorIs(t, p.Publish(context.Background(), envelopes(t)), w.err)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
