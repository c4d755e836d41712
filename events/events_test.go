package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestBatch_RevertDropsEvents(t *testing.T) {
	j := state.NewJournal()
	b := NewBatch(j)

	b.Emit(ReservesUpdated{Pair: pairAddr, Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(2)})
	snap := j.Snapshot()
	b.Emit(Swapped{Pair: pairAddr})
	b.Emit(ReservesUpdated{Pair: pairAddr})
	require.Equal(t, 3, b.Len())

	j.RevertToSnapshot(snap)
	assert.Equal(t, 1, b.Len())

	drained := b.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, TypeReservesUpdated, drained[0].EventType())
	assert.Equal(t, 0, b.Len())
}

func TestFilter(t *testing.T) {
	rec := &Recorder{}
	Multi{rec, nil, NoopEmitter{}}.Emit(Swapped{Pair: pairAddr})
	rec.Emit(ReservesUpdated{Pair: pairAddr})
	rec.Emit(Swapped{Pair: pairAddr})

	swaps := Filter[Swapped](rec.Events())
	assert.Len(t, swaps, 2)
	syncs := Filter[ReservesUpdated](rec.Events())
	assert.Len(t, syncs, 1)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestNewEnvelope(t *testing.T) {
	ev := Swapped{
		Pair:       pairAddr,
		Amount0In:  uint256.NewInt(5),
		Amount1In:  uint256.NewInt(0),
		Amount0Out: uint256.NewInt(0),
		Amount1Out: uint256.NewInt(4),
	}
	env, err := NewEnvelope(ev, 7, 1700000000)
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, TypeSwapped, env.Type)
	assert.Equal(t, pairAddr.Hex(), env.Key)
	assert.Equal(t, SwapTopic.Hex(), env.Topic)
	assert.Equal(t, uint64(7), env.Height)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "5", decoded["amount0In"])
	assert.Equal(t, "4", decoded["amount1Out"])
}

func TestTopics(t *testing.T) {
	// canonical Uniswap V2 topics
	assert.Equal(t, "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1", SyncTopic.Hex())
	assert.Equal(t, "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822", SwapTopic.Hex())
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferTopic.Hex())
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	sink := SinkFunc(func(ctx context.Context, envs []Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range envs {
			got = append(got, e.ID)
		}
		return nil
	})

	d, err := NewDispatcher(DispatcherConfig{
		Sinks:      []Sink{sink},
		BufferSize: 4,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()

	d.Dispatch([]Envelope{{ID: "a"}, {ID: "b"}})
	d.Dispatch(nil)
	d.Dispatch([]Envelope{{ID: "c"}})
	d.Close()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDispatcherConfig_Validate(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{BufferSize: 0, Logger: slog.Default()})
	assert.Error(t, err)
	_, err = NewDispatcher(DispatcherConfig{BufferSize: 1})
	assert.Error(t, err)
}

func TestDispatcher_DropsAfterRunCancelled(t *testing.T) {
	d, err := NewDispatcher(DispatcherConfig{
		BufferSize: 1,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	returned := make(chan struct{})
	go func() {
		d.Dispatch([]Envelope{{ID: "a"}})
		d.Dispatch([]Envelope{{ID: "b"}})
		d.Dispatch([]Envelope{{ID: "c"}})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked after Run returned")
	}
}
