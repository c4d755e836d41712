package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/exchange"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const now = uint64(1_700_000_000)

var (
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	tokenA     = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	tokenB     = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	tokenC     = common.HexToAddress("0xcccc000000000000000000000000000000000003")
	alice      = common.HexToAddress("0xa11ce00000000000000000000000000000000000")

	e18 = uint256.NewInt(1_000_000_000_000_000_000)
)

func ether(n uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(n), e18) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newExchange(t *testing.T, observers ...exchange.Observer) *exchange.Exchange {
	t.Helper()
	ex, err := exchange.New(exchange.Config{
		ChainID:        1,
		FactoryAddress: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		WETHAddress:    common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		RouterAddress:  routerAddr,
		Clock:          func() uint64 { return now },
		Observers:      observers,
		Registerer:     prometheus.NewRegistry(),
		Logger:         discard(),
	})
	require.NoError(t, err)
	return ex
}

func fund(t *testing.T, ex *exchange.Exchange) {
	t.Helper()
	require.NoError(t, ex.Execute(context.Background(), func(tx *exchange.Tx) error {
		for _, asset := range []common.Address{tokenA, tokenB, tokenC} {
			if err := tx.Ledger().Mint(asset, alice, ether(1000)); err != nil {
				return err
			}
			if err := tx.Ledger().Approve(asset, alice, routerAddr, ledger.MaxAllowance); err != nil {
				return err
			}
		}
		return nil
	}))
}

func addLiquidity(t *testing.T, ex *exchange.Exchange, a, b common.Address, amountA, amountB *uint256.Int) {
	t.Helper()
	require.NoError(t, ex.Execute(context.Background(), func(tx *exchange.Tx) error {
		_, err := tx.Router().AddLiquidity(alice, router.AddLiquidityParams{
			TokenA: a, TokenB: b, AmountADesired: amountA, AmountBDesired: amountB, To: alice, Deadline: now,
		})
		return err
	}))
}

func swap(t *testing.T, ex *exchange.Exchange, amountIn *uint256.Int, path ...common.Address) {
	t.Helper()
	require.NoError(t, ex.Execute(context.Background(), func(tx *exchange.Tx) error {
		_, err := tx.Router().SwapExactTokensForTokens(alice, router.ExactInParams{
			AmountIn: amountIn, Path: path, To: alice, Deadline: now,
		})
		return err
	}))
}

func newOps(t *testing.T) *stateops.StateOps {
	t.Helper()
	ops, err := stateops.NewStateOps(discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	return ops
}

type rig struct {
	ex       *exchange.Exchange
	streamer *Streamer
	srv      *rpc.Server
}

func newRig(t *testing.T, ctx context.Context) *rig {
	t.Helper()
	streamer, err := NewStreamer(StreamerConfig{Differ: newOps(t), BufferSize: 16, Logger: discard()})
	require.NoError(t, err)
	go streamer.Run(ctx)

	ex := newExchange(t, streamer.Publish)
	streamer.Publish(ex.State())

	srv := rpc.NewServer()
	t.Cleanup(srv.Stop)
	require.NoError(t, Register(srv, NewAPI(ex, streamer, discard())))
	return &rig{ex: ex, streamer: streamer, srv: srv}
}

func TestNewStreamer_Validation(t *testing.T) {
	_, err := NewStreamer(StreamerConfig{})
	assert.Error(t, err)
	_, err = NewStreamer(StreamerConfig{Differ: newOps(t), Logger: discard()})
	assert.Error(t, err)
}

func waitForHeight(t *testing.T, states <-chan *engine.State, height uint64) *engine.State {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if s.Block.Number == height {
				return s
			}
			require.Less(t, s.Block.Number, height)
		case <-timeout:
			t.Fatalf("timed out waiting for height %d", height)
		}
	}
}

func TestStateStream_ClientReconstructsExchangeState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRig(t, ctx)
	ops := newOps(t)

	c, err := client.NewClient(ctx, client.Config{
		Dial:             func(context.Context) (*rpc.Client, error) { return rpc.DialInProc(r.srv), nil },
		Logger:           discard(),
		BufferSize:       16,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	first := waitForHeight(t, c.State(), 0)
	assert.Equal(t, uint64(1), first.ChainID)

	fund(t, r.ex)
	addLiquidity(t, r.ex, tokenA, tokenB, ether(5), ether(10))
	addLiquidity(t, r.ex, tokenB, tokenC, ether(4), ether(4))
	swap(t, r.ex, ether(1), tokenA, tokenB, tokenC)

	got := waitForHeight(t, c.State(), 4)
	gotView, err := stateops.Extract(got)
	require.NoError(t, err)
	wantView, err := stateops.Extract(r.ex.State())
	require.NoError(t, err)

	assert.Equal(t, wantView.Tokens, gotView.Tokens)
	assert.Equal(t, wantView.PoolRegistry, gotView.PoolRegistry)
	require.Len(t, gotView.Pools, len(wantView.Pools))
	for i := range wantView.Pools {
		assert.Equal(t, wantView.Pools[i].Address, gotView.Pools[i].Address)
		assert.True(t, wantView.Pools[i].Reserve0.Eq(gotView.Pools[i].Reserve0))
		assert.True(t, wantView.Pools[i].Reserve1.Eq(gotView.Pools[i].Reserve1))
		assert.True(t, wantView.Pools[i].TotalSupply.Eq(gotView.Pools[i].TotalSupply))
	}
	assert.Equal(t, 1, r.streamer.Subscribers())
}

func TestAPI_Quotes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRig(t, ctx)
	fund(t, r.ex)
	addLiquidity(t, r.ex, tokenA, tokenB, ether(5), ether(10))

	rc := rpc.DialInProc(r.srv)
	defer rc.Close()

	var out []*uint256.Int
	require.NoError(t, rc.CallContext(ctx, &out, "amm_getAmountsOut", "1000000000000000000", []common.Address{tokenA, tokenB}))
	require.Len(t, out, 2)
	assert.Equal(t, uint256.MustFromDecimal("1662497915624478906"), out[1])

	require.NoError(t, rc.CallContext(ctx, &out, "amm_getAmountsIn", "1000000000000000000", []common.Address{tokenA, tokenB}))
	assert.Equal(t, uint256.MustFromDecimal("557227237267357629"), out[0])

	var res Reserves
	require.NoError(t, rc.CallContext(ctx, &res, "amm_getReserves", tokenB, tokenA))
	assert.Equal(t, tokenA, res.Token0)
	assert.Equal(t, ether(5), res.Reserve0)
	assert.Equal(t, ether(10), res.Reserve1)

	err := rc.CallContext(ctx, &res, "amm_getReserves", tokenA, tokenC)
	assert.Error(t, err)

	var route router.Route
	require.NoError(t, rc.CallContext(ctx, &route, "amm_getBestRoute", "1000000000000000000", tokenA, tokenB, 0))
	assert.Equal(t, []common.Address{tokenA, tokenB}, route.Path)
	assert.Equal(t, uint256.MustFromDecimal("1662497915624478906"), route.AmountOut)

	var state struct {
		ChainID uint64              `json:"chainId"`
		Block   engine.BlockSummary `json:"block"`
	}
	require.NoError(t, rc.CallContext(ctx, &state, "amm_getState"))
	assert.Equal(t, uint64(1), state.ChainID)
	assert.Equal(t, uint64(2), state.Block.Number)
}

type stubDiffer struct{ err error }

func (d stubDiffer) Diff(old, new *engine.State) (*differ.StateDiff, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &differ.StateDiff{FromBlock: old.Block.Number, ToBlock: new.Block}, nil
}

func height(n uint64) *engine.State {
	return &engine.State{Block: engine.BlockSummary{Number: n}, Protocols: map[engine.ProtocolID]engine.ProtocolState{}}
}

func TestStreamer_LaggingSubscriberGetsFullState(t *testing.T) {
	s, err := NewStreamer(StreamerConfig{Differ: stubDiffer{}, BufferSize: 1, Logger: discard()})
	require.NoError(t, err)

	s.broadcast(height(1))
	sub, err := s.add("sub")
	require.NoError(t, err)

	assert.Equal(t, EventTypeFull, (<-sub.ch).Type)

	s.broadcast(height(2))
	s.broadcast(height(3)) // queue full, dropped
	assert.True(t, sub.needFull)

	assert.Equal(t, EventTypeDiff, (<-sub.ch).Type)
	s.broadcast(height(4))
	ev := <-sub.ch
	assert.Equal(t, EventTypeFull, ev.Type)
	var st engine.State
	require.NoError(t, json.Unmarshal(ev.Payload, &st))
	assert.Equal(t, uint64(4), st.Block.Number)
	assert.False(t, sub.needFull)

	s.broadcast(height(5))
	assert.Equal(t, EventTypeDiff, (<-sub.ch).Type)
}

func TestStreamer_DiffFailureFallsBackToFull(t *testing.T) {
	s, err := NewStreamer(StreamerConfig{Differ: stubDiffer{err: errors.New("boom")}, BufferSize: 4, Logger: discard()})
	require.NoError(t, err)
	sub, err := s.add("sub")
	require.NoError(t, err)

	s.broadcast(height(1))
	s.broadcast(height(2))
	assert.Equal(t, EventTypeFull, (<-sub.ch).Type)
	assert.Equal(t, EventTypeFull, (<-sub.ch).Type)
}

func TestStreamer_IgnoresStaleStates(t *testing.T) {
	s, err := NewStreamer(StreamerConfig{Differ: stubDiffer{}, BufferSize: 4, Logger: discard()})
	require.NoError(t, err)
	s.broadcast(height(3))
	s.broadcast(height(2))
	assert.Equal(t, uint64(3), s.Latest().Block.Number)
}

func TestStreamer_StoppedRejectsSubscribers(t *testing.T) {
	s, err := NewStreamer(StreamerConfig{Differ: stubDiffer{}, BufferSize: 4, Logger: discard()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	_, err = s.add("late")
	assert.Error(t, err)
}
