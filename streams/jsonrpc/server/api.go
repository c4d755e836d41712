package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/exchange"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// Namespace is the JSON-RPC namespace the API is registered under.
const Namespace = "amm"

// Exchange is the part of the exchange the API reads from.
type Exchange interface {
	State() *engine.State
	View(fn func(*exchange.Tx) error) error
}

// Reserves is the reply of amm_getReserves.
type Reserves struct {
	Pair               common.Address `json:"pair"`
	Token0             common.Address `json:"token0"`
	Token1             common.Address `json:"token1"`
	Reserve0           *uint256.Int   `json:"reserve0"`
	Reserve1           *uint256.Int   `json:"reserve1"`
	BlockTimestampLast uint32         `json:"blockTimestampLast"`
}

// API implements the amm namespace.
type API struct {
	exchange Exchange
	streamer *Streamer
	logger   Logger
}

// NewAPI returns the API backed by ex and streamer.
func NewAPI(ex Exchange, streamer *Streamer, logger Logger) *API {
	return &API{exchange: ex, streamer: streamer, logger: logger}
}

// Register adds api to srv under Namespace.
func Register(srv *rpc.Server, api *API) error {
	if err := srv.RegisterName(Namespace, api); err != nil {
		return fmt.Errorf("failed to register %s API: %w", Namespace, err)
	}
	return nil
}

// SubscribeStateStream streams a full state followed by diffs.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	sub, err := api.streamer.add(rpcSub.ID)
	if err != nil {
		return nil, err
	}

	go func() {
		defer api.streamer.remove(rpcSub.ID)
		for {
			select {
			case ev := <-sub.ch:
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					api.logger.Warn("failed to notify subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			case <-api.streamer.done:
				return
			}
		}
	}()
	return rpcSub, nil
}

// GetState returns the latest committed state.
func (api *API) GetState(ctx context.Context) (*engine.State, error) {
	return api.exchange.State(), nil
}

// GetReserves returns the reserves of the pair for tokenA and tokenB.
func (api *API) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*Reserves, error) {
	var out *Reserves
	err := api.exchange.View(func(tx *exchange.Tx) error {
		p, ok := tx.Factory().GetPair(tokenA, tokenB)
		if !ok {
			return fmt.Errorf("%w: %s/%s", uniswapv2.ErrPairNotFound, tokenA.Hex(), tokenB.Hex())
		}
		r0, r1, ts := p.GetReserves()
		out = &Reserves{Pair: p.Address(), Token0: p.Token0(), Token1: p.Token1(), Reserve0: r0, Reserve1: r1, BlockTimestampLast: ts}
		return nil
	})
	return out, err
}

// GetAmountsOut quotes an exact-input trade along path.
func (api *API) GetAmountsOut(ctx context.Context, amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if amountIn == nil {
		return nil, errors.New("amountIn is required")
	}
	var out []*uint256.Int
	err := api.exchange.View(func(tx *exchange.Tx) error {
		var err error
		out, err = tx.Router().GetAmountsOut(amountIn, path)
		return err
	})
	return out, err
}

// GetAmountsIn quotes an exact-output trade along path.
func (api *API) GetAmountsIn(ctx context.Context, amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if amountOut == nil {
		return nil, errors.New("amountOut is required")
	}
	var out []*uint256.Int
	err := api.exchange.View(func(tx *exchange.Tx) error {
		var err error
		out, err = tx.Router().GetAmountsIn(amountOut, path)
		return err
	})
	return out, err
}

// GetBestRoute finds the exact-input path with the largest output. A zero
// maxHops uses the router default.
func (api *API) GetBestRoute(ctx context.Context, amountIn *uint256.Int, tokenIn, tokenOut common.Address, maxHops int) (*router.Route, error) {
	if amountIn == nil {
		return nil, errors.New("amountIn is required")
	}
	var out router.Route
	err := api.exchange.View(func(tx *exchange.Tx) error {
		var err error
		out, err = tx.Router().BestPathExactIn(amountIn, tokenIn, tokenOut, maxHops)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
