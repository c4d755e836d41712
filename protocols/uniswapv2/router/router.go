// Package router composes pairs into user-facing trades: multi-hop swaps in
// both directions, native-currency variants, and liquidity provision and
// removal with slippage bounds and deadlines.
//
// Every entry point is all-or-nothing: it runs inside a journal snapshot and
// any failure, including one deep inside a later hop, undoes every transfer.
package router

import (
	"errors"
	"fmt"

	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/pair"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Factory resolves and creates pairs.
type Factory interface {
	GetPair(tokenA, tokenB common.Address) (*pair.Pair, bool)
	CreatePair(tokenA, tokenB common.Address) (*pair.Pair, error)
	Pools() []uniswapv2.Pool
}

// Ledger moves assets on behalf of callers.
type Ledger interface {
	BalanceOf(asset, holder common.Address) *uint256.Int
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *uint256.Int) error
}

// Wrapper converts between native currency and its wrapped asset.
type Wrapper interface {
	Address() common.Address
	Deposit(account common.Address, amount *uint256.Int) error
	Withdraw(account common.Address, amount *uint256.Int) error
}

// Permits applies signed approvals.
type Permits interface {
	Permit(asset, owner, spender common.Address, value *uint256.Int, deadline uint64, sig []byte) error
}

// TopologyFunc returns the current token/pool graph. Its pool IDs must match
// the IDs reported by Factory.Pools.
type TopologyFunc func() *tokenpoolregistry.TokenPoolRegistryView

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for a Router.
type Config struct {
	Address common.Address
	// NativeAsset is the ledger asset holding native currency balances.
	NativeAsset common.Address

	Factory Factory
	Ledger  Ledger
	WETH    Wrapper
	// Permits may be nil, in which case the permit variants are rejected.
	Permits Permits
	// Topology may be nil, in which case the graph is rebuilt from Factory.Pools on every search.
	Topology TopologyFunc
	Journal  *state.Journal
	Clock    func() uint64
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.NativeAsset == (common.Address{}) {
		return errors.New("config: NativeAsset is required")
	}
	if c.Factory == nil {
		return errors.New("config: Factory is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.WETH == nil {
		return errors.New("config: WETH is required")
	}
	if c.Journal == nil {
		return errors.New("config: Journal is required")
	}
	if c.Clock == nil {
		return errors.New("config: Clock is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Router is stateless apart from its collaborators. It is not safe for
// concurrent use; the exchange serializes access.
type Router struct {
	address     common.Address
	nativeAsset common.Address
	factory     Factory
	ledger      Ledger
	weth        Wrapper
	permits     Permits
	topology    TopologyFunc
	journal     *state.Journal
	clock       func() uint64
	logger      Logger
}

func New(cfg Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Router{
		address:     cfg.Address,
		nativeAsset: cfg.NativeAsset,
		factory:     cfg.Factory,
		ledger:      cfg.Ledger,
		weth:        cfg.WETH,
		permits:     cfg.Permits,
		topology:    cfg.Topology,
		journal:     cfg.Journal,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// Address is the account the router acts as when it holds assets in transit.
func (r *Router) Address() common.Address { return r.address }

// WETH returns the wrapped native asset address.
func (r *Router) WETH() common.Address { return r.weth.Address() }

// ensure checks the deadline and runs fn as one atomic step.
func (r *Router) ensure(deadline uint64, fn func() error) error {
	if now := r.clock(); deadline < now {
		return fmt.Errorf("%w: deadline %d before %d", uniswapv2.ErrExpired, deadline, now)
	}
	return r.journal.Atomic(fn)
}

// Quote returns the amount of B equivalent to amountA at the given reserves.
func (r *Router) Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	return calculator.Quote(amountA, reserveA, reserveB)
}

// GetAmountOut is the single-hop exact-input formula.
func (r *Router) GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	return calculator.AmountOut(amountIn, reserveIn, reserveOut, feeBps)
}

// GetAmountIn is the single-hop exact-output formula, rounded up.
func (r *Router) GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	return calculator.AmountIn(amountOut, reserveIn, reserveOut, feeBps)
}

// GetAmountsOut quotes an exact-input trade along path against live reserves.
func (r *Router) GetAmountsOut(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	hops, err := r.hops(path)
	if err != nil {
		return nil, err
	}
	return calculator.AmountsOut(amountIn, hops)
}

// GetAmountsIn quotes an exact-output trade along path against live reserves.
func (r *Router) GetAmountsIn(amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	hops, err := r.hops(path)
	if err != nil {
		return nil, err
	}
	return calculator.AmountsIn(amountOut, hops)
}

// hops resolves the pairs along path and orients their reserves.
func (r *Router) hops(path []common.Address) ([]calculator.Hop, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", uniswapv2.ErrInvalidPath, len(path))
	}
	hops := make([]calculator.Hop, len(path)-1)
	for i := range hops {
		reserveIn, reserveOut, feeBps, err := r.reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		hops[i] = calculator.Hop{ReserveIn: reserveIn, ReserveOut: reserveOut, FeeBps: feeBps}
	}
	return hops, nil
}

// reserves returns the reserves of the tokenA/tokenB pair ordered as (A, B).
func (r *Router) reserves(tokenA, tokenB common.Address) (reserveA, reserveB *uint256.Int, feeBps uint16, err error) {
	p, err := r.pair(tokenA, tokenB)
	if err != nil {
		return nil, nil, 0, err
	}
	reserve0, reserve1, _ := p.GetReserves()
	if tokenA == p.Token0() {
		return reserve0, reserve1, p.FeeBps(), nil
	}
	return reserve1, reserve0, p.FeeBps(), nil
}

func (r *Router) pair(tokenA, tokenB common.Address) (*pair.Pair, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("%w: %s", uniswapv2.ErrIdenticalAddresses, tokenA.Hex())
	}
	p, ok := r.factory.GetPair(tokenA, tokenB)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", uniswapv2.ErrPairNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return p, nil
}
