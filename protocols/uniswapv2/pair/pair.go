// Package pair implements a single constant-product pool: reserve
// synchronization with TWAP accumulators, liquidity share accounting with the
// optional protocol fee, and invariant-checked swaps including flash swaps.
//
// Asset custody lives in an external ledger. The pair's share token is the
// ledger asset keyed by the pair's own address. Every mutation is recorded in
// a state.Journal so a failing entry point leaves no trace.
package pair

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/events"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MinimumLiquidity is locked forever on the first provision.
const MinimumLiquidity = 1000

// DeadAddress holds the permanently locked minimum liquidity.
var DeadAddress = common.Address{}

var (
	maxUint112       = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))
	minimumLiquidity = uint256.NewInt(MinimumLiquidity)
	feeDivisor       = uint256.NewInt(10000)
	feeDivisorSq     = uint256.NewInt(10000 * 10000)
	five             = uint256.NewInt(5)
)

// Ledger is the fungible-asset collaborator the pair settles against.
type Ledger interface {
	BalanceOf(asset, holder common.Address) *uint256.Int
	TotalSupply(asset common.Address) *uint256.Int
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
	Mint(asset, to common.Address, amount *uint256.Int) error
	Burn(asset, from common.Address, amount *uint256.Int) error
}

// FeeToProvider reports the protocol fee recipient. The zero address disables the fee.
type FeeToProvider interface {
	FeeTo() common.Address
}

// Clock returns the current time in seconds.
type Clock func() uint64

// Callee receives flash swap callbacks.
type Callee interface {
	UniswapV2Call(sender common.Address, amount0, amount1 *uint256.Int, data []byte) error
}

// CalleeResolver maps a swap recipient to its callback implementation.
type CalleeResolver interface {
	Callee(addr common.Address) (Callee, bool)
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for a Pair.
type Config struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	FeeBps  uint16

	Ledger  Ledger
	Journal *state.Journal
	Emitter events.Emitter
	// FeeTo may be nil, in which case the protocol fee is permanently off.
	FeeTo FeeToProvider
	Clock Clock
	// Callees may be nil, in which case flash swaps are rejected.
	Callees CalleeResolver
	Logger  Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Token0 == (common.Address{}) || c.Token1 == (common.Address{}) {
		return errors.New("config: Token0 and Token1 are required")
	}
	if bytes.Compare(c.Token0.Bytes(), c.Token1.Bytes()) >= 0 {
		return errors.New("config: Token0 must sort strictly before Token1")
	}
	if c.FeeBps >= 10000 {
		return errors.New("config: FeeBps must be below 10000")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
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

// oracle is the reserve snapshot and price accumulator state. Its integers
// are never mutated in place once stored.
type oracle struct {
	reserve0             *uint256.Int
	reserve1             *uint256.Int
	blockTimestampLast   uint32
	price0CumulativeLast *uint256.Int
	price1CumulativeLast *uint256.Int
}

// Pair is one pool. It is not safe for concurrent use; callers serialize
// access, and the lock flag only guards against re-entry from callbacks.
type Pair struct {
	address common.Address
	token0  common.Address
	token1  common.Address
	feeBps  uint16

	oracle oracle
	kLast  *uint256.Int
	locked bool

	ledger  Ledger
	journal *state.Journal
	emitter events.Emitter
	feeTo   FeeToProvider
	clock   Clock
	callees CalleeResolver
	logger  Logger
}

// New creates an empty pair.
func New(cfg Config) (*Pair, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Pair{
		address: cfg.Address,
		token0:  cfg.Token0,
		token1:  cfg.Token1,
		feeBps:  cfg.FeeBps,
		oracle: oracle{
			reserve0:             new(uint256.Int),
			reserve1:             new(uint256.Int),
			price0CumulativeLast: new(uint256.Int),
			price1CumulativeLast: new(uint256.Int),
		},
		kLast:   new(uint256.Int),
		ledger:  cfg.Ledger,
		journal: cfg.Journal,
		emitter: emitter,
		feeTo:   cfg.FeeTo,
		clock:   cfg.Clock,
		callees: cfg.Callees,
		logger:  cfg.Logger,
	}, nil
}

func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) Token0() common.Address  { return p.token0 }
func (p *Pair) Token1() common.Address  { return p.token1 }
func (p *Pair) FeeBps() uint16          { return p.feeBps }

// GetReserves returns copies of the reserves and the time of the last sync.
func (p *Pair) GetReserves() (reserve0, reserve1 *uint256.Int, blockTimestampLast uint32) {
	return p.oracle.reserve0.Clone(), p.oracle.reserve1.Clone(), p.oracle.blockTimestampLast
}

// Price0CumulativeLast is the UQ112x112 time integral of reserve1/reserve0.
func (p *Pair) Price0CumulativeLast() *uint256.Int { return p.oracle.price0CumulativeLast.Clone() }

// Price1CumulativeLast is the UQ112x112 time integral of reserve0/reserve1.
func (p *Pair) Price1CumulativeLast() *uint256.Int { return p.oracle.price1CumulativeLast.Clone() }

// KLast is reserve0*reserve1 as of the last liquidity event while the protocol fee was on.
func (p *Pair) KLast() *uint256.Int { return p.kLast.Clone() }

// TotalSupply returns the outstanding liquidity shares.
func (p *Pair) TotalSupply() *uint256.Int { return p.ledger.TotalSupply(p.address) }

// lock acquires the re-entrancy guard. The returned function releases it.
func (p *Pair) lock() (func(), error) {
	if p.locked {
		return nil, fmt.Errorf("%w: pair %s", uniswapv2.ErrReentrant, p.address.Hex())
	}
	p.locked = true
	return func() { p.locked = false }, nil
}

// guarded runs fn under the lock as one all-or-nothing step.
func (p *Pair) guarded(fn func() error) error {
	unlock, err := p.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return p.journal.Atomic(fn)
}

func (p *Pair) setOracle(next oracle) {
	prev := p.oracle
	p.journal.Append(func() { p.oracle = prev })
	p.oracle = next
}

func (p *Pair) setKLast(v *uint256.Int) {
	prev := p.kLast
	p.journal.Append(func() { p.kLast = prev })
	p.kLast = v
}

func (p *Pair) balances() (balance0, balance1 *uint256.Int) {
	return p.ledger.BalanceOf(p.token0, p.address), p.ledger.BalanceOf(p.token1, p.address)
}

// update stores balances as the new reserves and, on the first call of each
// second, advances the accumulators by the price that held since the last sync.
func (p *Pair) update(balance0, balance1, reserve0, reserve1 *uint256.Int) error {
	if balance0.Gt(maxUint112) || balance1.Gt(maxUint112) {
		return fmt.Errorf("%w: balances %s/%s exceed 112 bits", uniswapv2.ErrOverflow, balance0.Dec(), balance1.Dec())
	}
	blockTimestamp := uint32(p.clock())
	elapsed := blockTimestamp - p.oracle.blockTimestampLast // wraps

	next := oracle{
		reserve0:             balance0.Clone(),
		reserve1:             balance1.Clone(),
		blockTimestampLast:   blockTimestamp,
		price0CumulativeLast: p.oracle.price0CumulativeLast,
		price1CumulativeLast: p.oracle.price1CumulativeLast,
	}
	if elapsed > 0 && !reserve0.IsZero() && !reserve1.IsZero() {
		e := uint256.NewInt(uint64(elapsed))
		next.price0CumulativeLast = accumulate(p.oracle.price0CumulativeLast, reserve1, reserve0, e)
		next.price1CumulativeLast = accumulate(p.oracle.price1CumulativeLast, reserve0, reserve1, e)
	}
	p.setOracle(next)

	p.emitter.Emit(events.ReservesUpdated{
		Pair:     p.address,
		Reserve0: balance0.Clone(),
		Reserve1: balance1.Clone(),
	})
	return nil
}

// accumulate returns acc + (num<<112 / den) * elapsed, wrapping at 2^256.
func accumulate(acc, num, den, elapsed *uint256.Int) *uint256.Int {
	price := new(uint256.Int).Lsh(num, 112)
	price.Div(price, den)
	price.Mul(price, elapsed)
	return price.Add(price, acc)
}

// State is the persistent form of a pair, used for checkpoints.
type State struct {
	Address              common.Address `json:"address"`
	Token0               common.Address `json:"token0"`
	Token1               common.Address `json:"token1"`
	FeeBps               uint16         `json:"feeBps"`
	Reserve0             *uint256.Int   `json:"reserve0"`
	Reserve1             *uint256.Int   `json:"reserve1"`
	BlockTimestampLast   uint32         `json:"blockTimestampLast"`
	Price0CumulativeLast *uint256.Int   `json:"price0CumulativeLast"`
	Price1CumulativeLast *uint256.Int   `json:"price1CumulativeLast"`
	KLast                *uint256.Int   `json:"kLast"`
}

// State returns a copy of the pair's persistent fields.
func (p *Pair) State() State {
	return State{
		Address:              p.address,
		Token0:               p.token0,
		Token1:               p.token1,
		FeeBps:               p.feeBps,
		Reserve0:             p.oracle.reserve0.Clone(),
		Reserve1:             p.oracle.reserve1.Clone(),
		BlockTimestampLast:   p.oracle.blockTimestampLast,
		Price0CumulativeLast: p.oracle.price0CumulativeLast.Clone(),
		Price1CumulativeLast: p.oracle.price1CumulativeLast.Clone(),
		KLast:                p.kLast.Clone(),
	}
}

// Restore loads a checkpointed state into a freshly created pair. It is not journaled.
func (p *Pair) Restore(s State) error {
	if s.Address != p.address || s.Token0 != p.token0 || s.Token1 != p.token1 {
		return fmt.Errorf("state for pair %s does not match pair %s", s.Address.Hex(), p.address.Hex())
	}
	if s.Reserve0 == nil || s.Reserve1 == nil || s.Price0CumulativeLast == nil || s.Price1CumulativeLast == nil || s.KLast == nil {
		return fmt.Errorf("state for pair %s is incomplete", s.Address.Hex())
	}
	if s.Reserve0.Gt(maxUint112) || s.Reserve1.Gt(maxUint112) {
		return fmt.Errorf("%w: restored reserves of %s", uniswapv2.ErrOverflow, s.Address.Hex())
	}
	p.feeBps = s.FeeBps
	p.oracle = oracle{
		reserve0:             s.Reserve0.Clone(),
		reserve1:             s.Reserve1.Clone(),
		blockTimestampLast:   s.BlockTimestampLast,
		price0CumulativeLast: s.Price0CumulativeLast.Clone(),
		price1CumulativeLast: s.Price1CumulativeLast.Clone(),
	}
	p.kLast = s.KLast.Clone()
	return nil
}
