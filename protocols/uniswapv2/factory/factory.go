// Package factory creates and indexes constant-product pairs. It owns the
// protocol fee switch that every pair consults.
package factory

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/protocols/poolregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/pair"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Protocol is the pool registry name of pairs created here.
const Protocol poolregistry.ProtocolID = "uniswap-v2"

// DefaultInitCodeHash is the keccak256 of the canonical Uniswap V2 pair
// creation code. Using it makes derived pair addresses match mainnet.
var DefaultInitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for a Factory.
type Config struct {
	Address     common.Address
	FeeToSetter common.Address
	// FeeBps is applied to every pair created by this factory.
	FeeBps uint16
	// InitCodeHash defaults to DefaultInitCodeHash.
	InitCodeHash common.Hash

	Ledger  pair.Ledger
	Journal *state.Journal
	Emitter events.Emitter
	Clock   pair.Clock
	Callees pair.CalleeResolver
	Tokens  *tokenregistry.Registry
	Pools   *poolregistry.Registry
	Logger  Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
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
	if c.Tokens == nil || c.Pools == nil {
		return errors.New("config: Tokens and Pools registries are required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Factory is the pair registry. Like the pairs it creates, it is not safe for
// concurrent use.
type Factory struct {
	address      common.Address
	feeBps       uint16
	initCodeHash common.Hash

	feeTo       common.Address
	feeToSetter common.Address

	pairs     map[pairKey]*pair.Pair
	byAddress map[common.Address]*pair.Pair
	all       []*pair.Pair

	ledger  pair.Ledger
	journal *state.Journal
	emitter events.Emitter
	clock   pair.Clock
	callees pair.CalleeResolver
	tokens  *tokenregistry.Registry
	pools   *poolregistry.Registry
	logger  Logger
}

// New creates a factory with no pairs and the protocol fee off.
func New(cfg Config) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	initCodeHash := cfg.InitCodeHash
	if initCodeHash == (common.Hash{}) {
		initCodeHash = DefaultInitCodeHash
	}
	cfg.Pools.RegisterProtocol(Protocol)
	return &Factory{
		address:      cfg.Address,
		feeBps:       cfg.FeeBps,
		initCodeHash: initCodeHash,
		feeToSetter:  cfg.FeeToSetter,
		pairs:        make(map[pairKey]*pair.Pair),
		byAddress:    make(map[common.Address]*pair.Pair),
		ledger:       cfg.Ledger,
		journal:      cfg.Journal,
		emitter:      emitter,
		clock:        cfg.Clock,
		callees:      cfg.Callees,
		tokens:       cfg.Tokens,
		pools:        cfg.Pools,
		logger:       cfg.Logger,
	}, nil
}

func (f *Factory) Address() common.Address { return f.address }
func (f *Factory) FeeBps() uint16          { return f.feeBps }

// SortTokens orders two distinct, non-zero addresses ascending.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address, err error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", uniswapv2.ErrIdenticalAddresses, tokenA.Hex())
	}
	token0, token1 = tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, uniswapv2.ErrZeroAddress
	}
	return token0, token1, nil
}

// PairAddress derives the CREATE2 address of the pair for two sorted tokens.
func PairAddress(factory common.Address, initCodeHash common.Hash, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// PairFor derives the address of the pair for two tokens in any order,
// whether or not it exists yet.
func (f *Factory) PairFor(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return PairAddress(f.address, f.initCodeHash, token0, token1), nil
}

// GetPair returns the pair for two tokens in either order.
func (f *Factory) GetPair(tokenA, tokenB common.Address) (*pair.Pair, bool) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false
	}
	p, ok := f.pairs[pairKey{token0, token1}]
	return p, ok
}

// PairAt returns the pair deployed at addr.
func (f *Factory) PairAt(addr common.Address) (*pair.Pair, bool) {
	p, ok := f.byAddress[addr]
	return p, ok
}

// AllPairs returns every pair in creation order.
func (f *Factory) AllPairs() []*pair.Pair {
	out := make([]*pair.Pair, len(f.all))
	copy(out, f.all)
	return out
}

func (f *Factory) AllPairsLength() int { return len(f.all) }

// CreatePair deploys the pair for tokenA and tokenB and indexes it.
func (f *Factory) CreatePair(tokenA, tokenB common.Address) (*pair.Pair, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	key := pairKey{token0, token1}
	if _, exists := f.pairs[key]; exists {
		return nil, fmt.Errorf("%w: %s/%s", uniswapv2.ErrPairExists, token0.Hex(), token1.Hex())
	}

	var created *pair.Pair
	err = f.journal.Atomic(func() error {
		addr := PairAddress(f.address, f.initCodeHash, token0, token1)
		p, err := pair.New(pair.Config{
			Address: addr,
			Token0:  token0,
			Token1:  token1,
			FeeBps:  f.feeBps,
			Ledger:  f.ledger,
			Journal: f.journal,
			Emitter: f.emitter,
			FeeTo:   f,
			Clock:   f.clock,
			Callees: f.callees,
			Logger:  f.logger,
		})
		if err != nil {
			return err
		}

		f.tokens.Ensure(token0)
		f.tokens.Ensure(token1)
		if _, err := f.pools.Add(addr, Protocol); err != nil {
			return err
		}

		f.pairs[key] = p
		f.byAddress[addr] = p
		f.all = append(f.all, p)
		f.journal.Append(func() {
			delete(f.pairs, key)
			delete(f.byAddress, addr)
			f.all = f.all[:len(f.all)-1]
		})

		f.emitter.Emit(events.PairCreated{
			Token0: token0,
			Token1: token1,
			Pair:   addr,
			Index:  uint64(len(f.all)),
		})
		f.logger.Info("pair created", "pair", addr, "token0", token0, "token1", token1, "index", len(f.all))
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FeeTo returns the protocol fee recipient. The zero address means the fee is off.
func (f *Factory) FeeTo() common.Address { return f.feeTo }

func (f *Factory) FeeToSetter() common.Address { return f.feeToSetter }

// SetFeeTo changes the fee recipient. Only the fee-to setter may call it.
func (f *Factory) SetFeeTo(caller, feeTo common.Address) error {
	if caller != f.feeToSetter {
		return fmt.Errorf("%w: %s is not the fee-to setter", uniswapv2.ErrForbidden, caller.Hex())
	}
	prev := f.feeTo
	f.journal.Append(func() { f.feeTo = prev })
	f.feeTo = feeTo
	return nil
}

// SetFeeToSetter hands the setter role to another account.
func (f *Factory) SetFeeToSetter(caller, setter common.Address) error {
	if caller != f.feeToSetter {
		return fmt.Errorf("%w: %s is not the fee-to setter", uniswapv2.ErrForbidden, caller.Hex())
	}
	prev := f.feeToSetter
	f.journal.Append(func() { f.feeToSetter = prev })
	f.feeToSetter = setter
	return nil
}
