// Package exchange wires the ledger, factory, router, wrapper and permits
// into a single exchange and runs caller-supplied units of work against it.
//
// A unit of work either commits as a whole or leaves no trace. On commit the
// exchange bumps its height, publishes the buffered events and recomputes
// the state snapshot served to readers and subscribers.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/permit"
	"github.com/defistate/defistate-amm-go/protocols/poolregistry"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/factory"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/pair"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/defistate/defistate-amm-go/protocols/weth"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dispatcher receives the envelopes of every committed unit of work, in
// commit order. *events.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(envs []events.Envelope)
}

// Observer is called with every new state snapshot while the exchange lock
// is held. Observers must not block and must not call back into the exchange.
type Observer func(*engine.State)

// ErrNotFresh is returned when restoring into an exchange that already has state.
var ErrNotFresh = errors.New("exchange: restore requires a fresh exchange")

// Config holds the configuration for an Exchange.
type Config struct {
	ChainID uint64

	FactoryAddress common.Address
	FeeToSetter    common.Address
	// FeeBps defaults to 30.
	FeeBps uint16
	// InitCodeHash defaults to factory.DefaultInitCodeHash.
	InitCodeHash common.Hash

	WETHAddress   common.Address
	RouterAddress common.Address
	// PermitName names the permit signing domain. It defaults to "Uniswap V2".
	PermitName string

	// Clock returns the current time in seconds. It defaults to the wall clock.
	Clock func() uint64

	Dispatcher Dispatcher
	Observers  []Observer
	Registerer prometheus.Registerer
	Logger     Logger
}

func (c *Config) validate() error {
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.FactoryAddress == (common.Address{}) {
		return errors.New("config: FactoryAddress is required")
	}
	if c.WETHAddress == (common.Address{}) {
		return errors.New("config: WETHAddress is required")
	}
	if c.RouterAddress == (common.Address{}) {
		return errors.New("config: RouterAddress is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Exchange is safe for concurrent use. Units of work are serialized.
type Exchange struct {
	mu sync.Mutex

	chainID  uint64
	journal  *state.Journal
	batch    *events.Batch
	ledger   *ledger.Ledger
	tokens   *tokenregistry.Registry
	pools    *poolregistry.Registry
	factory  *factory.Factory
	weth     *weth.WETH
	permits  *permit.Registry
	router   *router.Router
	topology *tokenpoolregistry.TokenPoolSystem

	calleesMu sync.RWMutex
	callees   map[common.Address]pair.Callee

	height    uint64
	timestamp uint64
	clock     func() uint64
	snapshot  atomic.Pointer[engine.State]

	dispatcher Dispatcher
	observers  []Observer
	metrics    *Metrics
	logger     Logger
}

// New creates an empty exchange at height zero.
func New(cfg Config) (*Exchange, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() uint64 { return uint64(time.Now().Unix()) }
	}
	feeBps := cfg.FeeBps
	if feeBps == 0 {
		feeBps = 30
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	journal := state.NewJournal()
	batch := events.NewBatch(journal)
	e := &Exchange{
		chainID:    cfg.ChainID,
		journal:    journal,
		batch:      batch,
		ledger:     ledger.New(journal, batch),
		tokens:     tokenregistry.NewRegistry(journal),
		pools:      poolregistry.NewRegistry(journal),
		topology:   tokenpoolregistry.NewTokenPoolSystem(),
		callees:    make(map[common.Address]pair.Callee),
		clock:      clock,
		dispatcher: cfg.Dispatcher,
		observers:  cfg.Observers,
		metrics:    NewMetrics(reg),
		logger:     cfg.Logger,
	}

	var err error
	e.factory, err = factory.New(factory.Config{
		Address:      cfg.FactoryAddress,
		FeeToSetter:  cfg.FeeToSetter,
		FeeBps:       feeBps,
		InitCodeHash: cfg.InitCodeHash,
		Ledger:       e.ledger,
		Journal:      journal,
		Emitter:      batch,
		Clock:        pair.Clock(clock),
		Callees:      e,
		Tokens:       e.tokens,
		Pools:        e.pools,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create factory: %w", err)
	}
	e.weth, err = weth.New(weth.Config{Address: cfg.WETHAddress, Ledger: e.ledger, Journal: journal, Emitter: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}
	e.permits, err = permit.New(permit.Config{
		ChainID: cfg.ChainID,
		Name:    cfg.PermitName,
		Ledger:  e.ledger,
		Journal: journal,
		Clock:   clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create permit registry: %w", err)
	}
	e.router, err = router.New(router.Config{
		Address:     cfg.RouterAddress,
		NativeAsset: ledger.NativeAsset,
		Factory:     e.factory,
		Ledger:      e.ledger,
		WETH:        e.weth,
		Permits:     e.permits,
		Topology:    e.topology.View,
		Journal:     journal,
		Clock:       clock,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	e.timestamp = clock()
	e.snapshot.Store(e.buildState(engine.BlockSummary{Timestamp: e.timestamp, ReceivedAt: time.Now().UnixNano()}))
	return e, nil
}

// ChainID is the chain the exchange signs permits for.
func (e *Exchange) ChainID() uint64 { return e.chainID }

// Height returns the number of committed units of work.
func (e *Exchange) Height() uint64 {
	return e.State().Height()
}

// State returns the snapshot taken at the last commit. It never blocks on a
// running unit of work. The returned state must not be modified.
func (e *Exchange) State() *engine.State {
	return e.snapshot.Load()
}

// Subscribe adds an observer. It is called for every commit from now on.
func (e *Exchange) Subscribe(o Observer) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

// Callee resolves flash swap callbacks registered with RegisterCallee.
func (e *Exchange) Callee(addr common.Address) (pair.Callee, bool) {
	e.calleesMu.RLock()
	defer e.calleesMu.RUnlock()
	c, ok := e.callees[addr]
	return c, ok
}

// RegisterCallee makes swaps paying out to addr invoke c. A nil c removes it.
func (e *Exchange) RegisterCallee(addr common.Address, c pair.Callee) {
	e.calleesMu.Lock()
	defer e.calleesMu.Unlock()
	if c == nil {
		delete(e.callees, addr)
		return
	}
	e.callees[addr] = c
}

// RegisterToken records token metadata in its own unit of work.
func (e *Exchange) RegisterToken(ctx context.Context, t tokenregistry.Token) (tokenregistry.Token, error) {
	var out tokenregistry.Token
	err := e.Execute(ctx, func(tx *Tx) error {
		out = tx.RegisterToken(t)
		return nil
	})
	return out, err
}

// Execute runs fn as one unit of work. If fn returns an error, or ctx is done
// before fn starts, nothing it did is kept and the error is returned.
func (e *Exchange) Execute(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	snap := e.journal.Snapshot()
	if err := fn(&Tx{ctx: ctx, ex: e}); err != nil {
		e.journal.RevertToSnapshot(snap)
		e.metrics.observeUnit(resultReverted, time.Since(started))
		e.logger.Debug("unit of work reverted", "height", e.height, "error", err)
		return err
	}
	e.commit(started)
	e.metrics.observeUnit(resultCommitted, time.Since(started))
	return nil
}

// View runs fn against the current state and then discards every change it
// made. Events emitted inside fn are dropped.
func (e *Exchange) View(fn func(*Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.journal.Snapshot()
	defer e.journal.RevertToSnapshot(snap)
	return fn(&Tx{ctx: context.Background(), ex: e})
}

func (e *Exchange) commit(started time.Time) {
	e.journal.Commit()
	evs := e.batch.Drain()

	e.height++
	if ts := e.clock(); ts > e.timestamp {
		e.timestamp = ts
	}
	e.index(evs)

	next := e.buildState(engine.BlockSummary{
		Number:     e.height,
		Timestamp:  e.timestamp,
		ReceivedAt: started.UnixNano(),
		Events:     len(evs),
	})
	e.snapshot.Store(next)
	e.metrics.observeEvents(evs)

	if e.dispatcher != nil && len(evs) > 0 {
		envs, err := events.Wrap(evs, e.height, e.timestamp)
		if err != nil {
			e.logger.Error("failed to wrap committed events", "height", e.height, "error", err)
		} else {
			e.dispatcher.Dispatch(envs)
		}
	}
	for _, o := range e.observers {
		o(next)
	}
	e.logger.Debug("unit of work committed", "height", e.height, "events", len(evs))
}

// index adds newly created pairs to the token/pool graph.
func (e *Exchange) index(evs []events.Event) {
	for _, created := range events.Filter[events.PairCreated](evs) {
		if err := e.indexPair(created.Pair, created.Token0, created.Token1); err != nil {
			e.logger.Error("failed to index pair", "pair", created.Pair, "error", err)
		}
	}
}

func (e *Exchange) indexPair(addr, token0, token1 common.Address) error {
	p, ok := e.pools.GetByAddress(addr)
	if !ok {
		return fmt.Errorf("pair %s is not in the pool registry", addr.Hex())
	}
	t0, ok0 := e.tokens.GetByAddress(token0)
	t1, ok1 := e.tokens.GetByAddress(token1)
	if !ok0 || !ok1 {
		return fmt.Errorf("tokens of pair %s are not registered", addr.Hex())
	}
	e.topology.AddPool([]uint64{t0.ID, t1.ID}, p.ID)
	return nil
}

func (e *Exchange) buildState(block engine.BlockSummary) *engine.State {
	height := block.Number
	synced := &height
	return &engine.State{
		ChainID:   e.chainID,
		Timestamp: block.Timestamp,
		Block:     block,
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			engine.TokensProtocolID: {
				Meta:              engine.ProtocolMeta{Name: "Token Registry", Tags: []string{"registry"}},
				SyncedBlockNumber: synced,
				Schema:            tokenregistry.Schema,
				Data:              e.tokens.View(),
			},
			engine.PoolsProtocolID: {
				Meta:              engine.ProtocolMeta{Name: "Pool Registry", Tags: []string{"registry"}},
				SyncedBlockNumber: synced,
				Schema:            poolregistry.Schema,
				Data:              e.pools.View(),
			},
			engine.TokenPoolsProtocolID: {
				Meta:              engine.ProtocolMeta{Name: "Token Pool Graph", Tags: []string{"registry", "graph"}},
				SyncedBlockNumber: synced,
				Schema:            tokenpoolregistry.Schema,
				Data:              e.topology.View(),
			},
			engine.UniswapV2ProtocolID: {
				Meta:              engine.ProtocolMeta{Name: "Uniswap V2", Tags: []string{"dex"}},
				SyncedBlockNumber: synced,
				Schema:            uniswapv2.Schema,
				Data:              e.factory.Pools(),
			},
		},
	}
}
