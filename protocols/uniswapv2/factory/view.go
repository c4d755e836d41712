package factory

import (
	"fmt"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/pair"
	"github.com/ethereum/go-ethereum/common"
)

// Pools returns the published view of every pair, ordered by pool ID.
func (f *Factory) Pools() []uniswapv2.Pool {
	out := make([]uniswapv2.Pool, 0, len(f.all))
	for _, p := range f.all {
		out = append(out, f.poolView(p))
	}
	return out
}

// Pool returns the published view of the pair at addr.
func (f *Factory) Pool(addr common.Address) (uniswapv2.Pool, bool) {
	p, ok := f.byAddress[addr]
	if !ok {
		return uniswapv2.Pool{}, false
	}
	return f.poolView(p), true
}

func (f *Factory) poolView(p *pair.Pair) uniswapv2.Pool {
	s := p.State()
	registered, _ := f.pools.GetByAddress(s.Address)
	t0, _ := f.tokens.GetByAddress(s.Token0)
	t1, _ := f.tokens.GetByAddress(s.Token1)
	return uniswapv2.Pool{
		ID:                   registered.ID,
		Address:              s.Address,
		Token0:               t0.ID,
		Token1:               t1.ID,
		TokenAddress0:        s.Token0,
		TokenAddress1:        s.Token1,
		Reserve0:             s.Reserve0,
		Reserve1:             s.Reserve1,
		BlockTimestampLast:   s.BlockTimestampLast,
		Price0CumulativeLast: s.Price0CumulativeLast,
		Price1CumulativeLast: s.Price1CumulativeLast,
		KLast:                s.KLast,
		TotalSupply:          p.TotalSupply(),
		FeeBps:               s.FeeBps,
	}
}

// State is the persistent form of the factory and its pairs.
type State struct {
	FeeTo       common.Address `json:"feeTo"`
	FeeToSetter common.Address `json:"feeToSetter"`
	Pairs       []pair.State   `json:"pairs"`
}

// State returns the factory's persistent fields.
func (f *Factory) State() State {
	s := State{FeeTo: f.feeTo, FeeToSetter: f.feeToSetter, Pairs: make([]pair.State, 0, len(f.all))}
	for _, p := range f.all {
		s.Pairs = append(s.Pairs, p.State())
	}
	return s
}

// Restore recreates the checkpointed pairs, in their original order, on a
// factory that has none yet. Pair creation is journaled, so callers commit
// the journal once restoring succeeded.
func (f *Factory) Restore(s State) error {
	if len(f.all) != 0 {
		return fmt.Errorf("cannot restore into a factory with %d pairs", len(f.all))
	}
	for _, ps := range s.Pairs {
		p, err := f.CreatePair(ps.Token0, ps.Token1)
		if err != nil {
			return err
		}
		if p.Address() != ps.Address {
			return fmt.Errorf("pair %s derives to %s under this factory", ps.Address.Hex(), p.Address().Hex())
		}
		if err := p.Restore(ps); err != nil {
			return err
		}
	}
	f.feeTo = s.FeeTo
	f.feeToSetter = s.FeeToSetter
	return nil
}
