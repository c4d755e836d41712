package factory

import (
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/poolregistry"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	usdc           = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth           = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai            = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	setter         = common.HexToAddress("0x5e77e50000000000000000000000000000000000")
	stranger       = common.HexToAddress("0xbad0000000000000000000000000000000000000")
)

type fixture struct {
	journal *state.Journal
	ledger  *ledger.Ledger
	rec     *events.Recorder
	tokens  *tokenregistry.Registry
	pools   *poolregistry.Registry
	factory *Factory
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{journal: state.NewJournal(), rec: &events.Recorder{}}
	fx.ledger = ledger.New(fx.journal, fx.rec)
	fx.tokens = tokenregistry.NewRegistry(fx.journal)
	fx.pools = poolregistry.NewRegistry(fx.journal)
	f, err := New(Config{
		Address:     mainnetFactory,
		FeeToSetter: setter,
		FeeBps:      30,
		Ledger:      fx.ledger,
		Journal:     fx.journal,
		Emitter:     fx.rec,
		Clock:       func() uint64 { return 1_700_000_000 },
		Tokens:      fx.tokens,
		Pools:       fx.pools,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	fx.factory = f
	return fx
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Address: mainnetFactory, FeeBps: 10000})
	assert.Error(t, err)
}

func TestSortTokens(t *testing.T) {
	t0, t1, err := SortTokens(weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdc, t0)
	assert.Equal(t, weth, t1)

	_, _, err = SortTokens(weth, weth)
	assert.ErrorIs(t, err, uniswapv2.ErrIdenticalAddresses)
	_, _, err = SortTokens(weth, common.Address{})
	assert.ErrorIs(t, err, uniswapv2.ErrZeroAddress)
}

func TestPairFor_MatchesMainnet(t *testing.T) {
	fx := newFixture(t)
	addr, err := fx.factory.PairFor(weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), addr)

	reversed, err := fx.factory.PairFor(usdc, weth)
	require.NoError(t, err)
	assert.Equal(t, addr, reversed)
}

func TestCreatePair(t *testing.T) {
	fx := newFixture(t)

	p, err := fx.factory.CreatePair(weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdc, p.Token0())
	assert.Equal(t, weth, p.Token1())
	assert.Equal(t, uint16(30), p.FeeBps())
	assert.Equal(t, common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), p.Address())

	got, ok := fx.factory.GetPair(usdc, weth)
	require.True(t, ok)
	assert.Same(t, p, got)
	got, ok = fx.factory.GetPair(weth, usdc)
	require.True(t, ok)
	assert.Same(t, p, got)
	got, ok = fx.factory.PairAt(p.Address())
	require.True(t, ok)
	assert.Same(t, p, got)

	created := events.Filter[events.PairCreated](fx.rec.Events())
	require.Len(t, created, 1)
	assert.Equal(t, events.PairCreated{Token0: usdc, Token1: weth, Pair: p.Address(), Index: 1}, created[0])

	_, err = fx.factory.CreatePair(weth, usdc)
	assert.ErrorIs(t, err, uniswapv2.ErrPairExists)
	_, err = fx.factory.CreatePair(usdc, weth)
	assert.ErrorIs(t, err, uniswapv2.ErrPairExists)
	_, err = fx.factory.CreatePair(usdc, usdc)
	assert.ErrorIs(t, err, uniswapv2.ErrIdenticalAddresses)
	_, err = fx.factory.CreatePair(common.Address{}, usdc)
	assert.ErrorIs(t, err, uniswapv2.ErrZeroAddress)

	second, err := fx.factory.CreatePair(dai, weth)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.factory.AllPairsLength())
	all := fx.factory.AllPairs()
	assert.Same(t, p, all[0])
	assert.Same(t, second, all[1])

	view := fx.pools.View()
	require.Len(t, view.Pools, 2)
	assert.Equal(t, poolregistry.AddressToPoolKey(second.Address()), view.Pools[1].Key)
	assert.Equal(t, Protocol, view.Protocols[view.Pools[1].Protocol])

	assert.Len(t, fx.tokens.View(), 3, "usdc, weth and dai are registered once each")
}

func TestCreatePair_RevertsWithJournal(t *testing.T) {
	fx := newFixture(t)
	snap := fx.journal.Snapshot()
	p, err := fx.factory.CreatePair(weth, dai)
	require.NoError(t, err)

	fx.journal.RevertToSnapshot(snap)
	_, ok := fx.factory.GetPair(weth, dai)
	assert.False(t, ok)
	_, ok = fx.factory.PairAt(p.Address())
	assert.False(t, ok)
	assert.Zero(t, fx.factory.AllPairsLength())
	assert.Zero(t, fx.pools.Len())
	assert.Empty(t, fx.tokens.View())

	_, err = fx.factory.CreatePair(weth, dai)
	require.NoError(t, err, "the pair can be created again after a revert")
}

func TestFeeSetters(t *testing.T) {
	fx := newFixture(t)
	feeSink := common.HexToAddress("0xfee0000000000000000000000000000000000000")

	assert.Equal(t, common.Address{}, fx.factory.FeeTo())
	assert.ErrorIs(t, fx.factory.SetFeeTo(stranger, feeSink), uniswapv2.ErrForbidden)
	require.NoError(t, fx.factory.SetFeeTo(setter, feeSink))
	assert.Equal(t, feeSink, fx.factory.FeeTo())

	assert.ErrorIs(t, fx.factory.SetFeeToSetter(stranger, stranger), uniswapv2.ErrForbidden)
	require.NoError(t, fx.factory.SetFeeToSetter(setter, stranger))
	assert.Equal(t, stranger, fx.factory.FeeToSetter())
	assert.ErrorIs(t, fx.factory.SetFeeTo(setter, common.Address{}), uniswapv2.ErrForbidden)

	snap := fx.journal.Snapshot()
	require.NoError(t, fx.factory.SetFeeTo(stranger, common.Address{}))
	fx.journal.RevertToSnapshot(snap)
	assert.Equal(t, feeSink, fx.factory.FeeTo())
}

func TestPoolsViewAndRestore(t *testing.T) {
	fx := newFixture(t)
	p, err := fx.factory.CreatePair(weth, usdc)
	require.NoError(t, err)

	amount := uint256.NewInt(1_000_000)
	require.NoError(t, fx.ledger.Mint(usdc, p.Address(), amount))
	require.NoError(t, fx.ledger.Mint(weth, p.Address(), amount))
	_, err = p.Mint(setter, setter)
	require.NoError(t, err)
	require.NoError(t, fx.factory.SetFeeTo(setter, setter))

	pools := fx.factory.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, p.Address(), pools[0].Address)
	assert.Equal(t, "1000000", pools[0].Reserve0.Dec())
	assert.Equal(t, "1000000", pools[0].TotalSupply.Dec())
	usdcToken, _ := fx.tokens.GetByAddress(usdc)
	assert.Equal(t, usdcToken.ID, pools[0].Token0)

	single, ok := fx.factory.Pool(p.Address())
	require.True(t, ok)
	assert.Equal(t, pools[0], single)

	checkpoint := fx.factory.State()
	restored := newFixture(t)
	require.NoError(t, restored.factory.Restore(checkpoint))
	assert.Equal(t, setter, restored.factory.FeeTo())
	rp, ok := restored.factory.GetPair(usdc, weth)
	require.True(t, ok)
	assert.Equal(t, p.State(), rp.State())

	assert.Error(t, restored.factory.Restore(checkpoint), "restore needs an empty factory")
}
