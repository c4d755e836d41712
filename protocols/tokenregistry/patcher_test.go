package tokenregistry

import (
	"testing"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	weth := newTestToken(0, "WETH", 18)
	usdc := newTestToken(1, "USDC", 6)
	dai := newTestToken(2, "DAI", 18)
	initial := []Token{weth, usdc, dai}

	t.Run("round trip with differ", func(t *testing.T) {
		next := []Token{weth, newTestToken(1, "USDC.e", 6), newTestToken(3, "WBTC", 8)}
		patched, err := Patcher(initial, Differ(initial, next))
		require.NoError(t, err)
		assert.Equal(t, next, patched)
	})

	t.Run("previous state untouched", func(t *testing.T) {
		_, err := Patcher(initial, TokenSystemDiff{Deletions: []uint64{0}})
		require.NoError(t, err)
		assert.Len(t, initial, 3)
		assert.Equal(t, "WETH", initial[0].Symbol)
	})

	t.Run("unknown deletion", func(t *testing.T) {
		_, err := Patcher(initial, TokenSystemDiff{Deletions: []uint64{9}})
		assert.Error(t, err)
	})

	t.Run("unknown update", func(t *testing.T) {
		_, err := Patcher(initial, TokenSystemDiff{Updates: []Token{newTestToken(9, "X", 1)}})
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	journal := state.NewJournal()
	r := NewRegistry(journal)
	wethAddr := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	bare := r.Ensure(wethAddr)
	assert.Equal(t, uint64(0), bare.ID)
	assert.Empty(t, bare.Symbol)
	assert.Equal(t, bare, r.Ensure(wethAddr))

	snap := journal.Snapshot()
	named := r.Register(Token{ID: 77, Address: wethAddr, Symbol: "WETH", Decimals: 18})
	assert.Equal(t, uint64(0), named.ID, "existing token keeps its id")
	usdc := r.Register(Token{Address: usdcAddr, Symbol: "USDC", Decimals: 6})
	assert.Equal(t, uint64(1), usdc.ID)

	got, ok := r.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, usdc, got)

	journal.RevertToSnapshot(snap)
	assert.Equal(t, []Token{bare}, r.View())
	_, ok = r.GetByAddress(usdcAddr)
	assert.False(t, ok)
	_, ok = r.GetByID(1)
	assert.False(t, ok)
}
