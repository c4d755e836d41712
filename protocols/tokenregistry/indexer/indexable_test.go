package indexer

import (
	"testing"

	tokenregistry "github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableTokenSystem(t *testing.T) {
	wethAddress := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddress := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	fakeUSDC := common.HexToAddress("0x2222222222222222222222222222222222222222")

	tokens := []tokenregistry.Token{
		{ID: 0, Address: wethAddress, Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18},
		{ID: 2, Address: fakeUSDC, Symbol: "usdc"},
		{ID: 1, Address: usdcAddress, Name: "USD Coin", Symbol: "USDC", Decimals: 6},
		{ID: 3, Address: common.HexToAddress("0x3")},
	}
	idx := New().Index(tokens)

	tok, ok := idx.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, "USD Coin", tok.Name)

	tok, ok = idx.GetByAddress(wethAddress)
	require.True(t, ok)
	assert.Equal(t, uint64(0), tok.ID)

	tok, ok = idx.GetBySymbol("Usdc")
	require.True(t, ok)
	assert.Equal(t, usdcAddress, tok.Address, "lowest id wins a symbol collision")

	_, ok = idx.GetBySymbol("")
	assert.False(t, ok)
	_, ok = idx.GetByID(42)
	assert.False(t, ok)

	all := idx.All()
	require.Len(t, all, 4)
	all[0].Symbol = "HACKED"
	tok, _ = idx.GetByID(0)
	assert.Equal(t, "WETH", tok.Symbol)
}
