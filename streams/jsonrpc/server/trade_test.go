package server

import (
	"context"
	"testing"

	"github.com/defistate/defistate-amm-go/exchange"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeAPI_MutatesPools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRig(t, ctx)
	require.NoError(t, RegisterTrading(r.srv, NewTradeAPI(r.ex, discard())))
	fund(t, r.ex)

	rc := rpc.DialInProc(r.srv)
	defer rc.Close()

	var added router.LiquidityResult
	require.NoError(t, rc.CallContext(ctx, &added, "amm_addLiquidity", AddLiquidityArgs{
		From: alice, TokenA: tokenA, TokenB: tokenB,
		AmountADesired: ether(5), AmountBDesired: ether(10),
		To: alice, Deadline: now,
	}))
	assert.Equal(t, ether(5), added.AmountA)
	assert.Equal(t, ether(10), added.AmountB)
	require.NotNil(t, added.Liquidity)
	assert.False(t, added.Liquidity.IsZero())

	var res Reserves
	require.NoError(t, rc.CallContext(ctx, &res, "amm_getReserves", tokenA, tokenB))
	assert.Equal(t, ether(5), res.Reserve0)
	assert.Equal(t, ether(10), res.Reserve1)

	var amounts []*uint256.Int
	require.NoError(t, rc.CallContext(ctx, &amounts, "amm_swapExactTokensForTokens", ExactInArgs{
		From: alice, AmountIn: ether(1), Path: []common.Address{tokenA, tokenB}, To: alice, Deadline: now,
	}))
	require.Len(t, amounts, 2)
	assert.Equal(t, uint256.MustFromDecimal("1662497915624478906"), amounts[1])

	wantB := new(uint256.Int).Sub(ether(10), amounts[1])
	require.NoError(t, rc.CallContext(ctx, &res, "amm_getReserves", tokenA, tokenB))
	assert.Equal(t, ether(6), res.Reserve0)
	assert.Equal(t, wantB, res.Reserve1)

	// Reverted calls leave the pool and the height untouched.
	err := rc.CallContext(ctx, &amounts, "amm_swapExactTokensForTokens", ExactInArgs{
		From: alice, AmountIn: ether(1), Path: []common.Address{tokenA, tokenB}, To: alice, Deadline: now - 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")

	err = rc.CallContext(ctx, &amounts, "amm_swapTokensForExactTokens", ExactOutArgs{
		From: alice, AmountOut: ether(1), AmountInMax: uint256.NewInt(1), Path: []common.Address{tokenA, tokenB}, To: alice, Deadline: now,
	})
	require.Error(t, err)

	require.NoError(t, rc.CallContext(ctx, &res, "amm_getReserves", tokenA, tokenB))
	assert.Equal(t, ether(6), res.Reserve0)
	assert.Equal(t, wantB, res.Reserve1)
	assert.Equal(t, uint64(3), r.ex.State().Block.Number)

	var out Withdrawn
	require.NoError(t, rc.CallContext(ctx, &out, "amm_removeLiquidity", RemoveLiquidityArgs{
		From: alice, TokenA: tokenA, TokenB: tokenB, Liquidity: added.Liquidity, To: alice, Deadline: now,
	}))
	assert.False(t, out.AmountA.IsZero())
	assert.False(t, out.AmountB.IsZero())

	require.NoError(t, r.ex.View(func(tx *exchange.Tx) error {
		assert.True(t, tx.Ledger().BalanceOf(res.Pair, alice).IsZero())
		return nil
	}))
	assert.Equal(t, uint64(4), r.ex.State().Block.Number)
}

func TestTradeAPI_Approve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRig(t, ctx)
	require.NoError(t, RegisterTrading(r.srv, NewTradeAPI(r.ex, discard())))

	rc := rpc.DialInProc(r.srv)
	defer rc.Close()

	spender := common.HexToAddress("0x5e11de0000000000000000000000000000000000")
	var got *uint256.Int
	require.NoError(t, rc.CallContext(ctx, &got, "amm_approve", ApproveArgs{
		Token: tokenC, Owner: alice, Spender: spender, Amount: uint256.NewInt(42),
	}))
	assert.Equal(t, uint256.NewInt(42), got)

	require.NoError(t, r.ex.View(func(tx *exchange.Tx) error {
		assert.Equal(t, uint256.NewInt(42), tx.Ledger().Allowance(tokenC, alice, spender))
		return nil
	}))

	err := rc.CallContext(ctx, &got, "amm_approve", ApproveArgs{Token: tokenC, Owner: alice, Spender: spender})
	assert.Error(t, err)
}
