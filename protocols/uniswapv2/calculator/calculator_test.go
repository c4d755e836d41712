package calculator

import (
	"testing"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func dec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func TestQuote(t *testing.T) {
	testCases := []struct {
		name        string
		amount      *uint256.Int
		reserveA    *uint256.Int
		reserveB    *uint256.Int
		expected    uint64
		expectedErr error
	}{
		{name: "doubles", amount: u(1), reserveA: u(100), reserveB: u(200), expected: 2},
		{name: "halves", amount: u(2), reserveA: u(200), reserveB: u(100), expected: 1},
		{name: "zero amount", amount: u(0), reserveA: u(100), reserveB: u(200), expectedErr: uniswapv2.ErrInsufficientAmount},
		{name: "zero reserveA", amount: u(1), reserveA: u(0), reserveB: u(200), expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "zero reserveB", amount: u(1), reserveA: u(100), reserveB: u(0), expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "nil", amount: nil, reserveA: u(100), reserveB: u(0), expectedErr: ErrNilAmount},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.amount, tc.reserveA, tc.reserveB)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.Uint64())
		})
	}
}

func TestAmountOut(t *testing.T) {
	testCases := []struct {
		name        string
		amountIn    *uint256.Int
		reserveIn   *uint256.Int
		reserveOut  *uint256.Int
		feeBps      uint16
		expected    *uint256.Int
		expectedErr error
	}{
		{name: "small", amountIn: u(2), reserveIn: u(100), reserveOut: u(100), feeBps: 30, expected: u(1)},
		{
			name:       "one ether into 5/10",
			amountIn:   dec("1000000000000000000"),
			reserveIn:  dec("5000000000000000000"),
			reserveOut: dec("10000000000000000000"),
			feeBps:     30,
			expected:   dec("1662497915624478906"),
		},
		{
			name:       "usdc to weth",
			amountIn:   u(1_000_000),
			reserveIn:  u(100_000_000),
			reserveOut: dec("50000000000000000000"),
			feeBps:     30,
			expected:   dec("493579017198530649"),
		},
		{name: "zero fee", amountIn: u(100), reserveIn: u(1000), reserveOut: u(1000), feeBps: 0, expected: u(90)},
		{name: "zero input", amountIn: u(0), reserveIn: u(100), reserveOut: u(100), feeBps: 30, expectedErr: uniswapv2.ErrInsufficientInputAmount},
		{name: "zero reserveIn", amountIn: u(2), reserveIn: u(0), reserveOut: u(100), feeBps: 30, expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "zero reserveOut", amountIn: u(2), reserveIn: u(100), reserveOut: u(0), feeBps: 30, expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "full fee", amountIn: u(2), reserveIn: u(100), reserveOut: u(100), feeBps: 10000, expectedErr: ErrInvalidFee},
		{
			name:        "overflow",
			amountIn:    new(uint256.Int).Lsh(u(1), 250),
			reserveIn:   u(100),
			reserveOut:  u(100),
			feeBps:      30,
			expectedErr: uniswapv2.ErrOverflow,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AmountOut(tc.amountIn, tc.reserveIn, tc.reserveOut, tc.feeBps)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.Dec(), got.Dec())
		})
	}
}

func TestAmountIn(t *testing.T) {
	testCases := []struct {
		name        string
		amountOut   *uint256.Int
		reserveIn   *uint256.Int
		reserveOut  *uint256.Int
		expected    *uint256.Int
		expectedErr error
	}{
		{name: "small", amountOut: u(1), reserveIn: u(100), reserveOut: u(100), expected: u(2)},
		{
			name:       "one ether out of 5/10",
			amountOut:  dec("1000000000000000000"),
			reserveIn:  dec("5000000000000000000"),
			reserveOut: dec("10000000000000000000"),
			expected:   dec("557227237267357629"),
		},
		{name: "zero output", amountOut: u(0), reserveIn: u(100), reserveOut: u(100), expectedErr: uniswapv2.ErrInsufficientOutputAmount},
		{name: "zero reserveIn", amountOut: u(1), reserveIn: u(0), reserveOut: u(100), expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "zero reserveOut", amountOut: u(1), reserveIn: u(100), reserveOut: u(0), expectedErr: uniswapv2.ErrInsufficientLiquidity},
		{name: "drains pool", amountOut: u(100), reserveIn: u(100), reserveOut: u(100), expectedErr: uniswapv2.ErrInsufficientLiquidity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AmountIn(tc.amountOut, tc.reserveIn, tc.reserveOut, 30)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.Dec(), got.Dec())
		})
	}
}

func TestAmountIn_RoundsUpOnlyWithRemainder(t *testing.T) {
	// 1000*10*10000 / (990*10000) divides exactly with a zero fee
	got, err := AmountIn(u(10), u(990), u(1000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Uint64())

	got, err = AmountIn(u(11), u(990), u(1000), 0)
	require.NoError(t, err)
	// 990*11/989 = 11.011..
	assert.Equal(t, uint64(12), got.Uint64())
}

// The computed input must always buy at least the requested output.
func TestAmountIn_SatisfiesAmountOut(t *testing.T) {
	reserves := [][2]uint64{{100, 100}, {10_000, 3}, {7, 1_000_000}, {123_456_789, 987_654_321}}
	for _, r := range reserves {
		for out := uint64(1); out < r[1] && out < 50; out++ {
			in, err := AmountIn(u(out), u(r[0]), u(r[1]), 30)
			require.NoError(t, err)
			got, err := AmountOut(in, u(r[0]), u(r[1]), 30)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.Uint64(), out, "reserves %v out %d", r, out)
		}
	}
}

func TestAmountsOutAndIn(t *testing.T) {
	hops := []Hop{{ReserveIn: u(10000), ReserveOut: u(10000), FeeBps: 30}}

	out, err := AmountsOut(u(2), hops)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, []uint64{out[0].Uint64(), out[1].Uint64()})

	in, err := AmountsIn(u(1), hops)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, []uint64{in[0].Uint64(), in[1].Uint64()})

	_, err = AmountsOut(u(2), nil)
	assert.ErrorIs(t, err, uniswapv2.ErrInvalidPath)
	_, err = AmountsIn(u(2), nil)
	assert.ErrorIs(t, err, uniswapv2.ErrInvalidPath)

	multi := []Hop{
		{ReserveIn: u(1_000_000), ReserveOut: u(2_000_000), FeeBps: 30},
		{ReserveIn: u(3_000_000), ReserveOut: u(1_000_000), FeeBps: 30},
	}
	fwd, err := AmountsOut(u(10_000), multi)
	require.NoError(t, err)
	require.Len(t, fwd, 3)
	back, err := AmountsIn(fwd[2], multi)
	require.NoError(t, err)
	assert.LessOrEqual(t, back[0].Uint64(), uint64(10_000))

	_, err = AmountsOut(u(0), multi)
	assert.ErrorIs(t, err, uniswapv2.ErrInsufficientInputAmount)
}

func TestPoolHelpers(t *testing.T) {
	pool := uniswapv2.Pool{
		ID:       1,
		Token0:   0,
		Token1:   1,
		Reserve0: u(100_000_000),
		Reserve1: dec("50000000000000000000"),
		FeeBps:   30,
	}

	out, err := GetAmountOut(u(1_000_000), 0, 1, pool)
	require.NoError(t, err)
	assert.Equal(t, "493579017198530649", out.Dec())

	_, err = GetAmountOut(u(1), 0, 2, pool)
	assert.ErrorIs(t, err, ErrTokenMismatch)

	in, err := GetAmountIn(out, 0, 1, pool)
	require.NoError(t, err)
	assert.LessOrEqual(t, in.Uint64(), uint64(1_000_000))

	amountOut, next, err := SimulateSwap(u(1_000_000), 0, 1, pool)
	require.NoError(t, err)
	assert.Equal(t, out.Dec(), amountOut.Dec())
	assert.Equal(t, uint64(101_000_000), next.Reserve0.Uint64())
	assert.Equal(t, new(uint256.Int).Sub(pool.Reserve1, out).Dec(), next.Reserve1.Dec())
	assert.Equal(t, uint64(100_000_000), pool.Reserve0.Uint64(), "input pool must be untouched")

	rIn, rOut, err := GetReserves(1, 0, pool)
	require.NoError(t, err)
	assert.Equal(t, pool.Reserve1, rIn)
	assert.Equal(t, pool.Reserve0, rOut)
}
