// Package calculator implements the constant-product pricing formulas shared
// by the pair engine, the router and off-line quoting.
//
// Fees are expressed in basis points. A FeeBps of 30 reproduces the classic
// 997/1000 formula exactly.
package calculator

import (
	"errors"
	"fmt"
	"sync"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/holiman/uint256"
)

// BasisPointDivisor represents 100% in basis points.
const BasisPointDivisor = 10000

var (
	basisPointDivisor = uint256.NewInt(BasisPointDivisor)
	one               = uint256.NewInt(1)

	// ErrNilAmount is returned when a nil pointer is passed for an amount or reserve.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidFee is returned for a fee of 100% or more.
	ErrInvalidFee = errors.New("fee must be below 10000 bps")
)

// Calculator holds reusable scratch integers.
// Instances are NOT safe for concurrent use and are managed by calculatorPool.
type Calculator struct {
	feeMultiplier   uint256.Int
	amountInWithFee uint256.Int
	numerator       uint256.Int
	denominator     uint256.Int
	remainder       uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return new(Calculator)
	},
}

func getCalculator() *Calculator {
	return calculatorPool.Get().(*Calculator)
}

func putCalculator(c *Calculator) {
	calculatorPool.Put(c)
}

// Quote returns the amount of B worth amountA at the reserve ratio, rounded down.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA == nil || reserveA == nil || reserveB == nil {
		return nil, ErrNilAmount
	}
	if amountA.IsZero() {
		return nil, uniswapv2.ErrInsufficientAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, uniswapv2.ErrInsufficientLiquidity
	}
	amountB, overflow := new(uint256.Int).MulOverflow(amountA, reserveB)
	if overflow {
		return nil, fmt.Errorf("%w: quote %s * %s", uniswapv2.ErrOverflow, amountA.Dec(), reserveB.Dec())
	}
	return amountB.Div(amountB, reserveA), nil
}

// AmountOut returns the maximum output for an exact input, rounded down.
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	c := getCalculator()
	defer putCalculator(c)
	return c.amountOut(amountIn, reserveIn, reserveOut, feeBps)
}

// AmountIn returns the minimum input for an exact output, rounded up.
func AmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	c := getCalculator()
	defer putCalculator(c)
	return c.amountIn(amountOut, reserveIn, reserveOut, feeBps)
}

func (c *Calculator) setFeeMultiplier(feeBps uint16) error {
	if feeBps >= BasisPointDivisor {
		return fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	c.feeMultiplier.SetUint64(uint64(BasisPointDivisor - feeBps))
	return nil
}

// amountOut = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
func (c *Calculator) amountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountIn.IsZero() {
		return nil, uniswapv2.ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, uniswapv2.ErrInsufficientLiquidity
	}
	if err := c.setFeeMultiplier(feeBps); err != nil {
		return nil, err
	}

	if _, overflow := c.amountInWithFee.MulOverflow(amountIn, &c.feeMultiplier); overflow {
		return nil, fmt.Errorf("%w: amountIn %s", uniswapv2.ErrOverflow, amountIn.Dec())
	}
	if _, overflow := c.numerator.MulOverflow(&c.amountInWithFee, reserveOut); overflow {
		return nil, fmt.Errorf("%w: amountIn %s against reserveOut %s", uniswapv2.ErrOverflow, amountIn.Dec(), reserveOut.Dec())
	}
	if _, overflow := c.denominator.MulOverflow(reserveIn, basisPointDivisor); overflow {
		return nil, fmt.Errorf("%w: reserveIn %s", uniswapv2.ErrOverflow, reserveIn.Dec())
	}
	if _, overflow := c.denominator.AddOverflow(&c.denominator, &c.amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: amountIn %s against reserveIn %s", uniswapv2.ErrOverflow, amountIn.Dec(), reserveIn.Dec())
	}

	return new(uint256.Int).Div(&c.numerator, &c.denominator), nil
}

// amountIn = ceil(reserveIn*amountOut*10000 / ((reserveOut-amountOut)*(10000-fee)))
func (c *Calculator) amountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.IsZero() {
		return nil, uniswapv2.ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, uniswapv2.ErrInsufficientLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", uniswapv2.ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}
	if err := c.setFeeMultiplier(feeBps); err != nil {
		return nil, err
	}

	if _, overflow := c.numerator.MulOverflow(reserveIn, amountOut); overflow {
		return nil, fmt.Errorf("%w: amountOut %s against reserveIn %s", uniswapv2.ErrOverflow, amountOut.Dec(), reserveIn.Dec())
	}
	if _, overflow := c.numerator.MulOverflow(&c.numerator, basisPointDivisor); overflow {
		return nil, fmt.Errorf("%w: amountOut %s against reserveIn %s", uniswapv2.ErrOverflow, amountOut.Dec(), reserveIn.Dec())
	}
	c.denominator.Sub(reserveOut, amountOut)
	if _, overflow := c.denominator.MulOverflow(&c.denominator, &c.feeMultiplier); overflow {
		return nil, fmt.Errorf("%w: reserveOut %s", uniswapv2.ErrOverflow, reserveOut.Dec())
	}

	amountIn := new(uint256.Int).Div(&c.numerator, &c.denominator)
	if !c.remainder.Mod(&c.numerator, &c.denominator).IsZero() {
		amountIn.Add(amountIn, one)
	}
	return amountIn, nil
}

// Hop is one leg of a path, oriented in the direction of the trade.
type Hop struct {
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
	FeeBps     uint16
}

// AmountsOut chains AmountOut forward over hops. The result has len(hops)+1
// entries, the first being amountIn.
func AmountsOut(amountIn *uint256.Int, hops []Hop) ([]*uint256.Int, error) {
	if len(hops) == 0 {
		return nil, uniswapv2.ErrInvalidPath
	}
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	c := getCalculator()
	defer putCalculator(c)

	amounts := make([]*uint256.Int, len(hops)+1)
	amounts[0] = amountIn.Clone()
	for i, hop := range hops {
		out, err := c.amountOut(amounts[i], hop.ReserveIn, hop.ReserveOut, hop.FeeBps)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// AmountsIn chains AmountIn backward over hops. The result has len(hops)+1
// entries, the last being amountOut.
func AmountsIn(amountOut *uint256.Int, hops []Hop) ([]*uint256.Int, error) {
	if len(hops) == 0 {
		return nil, uniswapv2.ErrInvalidPath
	}
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	c := getCalculator()
	defer putCalculator(c)

	amounts := make([]*uint256.Int, len(hops)+1)
	amounts[len(hops)] = amountOut.Clone()
	for i := len(hops) - 1; i >= 0; i-- {
		in, err := c.amountIn(amounts[i+1], hops[i].ReserveIn, hops[i].ReserveOut, hops[i].FeeBps)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i] = in
	}
	return amounts, nil
}

// GetAmountOut calculates the output amount for a swap against a pool view.
func GetAmountOut(amountIn *uint256.Int, tokenIn, tokenOut uint64, pool uniswapv2.Pool) (*uint256.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	return AmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps)
}

// GetAmountIn calculates the required input for a desired output against a pool view.
func GetAmountIn(amountOut *uint256.Int, tokenIn, tokenOut uint64, pool uniswapv2.Pool) (*uint256.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	return AmountIn(amountOut, reserveIn, reserveOut, pool.FeeBps)
}

// SimulateSwap returns the output of a swap and the pool view after it.
// The returned pool does not share reserve memory with the input.
func SimulateSwap(amountIn *uint256.Int, tokenInID, tokenOutID uint64, pool uniswapv2.Pool) (*uint256.Int, uniswapv2.Pool, error) {
	amountOut, err := GetAmountOut(amountIn, tokenInID, tokenOutID, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}

	next := pool.Copy()
	if tokenInID == pool.Token0 {
		next.Reserve0.Add(next.Reserve0, amountIn)
		next.Reserve1.Sub(next.Reserve1, amountOut)
	} else {
		next.Reserve1.Add(next.Reserve1, amountIn)
		next.Reserve0.Sub(next.Reserve0, amountOut)
	}
	return amountOut, next, nil
}

// GetReserves returns the reserves of pool oriented for tokenIn -> tokenOut.
func GetReserves(tokenInID, tokenOutID uint64, pool uniswapv2.Pool) (reserveIn, reserveOut *uint256.Int, err error) {
	if tokenInID == pool.Token0 && tokenOutID == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenInID == pool.Token1 && tokenOutID == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %d does not contain the pair %d -> %d", ErrTokenMismatch, pool.ID, tokenInID, tokenOutID)
}
