package pair

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/events"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Swap sends the requested outputs to to, optionally calls to's registered
// callee with data, and then requires the pair's held balances to satisfy the
// fee-adjusted k invariant against the reserves it started with.
func (p *Pair) Swap(sender common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	amount0Out = orZero(amount0Out)
	amount1Out = orZero(amount1Out)

	return p.guarded(func() error {
		if amount0Out.IsZero() && amount1Out.IsZero() {
			return uniswapv2.ErrInsufficientOutputAmount
		}
		reserve0, reserve1 := p.oracle.reserve0, p.oracle.reserve1
		if !amount0Out.Lt(reserve0) || !amount1Out.Lt(reserve1) {
			return fmt.Errorf("%w: outputs %s/%s against reserves %s/%s", uniswapv2.ErrInsufficientLiquidity, amount0Out.Dec(), amount1Out.Dec(), reserve0.Dec(), reserve1.Dec())
		}
		if to == p.token0 || to == p.token1 {
			return fmt.Errorf("%w: %s is a pair token", uniswapv2.ErrInvalidRecipient, to.Hex())
		}

		if !amount0Out.IsZero() {
			if err := p.ledger.Transfer(p.token0, p.address, to, amount0Out); err != nil {
				return err
			}
		}
		if !amount1Out.IsZero() {
			if err := p.ledger.Transfer(p.token1, p.address, to, amount1Out); err != nil {
				return err
			}
		}

		if len(data) > 0 {
			if err := p.callback(sender, amount0Out, amount1Out, to, data); err != nil {
				return err
			}
		}

		balance0, balance1 := p.balances()
		amount0In := impliedInput(balance0, reserve0, amount0Out)
		amount1In := impliedInput(balance1, reserve1, amount1Out)
		if amount0In.IsZero() && amount1In.IsZero() {
			return uniswapv2.ErrInsufficientInputAmount
		}

		if err := p.checkInvariant(balance0, balance1, amount0In, amount1In, reserve0, reserve1); err != nil {
			return err
		}
		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}

		p.emitter.Emit(events.Swapped{
			Pair:       p.address,
			Sender:     sender,
			Amount0In:  amount0In,
			Amount1In:  amount1In,
			Amount0Out: amount0Out.Clone(),
			Amount1Out: amount1Out.Clone(),
			To:         to,
		})
		return nil
	})
}

func (p *Pair) callback(sender common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	if p.callees == nil {
		return fmt.Errorf("%w: flash swaps are disabled", uniswapv2.ErrInvalidRecipient)
	}
	callee, ok := p.callees.Callee(to)
	if !ok {
		return fmt.Errorf("%w: no callee registered for %s", uniswapv2.ErrInvalidRecipient, to.Hex())
	}
	p.logger.Debug("flash swap callback", "pair", p.address, "callee", to)
	if err := callee.UniswapV2Call(sender, amount0Out.Clone(), amount1Out.Clone(), data); err != nil {
		return fmt.Errorf("flash swap callback: %w", err)
	}
	return nil
}

// checkInvariant requires (b0*10000 - in0*fee) * (b1*10000 - in1*fee) >= r0*r1*10000^2.
func (p *Pair) checkInvariant(balance0, balance1, amount0In, amount1In, reserve0, reserve1 *uint256.Int) error {
	fee := uint256.NewInt(uint64(p.feeBps))

	adjusted0, err := adjustedBalance(balance0, amount0In, fee)
	if err != nil {
		return err
	}
	adjusted1, err := adjustedBalance(balance1, amount1In, fee)
	if err != nil {
		return err
	}
	lhs, overflow := new(uint256.Int).MulOverflow(adjusted0, adjusted1)
	if overflow {
		return fmt.Errorf("%w: adjusted balance product", uniswapv2.ErrOverflow)
	}
	// reserves fit in 112 bits, so r0*r1*10^8 < 2^251
	rhs := new(uint256.Int).Mul(reserve0, reserve1)
	rhs.Mul(rhs, feeDivisorSq)

	if lhs.Lt(rhs) {
		return fmt.Errorf("%w: pair %s", uniswapv2.ErrInvariantViolated, p.address.Hex())
	}
	return nil
}

func adjustedBalance(balance, amountIn, fee *uint256.Int) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(balance, feeDivisor)
	if overflow {
		return nil, fmt.Errorf("%w: balance %s", uniswapv2.ErrOverflow, balance.Dec())
	}
	// amountIn <= balance and fee < 10000, so this never underflows
	charged := new(uint256.Int).Mul(amountIn, fee)
	return scaled.Sub(scaled, charged), nil
}

// impliedInput returns how much of an asset arrived beyond reserve-amountOut.
func impliedInput(balance, reserve, amountOut *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, amountOut)
	if balance.Gt(floor) {
		return floor.Sub(balance, floor)
	}
	return new(uint256.Int)
}

// Skim sends any held balance above the reserves to to.
func (p *Pair) Skim(to common.Address) error {
	return p.guarded(func() error {
		balance0, balance1 := p.balances()
		if excess, underflow := new(uint256.Int).SubOverflow(balance0, p.oracle.reserve0); !underflow && !excess.IsZero() {
			if err := p.ledger.Transfer(p.token0, p.address, to, excess); err != nil {
				return err
			}
		}
		if excess, underflow := new(uint256.Int).SubOverflow(balance1, p.oracle.reserve1); !underflow && !excess.IsZero() {
			if err := p.ledger.Transfer(p.token1, p.address, to, excess); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sync sets the reserves to the held balances.
func (p *Pair) Sync() error {
	return p.guarded(func() error {
		balance0, balance1 := p.balances()
		return p.update(balance0, balance1, p.oracle.reserve0, p.oracle.reserve1)
	})
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
