package pair

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/events"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Mint issues shares to to against the assets transferred into the pair since
// the last sync. The caller must have moved both assets in beforehand.
func (p *Pair) Mint(sender, to common.Address) (*uint256.Int, error) {
	var liquidity *uint256.Int
	err := p.guarded(func() error {
		reserve0, reserve1 := p.oracle.reserve0, p.oracle.reserve1
		balance0, balance1 := p.balances()

		amount0, underflow0 := new(uint256.Int).SubOverflow(balance0, reserve0)
		amount1, underflow1 := new(uint256.Int).SubOverflow(balance1, reserve1)
		if underflow0 || underflow1 {
			return fmt.Errorf("%w: balance below reserve", uniswapv2.ErrOverflow)
		}

		feeOn, err := p.mintFee(reserve0, reserve1)
		if err != nil {
			return err
		}

		totalSupply := p.ledger.TotalSupply(p.address)
		if totalSupply.IsZero() {
			product, overflow := new(uint256.Int).MulOverflow(amount0, amount1)
			if overflow {
				return fmt.Errorf("%w: initial deposit %s * %s", uniswapv2.ErrOverflow, amount0.Dec(), amount1.Dec())
			}
			root := product.Sqrt(product)
			if !root.Gt(minimumLiquidity) {
				return fmt.Errorf("%w: initial liquidity %s does not exceed the locked minimum", uniswapv2.ErrInsufficientLiquidityMinted, root.Dec())
			}
			liquidity = root.Sub(root, minimumLiquidity)
			if err := p.ledger.Mint(p.address, DeadAddress, minimumLiquidity.Clone()); err != nil {
				return err
			}
		} else {
			liquidity0, err := proportion(amount0, totalSupply, reserve0)
			if err != nil {
				return err
			}
			liquidity1, err := proportion(amount1, totalSupply, reserve1)
			if err != nil {
				return err
			}
			liquidity = liquidity0
			if liquidity1.Lt(liquidity0) {
				liquidity = liquidity1
			}
		}

		if liquidity.IsZero() {
			return uniswapv2.ErrInsufficientLiquidityMinted
		}
		if err := p.ledger.Mint(p.address, to, liquidity); err != nil {
			return err
		}

		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}
		if feeOn {
			p.setKLast(new(uint256.Int).Mul(p.oracle.reserve0, p.oracle.reserve1))
		}

		p.emitter.Emit(events.LiquidityProvided{
			Pair:    p.address,
			Sender:  sender,
			Amount0: amount0,
			Amount1: amount1,
		})
		p.logger.Debug("liquidity provided", "pair", p.address, "to", to, "liquidity", liquidity.Dec())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return liquidity.Clone(), nil
}

// Burn redeems the shares the pair holds of itself for a pro-rata cut of its
// held balances, sent to to. The caller must have moved the shares in beforehand.
func (p *Pair) Burn(sender, to common.Address) (amount0, amount1 *uint256.Int, err error) {
	err = p.guarded(func() error {
		reserve0, reserve1 := p.oracle.reserve0, p.oracle.reserve1
		balance0, balance1 := p.balances()
		liquidity := p.ledger.BalanceOf(p.address, p.address)

		feeOn, err := p.mintFee(reserve0, reserve1)
		if err != nil {
			return err
		}

		totalSupply := p.ledger.TotalSupply(p.address)
		if amount0, err = proportion(liquidity, balance0, totalSupply); err != nil {
			return err
		}
		if amount1, err = proportion(liquidity, balance1, totalSupply); err != nil {
			return err
		}
		if amount0.IsZero() || amount1.IsZero() {
			return uniswapv2.ErrInsufficientLiquidityBurned
		}

		if err := p.ledger.Burn(p.address, p.address, liquidity); err != nil {
			return err
		}
		if err := p.ledger.Transfer(p.token0, p.address, to, amount0); err != nil {
			return err
		}
		if err := p.ledger.Transfer(p.token1, p.address, to, amount1); err != nil {
			return err
		}

		balance0, balance1 = p.balances()
		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}
		if feeOn {
			p.setKLast(new(uint256.Int).Mul(p.oracle.reserve0, p.oracle.reserve1))
		}

		p.emitter.Emit(events.LiquidityWithdrawn{
			Pair:    p.address,
			Sender:  sender,
			Amount0: amount0.Clone(),
			Amount1: amount1.Clone(),
			To:      to,
		})
		p.logger.Debug("liquidity withdrawn", "pair", p.address, "to", to, "liquidity", liquidity.Dec())
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// mintFee mints the protocol's one-sixth share of the invariant growth since
// kLast to the fee recipient. It reports whether the fee is on.
func (p *Pair) mintFee(reserve0, reserve1 *uint256.Int) (bool, error) {
	var feeTo common.Address
	if p.feeTo != nil {
		feeTo = p.feeTo.FeeTo()
	}
	feeOn := feeTo != (common.Address{})

	if !feeOn {
		if !p.kLast.IsZero() {
			p.setKLast(new(uint256.Int))
		}
		return false, nil
	}
	if p.kLast.IsZero() {
		return true, nil
	}

	// reserves are below 2^112 so the product cannot overflow
	rootK := new(uint256.Int).Mul(reserve0, reserve1)
	rootK.Sqrt(rootK)
	rootKLast := new(uint256.Int).Sqrt(p.kLast)
	if !rootK.Gt(rootKLast) {
		return true, nil
	}

	numerator := new(uint256.Int).Sub(rootK, rootKLast)
	if _, overflow := numerator.MulOverflow(p.ledger.TotalSupply(p.address), numerator); overflow {
		return false, fmt.Errorf("%w: protocol fee numerator", uniswapv2.ErrOverflow)
	}
	denominator := new(uint256.Int).Mul(rootK, five)
	denominator.Add(denominator, rootKLast)

	liquidity := numerator.Div(numerator, denominator)
	if liquidity.IsZero() {
		return true, nil
	}
	if err := p.ledger.Mint(p.address, feeTo, liquidity); err != nil {
		return false, err
	}
	return true, nil
}

// proportion returns a*b/c rounded down. c == 0 yields 0.
func proportion(a, b, c *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", uniswapv2.ErrOverflow, a.Dec(), b.Dec())
	}
	return product.Div(product, c), nil
}
