package router

import (
	"fmt"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/pair"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// maxAllowance mirrors the ledger's infinite allowance.
var maxAllowance = new(uint256.Int).SetAllOne()

type AddLiquidityParams struct {
	TokenA         common.Address
	TokenB         common.Address
	AmountADesired *uint256.Int
	AmountBDesired *uint256.Int
	AmountAMin     *uint256.Int
	AmountBMin     *uint256.Int
	To             common.Address
	Deadline       uint64
}

// AddLiquidityETHParams pairs Token with native currency. AmountETHDesired is
// the native value offered; only the amount actually deposited is taken.
type AddLiquidityETHParams struct {
	Token              common.Address
	AmountTokenDesired *uint256.Int
	AmountTokenMin     *uint256.Int
	AmountETHDesired   *uint256.Int
	AmountETHMin       *uint256.Int
	To                 common.Address
	Deadline           uint64
}

type RemoveLiquidityParams struct {
	TokenA     common.Address
	TokenB     common.Address
	Liquidity  *uint256.Int
	AmountAMin *uint256.Int
	AmountBMin *uint256.Int
	To         common.Address
	Deadline   uint64
}

type RemoveLiquidityETHParams struct {
	Token          common.Address
	Liquidity      *uint256.Int
	AmountTokenMin *uint256.Int
	AmountETHMin   *uint256.Int
	To             common.Address
	Deadline       uint64
}

// PermitParams authorizes the router to pull liquidity shares by signature.
// With ApproveMax the signed value is the maximum allowance, otherwise it is
// exactly the liquidity being removed.
type PermitParams struct {
	ApproveMax bool
	Signature  []byte
}

// LiquidityResult reports the amounts deposited and the shares minted.
type LiquidityResult struct {
	AmountA   *uint256.Int `json:"amountA"`
	AmountB   *uint256.Int `json:"amountB"`
	Liquidity *uint256.Int `json:"liquidity"`
}

// addLiquidity creates the pair if needed and computes the deposit that
// matches the current price without exceeding either desired amount.
func (r *Router) addLiquidity(tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int) (*pair.Pair, *uint256.Int, *uint256.Int, error) {
	if amountADesired == nil || amountBDesired == nil {
		return nil, nil, nil, fmt.Errorf("%w: desired amounts are required", uniswapv2.ErrInsufficientAmount)
	}
	amountAMin, amountBMin = minOrZero(amountAMin), minOrZero(amountBMin)

	p, ok := r.factory.GetPair(tokenA, tokenB)
	if !ok {
		var err error
		if p, err = r.factory.CreatePair(tokenA, tokenB); err != nil {
			return nil, nil, nil, err
		}
	}
	reserveA, reserveB, _, err := r.reserves(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	if reserveA.IsZero() && reserveB.IsZero() {
		return p, amountADesired.Clone(), amountBDesired.Clone(), nil
	}

	amountBOptimal, err := calculator.Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, nil, err
	}
	if !amountBOptimal.Gt(amountBDesired) {
		if amountBOptimal.Lt(amountBMin) {
			return nil, nil, nil, fmt.Errorf("%w: %s below minimum %s", uniswapv2.ErrInsufficientBAmount, amountBOptimal.Dec(), amountBMin.Dec())
		}
		return p, amountADesired.Clone(), amountBOptimal, nil
	}

	amountAOptimal, err := calculator.Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, nil, err
	}
	if amountAOptimal.Gt(amountADesired) {
		return nil, nil, nil, fmt.Errorf("%w: optimal %s above desired %s", uniswapv2.ErrInsufficientAAmount, amountAOptimal.Dec(), amountADesired.Dec())
	}
	if amountAOptimal.Lt(amountAMin) {
		return nil, nil, nil, fmt.Errorf("%w: %s below minimum %s", uniswapv2.ErrInsufficientAAmount, amountAOptimal.Dec(), amountAMin.Dec())
	}
	return p, amountAOptimal, amountBDesired.Clone(), nil
}

// AddLiquidity deposits a price-matched amount of both tokens and mints
// shares to To.
func (r *Router) AddLiquidity(sender common.Address, p AddLiquidityParams) (res LiquidityResult, err error) {
	err = r.ensure(p.Deadline, func() error {
		pr, amountA, amountB, err := r.addLiquidity(p.TokenA, p.TokenB, p.AmountADesired, p.AmountBDesired, p.AmountAMin, p.AmountBMin)
		if err != nil {
			return err
		}
		if err := r.ledger.TransferFrom(p.TokenA, r.address, sender, pr.Address(), amountA); err != nil {
			return err
		}
		if err := r.ledger.TransferFrom(p.TokenB, r.address, sender, pr.Address(), amountB); err != nil {
			return err
		}
		liquidity, err := pr.Mint(r.address, p.To)
		if err != nil {
			return err
		}
		res = LiquidityResult{AmountA: amountA, AmountB: amountB, Liquidity: liquidity}
		return nil
	})
	if err != nil {
		r.logger.Debug("router call reverted", "op", "addLiquidity", "error", err)
		return LiquidityResult{}, err
	}
	return res, nil
}

// AddLiquidityETH deposits Token against wrapped native currency. AmountA of
// the result is the token amount and AmountB the native amount.
func (r *Router) AddLiquidityETH(sender common.Address, p AddLiquidityETHParams) (res LiquidityResult, err error) {
	err = r.ensure(p.Deadline, func() error {
		weth := r.weth.Address()
		pr, amountToken, amountETH, err := r.addLiquidity(p.Token, weth, p.AmountTokenDesired, p.AmountETHDesired, p.AmountTokenMin, p.AmountETHMin)
		if err != nil {
			return err
		}
		if err := r.ledger.TransferFrom(p.Token, r.address, sender, pr.Address(), amountToken); err != nil {
			return err
		}
		if err := r.ledger.Transfer(r.nativeAsset, sender, r.address, amountETH); err != nil {
			return err
		}
		if err := r.weth.Deposit(r.address, amountETH); err != nil {
			return err
		}
		if err := r.ledger.Transfer(weth, r.address, pr.Address(), amountETH); err != nil {
			return err
		}
		liquidity, err := pr.Mint(r.address, p.To)
		if err != nil {
			return err
		}
		res = LiquidityResult{AmountA: amountToken, AmountB: amountETH, Liquidity: liquidity}
		return nil
	})
	if err != nil {
		r.logger.Debug("router call reverted", "op", "addLiquidityETH", "error", err)
		return LiquidityResult{}, err
	}
	return res, nil
}

// removeLiquidity returns shares to the pair, burns them for to and checks
// the minimums. Amounts are ordered as (A, B).
func (r *Router) removeLiquidity(sender, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *uint256.Int, to common.Address) (*uint256.Int, *uint256.Int, error) {
	if liquidity == nil {
		return nil, nil, fmt.Errorf("%w: liquidity is required", uniswapv2.ErrInsufficientLiquidityBurned)
	}
	p, err := r.pair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	if err := r.ledger.TransferFrom(p.Address(), r.address, sender, p.Address(), liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := p.Burn(r.address, to)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB := amount0, amount1
	if tokenA != p.Token0() {
		amountA, amountB = amount1, amount0
	}
	if min := minOrZero(amountAMin); amountA.Lt(min) {
		return nil, nil, fmt.Errorf("%w: %s below minimum %s", uniswapv2.ErrInsufficientAAmount, amountA.Dec(), min.Dec())
	}
	if min := minOrZero(amountBMin); amountB.Lt(min) {
		return nil, nil, fmt.Errorf("%w: %s below minimum %s", uniswapv2.ErrInsufficientBAmount, amountB.Dec(), min.Dec())
	}
	return amountA, amountB, nil
}

// RemoveLiquidity burns Liquidity shares of the TokenA/TokenB pair and pays
// both tokens to To.
func (r *Router) RemoveLiquidity(sender common.Address, p RemoveLiquidityParams) (amountA, amountB *uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		amountA, amountB, err = r.removeLiquidity(sender, p.TokenA, p.TokenB, p.Liquidity, p.AmountAMin, p.AmountBMin, p.To)
		return err
	})
	return r.doneRemove("removeLiquidity", amountA, amountB, err)
}

// RemoveLiquidityETH burns shares of the Token/WETH pair and pays the token
// and unwrapped native currency to To.
func (r *Router) RemoveLiquidityETH(sender common.Address, p RemoveLiquidityETHParams) (amountToken, amountETH *uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		amountToken, amountETH, err = r.removeLiquidityETH(sender, p)
		return err
	})
	return r.doneRemove("removeLiquidityETH", amountToken, amountETH, err)
}

func (r *Router) removeLiquidityETH(sender common.Address, p RemoveLiquidityETHParams) (*uint256.Int, *uint256.Int, error) {
	amountToken, amountETH, err := r.removeLiquidity(sender, p.Token, r.weth.Address(), p.Liquidity, p.AmountTokenMin, p.AmountETHMin, r.address)
	if err != nil {
		return nil, nil, err
	}
	if err := r.ledger.Transfer(p.Token, r.address, p.To, amountToken); err != nil {
		return nil, nil, err
	}
	if err := r.unwrapTo(p.To, amountETH); err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

// permit applies a signed share approval for the router.
func (r *Router) permit(sender, tokenA, tokenB common.Address, liquidity *uint256.Int, deadline uint64, pp PermitParams) error {
	if r.permits == nil {
		return fmt.Errorf("%w: permits are not enabled", uniswapv2.ErrForbidden)
	}
	p, err := r.pair(tokenA, tokenB)
	if err != nil {
		return err
	}
	value := liquidity
	if pp.ApproveMax {
		value = maxAllowance
	}
	return r.permits.Permit(p.Address(), sender, r.address, value, deadline, pp.Signature)
}

// RemoveLiquidityWithPermit is RemoveLiquidity preceded by a signed approval
// of the shares, so no prior allowance is needed.
func (r *Router) RemoveLiquidityWithPermit(sender common.Address, p RemoveLiquidityParams, pp PermitParams) (amountA, amountB *uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.permit(sender, p.TokenA, p.TokenB, p.Liquidity, p.Deadline, pp); err != nil {
			return err
		}
		amountA, amountB, err = r.removeLiquidity(sender, p.TokenA, p.TokenB, p.Liquidity, p.AmountAMin, p.AmountBMin, p.To)
		return err
	})
	return r.doneRemove("removeLiquidityWithPermit", amountA, amountB, err)
}

// RemoveLiquidityETHWithPermit is RemoveLiquidityETH preceded by a signed
// approval of the shares.
func (r *Router) RemoveLiquidityETHWithPermit(sender common.Address, p RemoveLiquidityETHParams, pp PermitParams) (amountToken, amountETH *uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.permit(sender, p.Token, r.weth.Address(), p.Liquidity, p.Deadline, pp); err != nil {
			return err
		}
		amountToken, amountETH, err = r.removeLiquidityETH(sender, p)
		return err
	})
	return r.doneRemove("removeLiquidityETHWithPermit", amountToken, amountETH, err)
}

func (r *Router) doneRemove(op string, amountA, amountB *uint256.Int, err error) (*uint256.Int, *uint256.Int, error) {
	if err != nil {
		r.logger.Debug("router call reverted", "op", op, "error", err)
		return nil, nil, err
	}
	r.logger.Debug("router call executed", "op", op, "amountA", amountA.Dec(), "amountB", amountB.Dec())
	return amountA, amountB, nil
}
