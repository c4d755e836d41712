package router

import (
	"fmt"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ExactInParams describes a trade of a fixed input for at least AmountOutMin.
// For native-input swaps AmountIn is the native value sent.
type ExactInParams struct {
	AmountIn     *uint256.Int
	AmountOutMin *uint256.Int
	Path         []common.Address
	To           common.Address
	Deadline     uint64
}

// ExactOutParams describes a trade for a fixed output costing at most AmountInMax.
// For native-input swaps AmountInMax is the native value the caller offers;
// only the amount actually needed is taken.
type ExactOutParams struct {
	AmountOut   *uint256.Int
	AmountInMax *uint256.Int
	Path        []common.Address
	To          common.Address
	Deadline    uint64
}

func minOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func checkOutputMin(amounts []*uint256.Int, min *uint256.Int) error {
	out := amounts[len(amounts)-1]
	if out.Lt(minOrZero(min)) {
		return fmt.Errorf("%w: %s below minimum %s", uniswapv2.ErrInsufficientOutputAmount, out.Dec(), min.Dec())
	}
	return nil
}

func checkInputMax(amounts []*uint256.Int, max *uint256.Int) error {
	if max == nil {
		return fmt.Errorf("%w: no maximum input given", uniswapv2.ErrExcessiveInputAmount)
	}
	if amounts[0].Gt(max) {
		return fmt.Errorf("%w: %s above maximum %s", uniswapv2.ErrExcessiveInputAmount, amounts[0].Dec(), max.Dec())
	}
	return nil
}

// swap executes a quoted route. The input must already sit in the first pair.
// Intermediate outputs go straight to the next pair; the last to to.
func (r *Router) swap(amounts []*uint256.Int, path []common.Address, to common.Address) error {
	for i := 0; i < len(path)-1; i++ {
		input, output := path[i], path[i+1]
		p, err := r.pair(input, output)
		if err != nil {
			return err
		}
		amount0Out, amount1Out := new(uint256.Int), amounts[i+1]
		if output == p.Token0() {
			amount0Out, amount1Out = amounts[i+1], new(uint256.Int)
		}
		recipient := to
		if i < len(path)-2 {
			next, err := r.pair(output, path[i+2])
			if err != nil {
				return err
			}
			recipient = next.Address()
		}
		if err := p.Swap(r.address, amount0Out, amount1Out, recipient, nil); err != nil {
			return fmt.Errorf("hop %d %s->%s: %w", i, input.Hex(), output.Hex(), err)
		}
	}
	return nil
}

// pullInto moves the route input from sender into the first pair.
func (r *Router) pullInto(sender common.Address, path []common.Address, amount *uint256.Int) error {
	first, err := r.pair(path[0], path[1])
	if err != nil {
		return err
	}
	return r.ledger.TransferFrom(path[0], r.address, sender, first.Address(), amount)
}

// wrapInto takes amount of sender's native currency, wraps it and deposits
// the wrapped asset into the first pair of path.
func (r *Router) wrapInto(sender common.Address, path []common.Address, amount *uint256.Int) error {
	first, err := r.pair(path[0], path[1])
	if err != nil {
		return err
	}
	if err := r.ledger.Transfer(r.nativeAsset, sender, r.address, amount); err != nil {
		return err
	}
	if err := r.weth.Deposit(r.address, amount); err != nil {
		return err
	}
	return r.ledger.Transfer(r.weth.Address(), r.address, first.Address(), amount)
}

// unwrapTo redeems wrapped currency held by the router and pays it out natively.
func (r *Router) unwrapTo(to common.Address, amount *uint256.Int) error {
	if err := r.weth.Withdraw(r.address, amount); err != nil {
		return err
	}
	return r.ledger.Transfer(r.nativeAsset, r.address, to, amount)
}

func (r *Router) requireFirst(path []common.Address, token common.Address) error {
	if len(path) < 2 || path[0] != token {
		return fmt.Errorf("%w: path must start with %s", uniswapv2.ErrInvalidPath, token.Hex())
	}
	return nil
}

func (r *Router) requireLast(path []common.Address, token common.Address) error {
	if len(path) < 2 || path[len(path)-1] != token {
		return fmt.Errorf("%w: path must end with %s", uniswapv2.ErrInvalidPath, token.Hex())
	}
	return nil
}

// SwapExactTokensForTokens sells exactly AmountIn of Path[0].
func (r *Router) SwapExactTokensForTokens(sender common.Address, p ExactInParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if amounts, err = r.GetAmountsOut(p.AmountIn, p.Path); err != nil {
			return err
		}
		if err := checkOutputMin(amounts, p.AmountOutMin); err != nil {
			return err
		}
		if err := r.pullInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		return r.swap(amounts, p.Path, p.To)
	})
	return r.done("swapExactTokensForTokens", amounts, err)
}

// SwapTokensForExactTokens buys exactly AmountOut of the last path token.
func (r *Router) SwapTokensForExactTokens(sender common.Address, p ExactOutParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if amounts, err = r.GetAmountsIn(p.AmountOut, p.Path); err != nil {
			return err
		}
		if err := checkInputMax(amounts, p.AmountInMax); err != nil {
			return err
		}
		if err := r.pullInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		return r.swap(amounts, p.Path, p.To)
	})
	return r.done("swapTokensForExactTokens", amounts, err)
}

// SwapExactETHForTokens sells exactly AmountIn of native currency. Path must
// start with WETH.
func (r *Router) SwapExactETHForTokens(sender common.Address, p ExactInParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.requireFirst(p.Path, r.weth.Address()); err != nil {
			return err
		}
		if amounts, err = r.GetAmountsOut(p.AmountIn, p.Path); err != nil {
			return err
		}
		if err := checkOutputMin(amounts, p.AmountOutMin); err != nil {
			return err
		}
		if err := r.wrapInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		return r.swap(amounts, p.Path, p.To)
	})
	return r.done("swapExactETHForTokens", amounts, err)
}

// SwapTokensForExactETH buys exactly AmountOut of native currency. Path must
// end with WETH.
func (r *Router) SwapTokensForExactETH(sender common.Address, p ExactOutParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.requireLast(p.Path, r.weth.Address()); err != nil {
			return err
		}
		if amounts, err = r.GetAmountsIn(p.AmountOut, p.Path); err != nil {
			return err
		}
		if err := checkInputMax(amounts, p.AmountInMax); err != nil {
			return err
		}
		if err := r.pullInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		if err := r.swap(amounts, p.Path, r.address); err != nil {
			return err
		}
		return r.unwrapTo(p.To, amounts[len(amounts)-1])
	})
	return r.done("swapTokensForExactETH", amounts, err)
}

// SwapExactTokensForETH sells exactly AmountIn for native currency. Path must
// end with WETH.
func (r *Router) SwapExactTokensForETH(sender common.Address, p ExactInParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.requireLast(p.Path, r.weth.Address()); err != nil {
			return err
		}
		if amounts, err = r.GetAmountsOut(p.AmountIn, p.Path); err != nil {
			return err
		}
		if err := checkOutputMin(amounts, p.AmountOutMin); err != nil {
			return err
		}
		if err := r.pullInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		if err := r.swap(amounts, p.Path, r.address); err != nil {
			return err
		}
		return r.unwrapTo(p.To, amounts[len(amounts)-1])
	})
	return r.done("swapExactTokensForETH", amounts, err)
}

// SwapETHForExactTokens buys exactly AmountOut using native currency, taking
// only the required input. Path must start with WETH.
func (r *Router) SwapETHForExactTokens(sender common.Address, p ExactOutParams) (amounts []*uint256.Int, err error) {
	err = r.ensure(p.Deadline, func() error {
		if err := r.requireFirst(p.Path, r.weth.Address()); err != nil {
			return err
		}
		if amounts, err = r.GetAmountsIn(p.AmountOut, p.Path); err != nil {
			return err
		}
		if err := checkInputMax(amounts, p.AmountInMax); err != nil {
			return err
		}
		if err := r.wrapInto(sender, p.Path, amounts[0]); err != nil {
			return err
		}
		return r.swap(amounts, p.Path, p.To)
	})
	return r.done("swapETHForExactTokens", amounts, err)
}

func (r *Router) done(op string, amounts []*uint256.Int, err error) ([]*uint256.Int, error) {
	if err != nil {
		r.logger.Debug("router call reverted", "op", op, "error", err)
		return nil, err
	}
	r.logger.Debug("router call executed", "op", op, "in", amounts[0].Dec(), "out", amounts[len(amounts)-1].Dec(), "hops", len(amounts)-1)
	return amounts, nil
}
