package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/exchange"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// Executor runs units of work against the exchange.
type Executor interface {
	Execute(ctx context.Context, fn func(*exchange.Tx) error) error
}

// ApproveArgs sets Owner's allowance of Token for Spender.
type ApproveArgs struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

type AddLiquidityArgs struct {
	From           common.Address `json:"from"`
	TokenA         common.Address `json:"tokenA"`
	TokenB         common.Address `json:"tokenB"`
	AmountADesired *uint256.Int   `json:"amountADesired"`
	AmountBDesired *uint256.Int   `json:"amountBDesired"`
	AmountAMin     *uint256.Int   `json:"amountAMin,omitempty"`
	AmountBMin     *uint256.Int   `json:"amountBMin,omitempty"`
	To             common.Address `json:"to"`
	Deadline       uint64         `json:"deadline"`
}

type RemoveLiquidityArgs struct {
	From       common.Address `json:"from"`
	TokenA     common.Address `json:"tokenA"`
	TokenB     common.Address `json:"tokenB"`
	Liquidity  *uint256.Int   `json:"liquidity"`
	AmountAMin *uint256.Int   `json:"amountAMin,omitempty"`
	AmountBMin *uint256.Int   `json:"amountBMin,omitempty"`
	To         common.Address `json:"to"`
	Deadline   uint64         `json:"deadline"`
}

type ExactInArgs struct {
	From         common.Address   `json:"from"`
	AmountIn     *uint256.Int     `json:"amountIn"`
	AmountOutMin *uint256.Int     `json:"amountOutMin,omitempty"`
	Path         []common.Address `json:"path"`
	To           common.Address   `json:"to"`
	Deadline     uint64           `json:"deadline"`
}

type ExactOutArgs struct {
	From        common.Address   `json:"from"`
	AmountOut   *uint256.Int     `json:"amountOut"`
	AmountInMax *uint256.Int     `json:"amountInMax"`
	Path        []common.Address `json:"path"`
	To          common.Address   `json:"to"`
	Deadline    uint64           `json:"deadline"`
}

// Withdrawn is the reply of amm_removeLiquidity.
type Withdrawn struct {
	AmountA *uint256.Int `json:"amountA"`
	AmountB *uint256.Int `json:"amountB"`
}

// TradeAPI adds the state-changing methods to the amm namespace. Every call
// is one unit of work: it commits completely or not at all. Callers name the
// acting account in From; there is no signature check.
type TradeAPI struct {
	exchange Executor
	logger   Logger
}

func NewTradeAPI(ex Executor, logger Logger) *TradeAPI {
	return &TradeAPI{exchange: ex, logger: logger}
}

// RegisterTrading adds api to srv under Namespace, next to the read methods.
func RegisterTrading(srv *rpc.Server, api *TradeAPI) error {
	if err := srv.RegisterName(Namespace, api); err != nil {
		return fmt.Errorf("failed to register %s trading API: %w", Namespace, err)
	}
	return nil
}

func (api *TradeAPI) execute(ctx context.Context, method string, fn func(*exchange.Tx) error) error {
	if err := api.exchange.Execute(ctx, fn); err != nil {
		api.logger.Debug("trade reverted", "method", method, "error", err)
		return err
	}
	return nil
}

// Approve sets an allowance and returns it.
func (api *TradeAPI) Approve(ctx context.Context, args ApproveArgs) (*uint256.Int, error) {
	if args.Amount == nil {
		return nil, errors.New("amount is required")
	}
	err := api.execute(ctx, "approve", func(tx *exchange.Tx) error {
		return tx.Ledger().Approve(args.Token, args.Owner, args.Spender, args.Amount)
	})
	if err != nil {
		return nil, err
	}
	return args.Amount, nil
}

// AddLiquidity deposits into the pair for TokenA and TokenB, creating it if
// needed.
func (api *TradeAPI) AddLiquidity(ctx context.Context, args AddLiquidityArgs) (*router.LiquidityResult, error) {
	if args.AmountADesired == nil || args.AmountBDesired == nil {
		return nil, errors.New("amountADesired and amountBDesired are required")
	}
	var res router.LiquidityResult
	err := api.execute(ctx, "addLiquidity", func(tx *exchange.Tx) error {
		var err error
		res, err = tx.Router().AddLiquidity(args.From, router.AddLiquidityParams{
			TokenA:         args.TokenA,
			TokenB:         args.TokenB,
			AmountADesired: args.AmountADesired,
			AmountBDesired: args.AmountBDesired,
			AmountAMin:     args.AmountAMin,
			AmountBMin:     args.AmountBMin,
			To:             args.To,
			Deadline:       args.Deadline,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveLiquidity burns Liquidity shares of the pair and pays out both tokens.
func (api *TradeAPI) RemoveLiquidity(ctx context.Context, args RemoveLiquidityArgs) (*Withdrawn, error) {
	if args.Liquidity == nil {
		return nil, errors.New("liquidity is required")
	}
	var out Withdrawn
	err := api.execute(ctx, "removeLiquidity", func(tx *exchange.Tx) error {
		var err error
		out.AmountA, out.AmountB, err = tx.Router().RemoveLiquidity(args.From, router.RemoveLiquidityParams{
			TokenA:     args.TokenA,
			TokenB:     args.TokenB,
			Liquidity:  args.Liquidity,
			AmountAMin: args.AmountAMin,
			AmountBMin: args.AmountBMin,
			To:         args.To,
			Deadline:   args.Deadline,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SwapExactTokensForTokens trades exactly AmountIn along Path.
func (api *TradeAPI) SwapExactTokensForTokens(ctx context.Context, args ExactInArgs) ([]*uint256.Int, error) {
	if args.AmountIn == nil {
		return nil, errors.New("amountIn is required")
	}
	var amounts []*uint256.Int
	err := api.execute(ctx, "swapExactTokensForTokens", func(tx *exchange.Tx) error {
		var err error
		amounts, err = tx.Router().SwapExactTokensForTokens(args.From, router.ExactInParams{
			AmountIn:     args.AmountIn,
			AmountOutMin: args.AmountOutMin,
			Path:         args.Path,
			To:           args.To,
			Deadline:     args.Deadline,
		})
		return err
	})
	return amounts, err
}

// SwapTokensForExactTokens buys exactly AmountOut along Path for at most
// AmountInMax.
func (api *TradeAPI) SwapTokensForExactTokens(ctx context.Context, args ExactOutArgs) ([]*uint256.Int, error) {
	if args.AmountOut == nil || args.AmountInMax == nil {
		return nil, errors.New("amountOut and amountInMax are required")
	}
	var amounts []*uint256.Int
	err := api.execute(ctx, "swapTokensForExactTokens", func(tx *exchange.Tx) error {
		var err error
		amounts, err = tx.Router().SwapTokensForExactTokens(args.From, router.ExactOutParams{
			AmountOut:   args.AmountOut,
			AmountInMax: args.AmountInMax,
			Path:        args.Path,
			To:          args.To,
			Deadline:    args.Deadline,
		})
		return err
	})
	return amounts, err
}
