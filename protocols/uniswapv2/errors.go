package uniswapv2

import "errors"

// Input validation.
var (
	ErrInsufficientAmount       = errors.New("uniswapv2: insufficient amount")
	ErrInsufficientInputAmount  = errors.New("uniswapv2: insufficient input amount")
	ErrInsufficientOutputAmount = errors.New("uniswapv2: insufficient output amount")
	ErrInvalidPath              = errors.New("uniswapv2: invalid path")
	ErrInsufficientAAmount      = errors.New("uniswapv2: insufficient A amount")
	ErrInsufficientBAmount      = errors.New("uniswapv2: insufficient B amount")
	ErrInvalidRecipient         = errors.New("uniswapv2: invalid recipient")
)

// Liquidity state.
var (
	ErrInsufficientLiquidity       = errors.New("uniswapv2: insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("uniswapv2: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("uniswapv2: insufficient liquidity burned")
)

var (
	// ErrInvariantViolated means the post-swap balances failed the k check.
	ErrInvariantViolated    = errors.New("uniswapv2: k invariant violated")
	ErrReentrant            = errors.New("uniswapv2: locked")
	ErrExpired              = errors.New("uniswapv2: expired")
	ErrExcessiveInputAmount = errors.New("uniswapv2: excessive input amount")
	ErrForbidden            = errors.New("uniswapv2: forbidden")
	ErrOverflow             = errors.New("uniswapv2: overflow")
)

// Pair registry.
var (
	ErrIdenticalAddresses = errors.New("uniswapv2: identical addresses")
	ErrZeroAddress        = errors.New("uniswapv2: zero address")
	ErrPairExists         = errors.New("uniswapv2: pair exists")
	ErrPairNotFound       = errors.New("uniswapv2: pair not found")
)
