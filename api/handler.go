// Package api serves read-only pair data and quotes over HTTP.
package api

import (
	"math"
	"strconv"
	"strings"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/exchange"
	tokenregistry "github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// priceScale is the number of decimal places in reported prices.
const priceScale = 18

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Exchange is the part of the exchange the handlers read from.
type Exchange interface {
	State() *engine.State
	View(fn func(*exchange.Tx) error) error
}

// Handler serves the /v1 routes.
type Handler struct {
	exchange Exchange
	logger   Logger
}

func NewHandler(ex Exchange, logger Logger) *Handler {
	return &Handler{exchange: ex, logger: logger}
}

// Register mounts the routes on app.
func (h *Handler) Register(app *fiber.App) {
	v1 := app.Group("/v1")
	v1.Get("/pairs", h.Pairs())
	v1.Get("/pairs/:address", h.Pair())
	v1.Get("/amounts-out", h.AmountsOut())
	v1.Get("/amounts-in", h.AmountsIn())
	v1.Get("/route", h.Route())
}

// TokenInfo describes one side of a pair.
type TokenInfo struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol,omitempty"`
	Decimals uint8          `json:"decimals"`
	Reserve  *uint256.Int   `json:"reserve"`
	// Amount is Reserve in whole units.
	Amount string `json:"amount"`
}

// PairResponse is a pair with its reserves and spot prices.
type PairResponse struct {
	ID          uint64         `json:"id"`
	Address     common.Address `json:"address"`
	Token0      TokenInfo      `json:"token0"`
	Token1      TokenInfo      `json:"token1"`
	FeeBps      uint16         `json:"feeBps"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
	// Price0 is the price of token0 in token1, Price1 the inverse.
	Price0 string `json:"price0"`
	Price1 string `json:"price1"`

	BlockTimestampLast   uint32       `json:"blockTimestampLast,omitempty"`
	Price0CumulativeLast *uint256.Int `json:"price0CumulativeLast,omitempty"`
	Price1CumulativeLast *uint256.Int `json:"price1CumulativeLast,omitempty"`
	KLast                *uint256.Int `json:"kLast,omitempty"`
}

// PairsResponse is the body of GET /v1/pairs.
type PairsResponse struct {
	Height uint64         `json:"height"`
	Pairs  []PairResponse `json:"pairs"`
}

// AmountsResponse is the body of the quote routes.
type AmountsResponse struct {
	Path    []common.Address `json:"path"`
	Amounts []*uint256.Int   `json:"amounts"`
}

// RouteResponse is the body of GET /v1/route.
type RouteResponse struct {
	router.Route
	AmountIn *uint256.Int `json:"amountIn"`
}

func (h *Handler) indexed() (*stateops.Indexed, error) {
	view, err := stateops.Extract(h.exchange.State())
	if err != nil {
		h.logger.Error("failed to read exchange state", "err", err)
		return nil, ErrStateUnavailable
	}
	idx, err := stateops.Index(view)
	if err != nil {
		h.logger.Error("failed to index exchange state", "err", err)
		return nil, ErrStateUnavailable
	}
	return idx, nil
}

func (h *Handler) Pairs() fiber.Handler {
	return func(c fiber.Ctx) error {
		idx, err := h.indexed()
		if err != nil {
			return err
		}
		pools := idx.Pools.All()
		resp := PairsResponse{Height: idx.Block.Number, Pairs: make([]PairResponse, 0, len(pools))}
		for _, p := range pools {
			resp.Pairs = append(resp.Pairs, pairResponse(idx, p, false))
		}
		return c.JSON(resp)
	}
}

func (h *Handler) Pair() fiber.Handler {
	return func(c fiber.Ctx) error {
		addr := c.Params("address")
		if !common.IsHexAddress(addr) {
			return NewInvalidAddress("pair")
		}
		idx, err := h.indexed()
		if err != nil {
			return err
		}
		p, ok := idx.Pools.GetByAddress(common.HexToAddress(addr))
		if !ok {
			return ErrPairNotFound
		}
		return c.JSON(pairResponse(idx, p, true))
	}
}

func (h *Handler) AmountsOut() fiber.Handler {
	return func(c fiber.Ctx) error {
		amountIn, err := parseAmount(c.Query("amount_in"), "amount_in")
		if err != nil {
			return err
		}
		path, err := parsePath(c.Query("path"))
		if err != nil {
			return err
		}
		var amounts []*uint256.Int
		err = h.exchange.View(func(tx *exchange.Tx) error {
			amounts, err = tx.Router().GetAmountsOut(amountIn, path)
			return err
		})
		if err != nil {
			return h.quoteError(err)
		}
		return c.JSON(AmountsResponse{Path: path, Amounts: amounts})
	}
}

func (h *Handler) AmountsIn() fiber.Handler {
	return func(c fiber.Ctx) error {
		amountOut, err := parseAmount(c.Query("amount_out"), "amount_out")
		if err != nil {
			return err
		}
		path, err := parsePath(c.Query("path"))
		if err != nil {
			return err
		}
		var amounts []*uint256.Int
		err = h.exchange.View(func(tx *exchange.Tx) error {
			amounts, err = tx.Router().GetAmountsIn(amountOut, path)
			return err
		})
		if err != nil {
			return h.quoteError(err)
		}
		return c.JSON(AmountsResponse{Path: path, Amounts: amounts})
	}
}

func (h *Handler) Route() fiber.Handler {
	return func(c fiber.Ctx) error {
		tokenIn, err := parseAddress(c.Query("token_in"), "token_in")
		if err != nil {
			return err
		}
		tokenOut, err := parseAddress(c.Query("token_out"), "token_out")
		if err != nil {
			return err
		}
		amountIn, err := parseAmount(c.Query("amount_in"), "amount_in")
		if err != nil {
			return err
		}
		maxHops := 0
		if raw := c.Query("max_hops"); raw != "" {
			maxHops, err = strconv.Atoi(raw)
			if err != nil || maxHops < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid max_hops")
			}
		}

		var route router.Route
		err = h.exchange.View(func(tx *exchange.Tx) error {
			route, err = tx.Router().BestPathExactIn(amountIn, tokenIn, tokenOut, maxHops)
			return err
		})
		if err != nil {
			return h.quoteError(err)
		}
		h.logger.Debug("route computed", "in", tokenIn, "out", tokenOut, "hops", len(route.Pools), "amount_out", route.AmountOut)
		return c.JSON(RouteResponse{Route: route, AmountIn: amountIn})
	}
}

func pairResponse(idx *stateops.Indexed, p uniswapv2.Pool, detailed bool) PairResponse {
	t0, _ := idx.Tokens.GetByID(p.Token0)
	t1, _ := idx.Tokens.GetByID(p.Token1)
	amount0 := units(p.Reserve0, t0.Decimals)
	amount1 := units(p.Reserve1, t1.Decimals)

	resp := PairResponse{
		ID:          p.ID,
		Address:     p.Address,
		Token0:      tokenInfo(p.TokenAddress0, t0, p.Reserve0, amount0),
		Token1:      tokenInfo(p.TokenAddress1, t1, p.Reserve1, amount1),
		FeeBps:      p.FeeBps,
		TotalSupply: p.TotalSupply,
		Price0:      price(amount1, amount0),
		Price1:      price(amount0, amount1),
	}
	if detailed {
		resp.BlockTimestampLast = p.BlockTimestampLast
		resp.Price0CumulativeLast = p.Price0CumulativeLast
		resp.Price1CumulativeLast = p.Price1CumulativeLast
		resp.KLast = p.KLast
	}
	return resp
}

func tokenInfo(addr common.Address, t tokenregistry.Token, reserve *uint256.Int, amount decimal.Decimal) TokenInfo {
	return TokenInfo{Address: addr, Symbol: t.Symbol, Decimals: t.Decimals, Reserve: reserve, Amount: amount.String()}
}

// units converts a base-unit amount to whole units.
func units(v *uint256.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
}

// price is num/den rounded to priceScale places, or zero for an empty side.
func price(num, den decimal.Decimal) string {
	if den.IsZero() {
		return decimal.Zero.String()
	}
	return num.DivRound(den, priceScale).String()
}

func parseAmount(raw, field string) (*uint256.Int, error) {
	if raw == "" {
		return nil, NewAmountRequired(field)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil || v.IsZero() {
		return nil, NewInvalidAmount(field)
	}
	return v, nil
}

func parseAddress(raw, field string) (common.Address, error) {
	if raw == "" || !common.IsHexAddress(raw) {
		return common.Address{}, NewInvalidAddress(field)
	}
	return common.HexToAddress(raw), nil
}

func parsePath(raw string) ([]common.Address, error) {
	if raw == "" {
		return nil, ErrPathRequired
	}
	parts := strings.Split(raw, ",")
	if len(parts) > math.MaxUint8 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "path too long")
	}
	path := make([]common.Address, len(parts))
	for i, part := range parts {
		addr, err := parseAddress(strings.TrimSpace(part), "path")
		if err != nil {
			return nil, err
		}
		path[i] = addr
	}
	return path, nil
}
