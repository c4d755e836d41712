package api

import (
	"errors"

	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/router"
	"github.com/gofiber/fiber/v3"
)

// ErrPairNotFound is returned for an address that is not a pair.
var ErrPairNotFound = fiber.NewError(fiber.StatusNotFound, "pair not found")

// ErrNoRoute is returned when no path connects the requested tokens.
var ErrNoRoute = fiber.NewError(fiber.StatusNotFound, "no route between tokens")

// ErrPathRequired is returned when the path parameter is missing.
var ErrPathRequired = fiber.NewError(fiber.StatusBadRequest, "path is required")

// ErrStateUnavailable is returned while the exchange snapshot cannot be read.
var ErrStateUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "state unavailable")

// NewAmountRequired returns a 400 Bad Request for a missing amount field.
func NewAmountRequired(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" is required")
}

// NewInvalidAmount returns a 400 Bad Request for an amount that is not a
// positive base-10 integer.
func NewInvalidAmount(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field)
}

// NewInvalidAddress returns a 400 Bad Request for an invalid address format.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// quoteError maps router failures to responses.
func (h *Handler) quoteError(err error) error {
	switch {
	case errors.Is(err, uniswapv2.ErrPairNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, router.ErrNoRoute):
		return ErrNoRoute
	case errors.Is(err, uniswapv2.ErrInvalidPath),
		errors.Is(err, uniswapv2.ErrIdenticalAddresses),
		errors.Is(err, uniswapv2.ErrInsufficientAmount),
		errors.Is(err, uniswapv2.ErrInsufficientInputAmount),
		errors.Is(err, uniswapv2.ErrInsufficientOutputAmount),
		errors.Is(err, uniswapv2.ErrInsufficientLiquidity),
		errors.Is(err, uniswapv2.ErrOverflow):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("quote failed", "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "quote failed")
	}
}
