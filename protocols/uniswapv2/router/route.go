package router

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/graph"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrNoRoute is returned when no path of the allowed length connects two tokens.
var ErrNoRoute = errors.New("router: no route")

// DefaultMaxHops bounds route searches when the caller passes zero.
const DefaultMaxHops = 3

// Route is the best exact-input path found for a trade. Path can be passed
// straight to the swap entry points.
type Route struct {
	Path      []common.Address `json:"path"`
	Pools     []common.Address `json:"pools"`
	AmountOut *uint256.Int     `json:"amountOut"`
}

// BestPathExactIn searches every pair for the path from tokenIn to tokenOut
// with the largest output for amountIn, using at most maxHops pairs.
func (r *Router) BestPathExactIn(amountIn *uint256.Int, tokenIn, tokenOut common.Address, maxHops int) (Route, error) {
	if tokenIn == tokenOut {
		return Route{}, fmt.Errorf("%w: %s", uniswapv2.ErrIdenticalAddresses, tokenIn.Hex())
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	pools := r.factory.Pools()
	ids := make(map[common.Address]uint64)
	addrs := make(map[uint64]common.Address)
	byID := make(map[uint64]uniswapv2.Pool, len(pools))
	for _, p := range pools {
		ids[p.TokenAddress0], addrs[p.Token0] = p.Token0, p.TokenAddress0
		ids[p.TokenAddress1], addrs[p.Token1] = p.Token1, p.TokenAddress1
		byID[p.ID] = p
	}
	inID, ok := ids[tokenIn]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s has no pairs", ErrNoRoute, tokenIn.Hex())
	}
	outID, ok := ids[tokenOut]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s has no pairs", ErrNoRoute, tokenOut.Hex())
	}

	g, err := graph.NewGraph(r.topologyView(pools), pools)
	if err != nil {
		return Route{}, err
	}
	hops, amountOut, err := g.FindBestSwapPath(inID, outID, amountIn, maxHops)
	if err != nil {
		return Route{}, err
	}
	if hops == nil {
		return Route{}, fmt.Errorf("%w: %s -> %s within %d hops", ErrNoRoute, tokenIn.Hex(), tokenOut.Hex(), maxHops)
	}

	route := Route{Path: []common.Address{tokenIn}, AmountOut: amountOut}
	for _, hop := range hops {
		route.Path = append(route.Path, addrs[hop.TokenOutID])
		route.Pools = append(route.Pools, byID[hop.PoolID].Address)
	}
	return route, nil
}

func (r *Router) topologyView(pools []uniswapv2.Pool) *tokenpoolregistry.TokenPoolRegistryView {
	if r.topology != nil {
		if view := r.topology(); view != nil {
			return view
		}
	}
	system := tokenpoolregistry.NewTokenPoolSystem()
	for _, p := range pools {
		system.AddPool([]uint64{p.Token0, p.Token1}, p.ID)
	}
	return system.View()
}
