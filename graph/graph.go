// Package graph searches the token/pool graph for the exact-input route that
// yields the most output.
package graph

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/bitset"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/defistate-amm-go/protocols/uniswapv2/calculator"
	uniswapv2indexer "github.com/defistate/defistate-amm-go/protocols/uniswapv2/indexer"
	"github.com/holiman/uint256"
)

// ErrUnknownToken is returned when a searched token has no pools.
var ErrUnknownToken = errors.New("graph: token not in graph")

// TokenPoolPath is one hop of a route.
type TokenPoolPath struct {
	TokenInID  uint64 `json:"tokenIn"`
	TokenOutID uint64 `json:"tokenOut"`
	PoolID     uint64 `json:"pool"`
}

// GetAmountOutFunc quotes one pool in a given direction.
type GetAmountOutFunc func(amountIn *uint256.Int, tokenInID, tokenOutID uint64) (*uint256.Int, error)

// searchState is the working set of one Bellman-Ford style search.
type searchState struct {
	current int
	paths   [][]TokenPoolPath // vertex index -> best path found so far
	costs   []uint256.Int     // vertex index -> best amount reachable
	known   []bitset.BitSet   // vertex index -> vertices on its best path
	best    uint256.Int
}

// Graph is an immutable search structure over one state snapshot. It is safe
// for concurrent searches.
type Graph struct {
	tokenPool    *tokenpoolregistry.TokenPoolRegistryView
	tokenToIndex map[uint64]int
	quoters      []GetAmountOutFunc // pool index -> quoter, nil when unusable
}

// NewGraph prepares a graph from the adjacency view and the pool views it
// references. Pools without liquidity are left out of the search.
func NewGraph(tokenPool *tokenpoolregistry.TokenPoolRegistryView, pools []uniswapv2.Pool) (*Graph, error) {
	if tokenPool == nil {
		return nil, errors.New("graph: nil token pool view")
	}
	tokenToIndex := make(map[uint64]int, len(tokenPool.Tokens))
	for i, id := range tokenPool.Tokens {
		tokenToIndex[id] = i
	}

	indexed := uniswapv2indexer.NewIndexableUniswapV2System(pools)
	quoters := make([]GetAmountOutFunc, len(tokenPool.Pools))
	for i, poolID := range tokenPool.Pools {
		pool, ok := indexed.GetByID(poolID)
		if !ok {
			return nil, fmt.Errorf("graph: pool %d is linked but has no view", poolID)
		}
		if pool.Reserve0 == nil || pool.Reserve1 == nil || pool.Reserve0.IsZero() || pool.Reserve1.IsZero() {
			continue
		}
		quoters[i] = func(amountIn *uint256.Int, tokenInID, tokenOutID uint64) (*uint256.Int, error) {
			return uniswapv2calculator.GetAmountOut(amountIn, tokenInID, tokenOutID, pool)
		}
	}

	return &Graph{tokenPool: tokenPool, tokenToIndex: tokenToIndex, quoters: quoters}, nil
}

// FindBestSwapPath returns the route from tokenInID to tokenOutID with the
// largest output for amountIn, using at most runs relaxation rounds (and so
// at most runs hops). A nil path with a nil error means no route exists.
func (g *Graph) FindBestSwapPath(tokenInID, tokenOutID uint64, amountIn *uint256.Int, runs int) ([]TokenPoolPath, *uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, uniswapv2.ErrInsufficientInputAmount
	}
	start, ok := g.tokenToIndex[tokenInID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownToken, tokenInID)
	}
	end, ok := g.tokenToIndex[tokenOutID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownToken, tokenOutID)
	}

	n := len(g.tokenPool.Tokens)
	s := &searchState{
		paths: make([][]TokenPoolPath, n),
		costs: make([]uint256.Int, n),
		known: make([]bitset.BitSet, n),
	}
	for i := range s.known {
		s.known[i] = bitset.NewBitSet(uint64(n))
	}
	s.costs[start].Set(amountIn)

	// Vertices improved earlier in a round may be expanded again in the same
	// round; the path length check keeps routes within runs hops.
	for round := 0; round < runs; round++ {
		for v := 0; v < n; v++ {
			if s.costs[v].IsZero() || len(s.paths[v]) >= runs {
				continue
			}
			s.current = v
			if err := g.relax(s); err != nil {
				return nil, nil, err
			}
		}
	}

	if s.paths[end] == nil {
		return nil, nil, nil
	}
	return s.paths[end], s.costs[end].Clone(), nil
}

// relax tries every edge leaving the current vertex and keeps improvements.
func (g *Graph) relax(s *searchState) error {
	cur := s.current
	known := s.known[cur]
	if known.IsSet(uint64(cur)) {
		return errors.New("graph: cycle detected in path history")
	}
	amount := &s.costs[cur]
	tokenID := g.tokenPool.Tokens[cur]

	for _, edge := range g.tokenPool.Adjacency[cur] {
		target := g.tokenPool.EdgeTargets[edge]
		if known.IsSet(uint64(target)) {
			continue
		}
		targetID := g.tokenPool.Tokens[target]

		bestPool := -1
		s.best.Clear()
		for _, poolIndex := range g.tokenPool.EdgePools[edge] {
			quote := g.quoters[poolIndex]
			if quote == nil {
				continue
			}
			out, err := quote(amount, tokenID, targetID)
			if err == nil && out.Gt(&s.best) {
				s.best.Set(out)
				bestPool = poolIndex
			}
		}
		if bestPool == -1 || !s.best.Gt(&s.costs[target]) {
			continue
		}

		s.costs[target].Set(&s.best)
		path := make([]TokenPoolPath, len(s.paths[cur])+1)
		copy(path, s.paths[cur])
		path[len(path)-1] = TokenPoolPath{TokenInID: tokenID, TokenOutID: targetID, PoolID: g.tokenPool.Pools[bestPool]}
		s.paths[target] = path
		s.known[target].SetFrom(known)
		s.known[target].Set(uint64(cur))
	}
	return nil
}
