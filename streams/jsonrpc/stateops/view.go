package stateops

import (
	"fmt"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/graph"
	poolregistry "github.com/defistate/defistate-amm-go/protocols/poolregistry"
	poolregistryindexer "github.com/defistate/defistate-amm-go/protocols/poolregistry/indexer"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	tokenregistry "github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	tokenregistryindexer "github.com/defistate/defistate-amm-go/protocols/tokenregistry/indexer"
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	uniswapv2indexer "github.com/defistate/defistate-amm-go/protocols/uniswapv2/indexer"
)

// View is a snapshot with its protocol data pulled out by schema.
type View struct {
	Block        engine.BlockSummary
	Tokens       []tokenregistry.Token
	PoolRegistry poolregistry.PoolRegistry
	TokenPool    *tokenpoolregistry.TokenPoolRegistryView
	Pools        []uniswapv2.Pool
}

// Extract pulls the typed protocol data out of state. Every schema must be
// present exactly once.
func Extract(state *engine.State) (*View, error) {
	if state == nil {
		return nil, fmt.Errorf("stateops: nil state")
	}
	v := &View{Block: state.Block}
	var haveTokens, haveRegistry, havePools bool
	for id, protocol := range state.Protocols {
		if protocol.Error != "" {
			return nil, fmt.Errorf("stateops: protocol %s errored at %d: %s", id, state.Block.Number, protocol.Error)
		}
		switch protocol.Schema {
		case tokenregistry.Schema:
			if haveTokens {
				return nil, fmt.Errorf("stateops: multiple token protocol data found")
			}
			v.Tokens, haveTokens = protocol.Data.([]tokenregistry.Token)
		case poolregistry.Schema:
			if haveRegistry {
				return nil, fmt.Errorf("stateops: multiple pool registry protocol data found")
			}
			v.PoolRegistry, haveRegistry = protocol.Data.(poolregistry.PoolRegistry)
		case tokenpoolregistry.Schema:
			if v.TokenPool != nil {
				return nil, fmt.Errorf("stateops: multiple graph data found")
			}
			v.TokenPool, _ = protocol.Data.(*tokenpoolregistry.TokenPoolRegistryView)
		case uniswapv2.Schema:
			pools, ok := protocol.Data.([]uniswapv2.Pool)
			if !ok {
				return nil, fmt.Errorf("stateops: protocol %s carries %T", id, protocol.Data)
			}
			v.Pools = append(v.Pools, pools...)
			havePools = true
		}
	}

	switch {
	case !haveTokens:
		return nil, fmt.Errorf("stateops: no token data at height %d", state.Block.Number)
	case !haveRegistry:
		return nil, fmt.Errorf("stateops: no pool registry data at height %d", state.Block.Number)
	case v.TokenPool == nil:
		return nil, fmt.Errorf("stateops: no token pool graph at height %d", state.Block.Number)
	case !havePools:
		return nil, fmt.Errorf("stateops: no pool data at height %d", state.Block.Number)
	}
	return v, nil
}

// Indexed is a View with lookup indexes and a route search graph.
type Indexed struct {
	Block        engine.BlockSummary
	Tokens       tokenregistryindexer.IndexedTokenSystem
	PoolRegistry poolregistryindexer.IndexedPoolRegistry
	Pools        uniswapv2indexer.IndexedUniswapV2
	Graph        *graph.Graph
}

// Index builds the lookup indexes and the search graph for v.
func Index(v *View) (*Indexed, error) {
	g, err := graph.NewGraph(v.TokenPool, v.Pools)
	if err != nil {
		return nil, fmt.Errorf("stateops: graph: %w", err)
	}
	return &Indexed{
		Block:        v.Block,
		Tokens:       tokenregistryindexer.New().Index(v.Tokens),
		PoolRegistry: poolregistryindexer.New().Index(v.PoolRegistry),
		Pools:        uniswapv2indexer.New().Index(v.Pools),
		Graph:        g,
	}, nil
}
