// Package tokenpoolregistry maintains the token/pool adjacency graph used for
// route discovery. Tokens are vertices; every pool contributes a directed edge
// in each direction between each pair of its tokens. Edges between the same
// two tokens are shared and list every pool that connects them.
//
// Pools are never removed from an exchange, so the graph is append-only.
package tokenpoolregistry

// Schema identifies the TokenPoolRegistryView layout on the state stream.
const Schema = "defistate/token-pool-registry/TokenPoolRegistryView@v2"

// TokenPoolRegistryView is a complete snapshot of the graph, laid out for
// consumers that run their own traversals:
//
//	Tokens[i]          token id of vertex i
//	Pools[k]           pool id of pool index k
//	Adjacency[i]       outgoing edge indexes of vertex i
//	EdgeTargets[e]     target vertex of edge e
//	EdgePools[e]       pool indexes that realize edge e
type TokenPoolRegistryView struct {
	Tokens      []uint64 `json:"tokens"`
	Pools       []uint64 `json:"pools"`
	Adjacency   [][]int  `json:"adjacency"`
	EdgeTargets []int    `json:"edgeTargets"`
	EdgePools   [][]int  `json:"edgePools"`
}

// Clone returns a deep copy of the view.
func (v *TokenPoolRegistryView) Clone() *TokenPoolRegistryView {
	if v == nil {
		return nil
	}
	return &TokenPoolRegistryView{
		Tokens:      append([]uint64(nil), v.Tokens...),
		Pools:       append([]uint64(nil), v.Pools...),
		Adjacency:   cloneNested(v.Adjacency),
		EdgeTargets: append([]int(nil), v.EdgeTargets...),
		EdgePools:   cloneNested(v.EdgePools),
	}
}

// size reports the number of vertices, pools, edges and edge/pool links.
// Because the graph only grows, two views of the same graph with equal sizes
// are identical.
func (v *TokenPoolRegistryView) size() [4]int {
	if v == nil {
		return [4]int{}
	}
	links := 0
	for _, pools := range v.EdgePools {
		links += len(pools)
	}
	return [4]int{len(v.Tokens), len(v.Pools), len(v.EdgeTargets), links}
}

func cloneNested(in [][]int) [][]int {
	if in == nil {
		return nil
	}
	out := make([][]int, len(in))
	for i, inner := range in {
		out[i] = append([]int(nil), inner...)
	}
	return out
}

// TokenPoolRegistry is the graph itself. It is not safe for concurrent use.
type TokenPoolRegistry struct {
	tokenToIndex map[uint64]int
	poolToIndex  map[uint64]int

	tokens      []uint64
	pools       []uint64
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

// NewTokenPoolRegistry returns an empty graph.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[uint64]int),
		poolToIndex:  make(map[uint64]int),
	}
}

// NewTokenPoolRegistryFromView rebuilds a graph from a snapshot. The view is copied.
func NewTokenPoolRegistryFromView(view *TokenPoolRegistryView) *TokenPoolRegistry {
	v := view.Clone()
	if v == nil {
		return NewTokenPoolRegistry()
	}
	r := &TokenPoolRegistry{
		tokenToIndex: make(map[uint64]int, len(v.Tokens)),
		poolToIndex:  make(map[uint64]int, len(v.Pools)),
		tokens:       v.Tokens,
		pools:        v.Pools,
		adjacency:    v.Adjacency,
		edgeTargets:  v.EdgeTargets,
		edgePools:    v.EdgePools,
	}
	for i, id := range v.Tokens {
		r.tokenToIndex[id] = i
	}
	for i, id := range v.Pools {
		r.poolToIndex[id] = i
	}
	return r
}

func (r *TokenPoolRegistry) vertex(tokenID uint64) int {
	idx, ok := r.tokenToIndex[tokenID]
	if !ok {
		idx = len(r.tokens)
		r.tokens = append(r.tokens, tokenID)
		r.tokenToIndex[tokenID] = idx
		r.adjacency = append(r.adjacency, nil)
	}
	return idx
}

func (r *TokenPoolRegistry) poolIndex(poolID uint64) int {
	idx, ok := r.poolToIndex[poolID]
	if !ok {
		idx = len(r.pools)
		r.pools = append(r.pools, poolID)
		r.poolToIndex[poolID] = idx
	}
	return idx
}

// addEdge links from -> to through the pool, reusing an existing edge.
func (r *TokenPoolRegistry) addEdge(from, to, pool int) {
	for _, e := range r.adjacency[from] {
		if r.edgeTargets[e] != to {
			continue
		}
		for _, p := range r.edgePools[e] {
			if p == pool {
				return
			}
		}
		r.edgePools[e] = append(r.edgePools[e], pool)
		return
	}
	e := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, to)
	r.edgePools = append(r.edgePools, []int{pool})
	r.adjacency[from] = append(r.adjacency[from], e)
}

// add connects every pair of tokenIDs through poolID. Adding the same pool
// twice is a no-op.
func (r *TokenPoolRegistry) add(tokenIDs []uint64, poolID uint64) {
	pool := r.poolIndex(poolID)
	vertices := make([]int, len(tokenIDs))
	for i, id := range tokenIDs {
		vertices[i] = r.vertex(id)
	}
	for i := 0; i < len(vertices); i++ {
		for j := i + 1; j < len(vertices); j++ {
			r.addEdge(vertices[i], vertices[j], pool)
			r.addEdge(vertices[j], vertices[i], pool)
		}
	}
}

// poolsForToken returns the ids of every pool touching tokenID in the order
// they were first linked, or nil.
func (r *TokenPoolRegistry) poolsForToken(tokenID uint64) []uint64 {
	idx, ok := r.tokenToIndex[tokenID]
	if !ok {
		return nil
	}
	var out []uint64
	seen := make(map[int]struct{})
	for _, e := range r.adjacency[idx] {
		for _, p := range r.edgePools[e] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, r.pools[p])
		}
	}
	return out
}

// poolsBetween returns the pools that trade tokenA directly against tokenB.
func (r *TokenPoolRegistry) poolsBetween(tokenA, tokenB uint64) []uint64 {
	from, ok := r.tokenToIndex[tokenA]
	if !ok {
		return nil
	}
	to, ok := r.tokenToIndex[tokenB]
	if !ok {
		return nil
	}
	for _, e := range r.adjacency[from] {
		if r.edgeTargets[e] != to {
			continue
		}
		out := make([]uint64, len(r.edgePools[e]))
		for i, p := range r.edgePools[e] {
			out[i] = r.pools[p]
		}
		return out
	}
	return nil
}

func (r *TokenPoolRegistry) view() *TokenPoolRegistryView {
	v := &TokenPoolRegistryView{
		Tokens:      r.tokens,
		Pools:       r.pools,
		Adjacency:   r.adjacency,
		EdgeTargets: r.edgeTargets,
		EdgePools:   r.edgePools,
	}
	return v.Clone()
}
