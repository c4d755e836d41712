package uniswapv2

import (
	"fmt"
	"sort"
)

// Patcher builds the next set of pool views by applying diff to prevState.
// The result shares no memory with either input and is ordered by ID.
func Patcher(prevState []Pool, diff UniswapV2SystemDiff) ([]Pool, error) {
	next := make(map[uint64]Pool, len(prevState)+len(diff.Additions))
	for _, p := range prevState {
		next[p.ID] = p.Copy()
	}

	for _, id := range diff.Deletions {
		if _, ok := next[id]; !ok {
			return nil, fmt.Errorf("cannot delete unknown pool %d", id)
		}
		delete(next, id)
	}
	for _, p := range diff.Updates {
		if _, ok := next[p.ID]; !ok {
			return nil, fmt.Errorf("cannot update unknown pool %d", p.ID)
		}
		next[p.ID] = p.Copy()
	}
	for _, p := range diff.Additions {
		next[p.ID] = p.Copy()
	}

	out := make([]Pool, 0, len(next))
	for _, p := range next {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
