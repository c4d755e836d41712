package uniswapv2

type UniswapV2SystemDiff struct {
	Additions []Pool   `json:"additions,omitempty"`
	Updates   []Pool   `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two sets of pool views, keyed by ID.
// A pool counts as updated when any of its mutable fields changed.
func Differ(old, new []Pool) UniswapV2SystemDiff {
	oldPools := make(map[uint64]Pool, len(old))
	for _, p := range old {
		oldPools[p.ID] = p
	}

	var diff UniswapV2SystemDiff
	seen := make(map[uint64]struct{}, len(new))
	for _, p := range new {
		seen[p.ID] = struct{}{}
		prev, ok := oldPools[p.ID]
		if !ok {
			diff.Additions = append(diff.Additions, p.Copy())
			continue
		}
		if poolChanged(prev, p) {
			diff.Updates = append(diff.Updates, p.Copy())
		}
	}

	for _, p := range old {
		if _, ok := seen[p.ID]; !ok {
			diff.Deletions = append(diff.Deletions, p.ID)
		}
	}
	return diff
}

func poolChanged(a, b Pool) bool {
	return !intEqual(a.Reserve0, b.Reserve0) ||
		!intEqual(a.Reserve1, b.Reserve1) ||
		a.BlockTimestampLast != b.BlockTimestampLast ||
		!intEqual(a.Price0CumulativeLast, b.Price0CumulativeLast) ||
		!intEqual(a.Price1CumulativeLast, b.Price1CumulativeLast) ||
		!intEqual(a.KLast, b.KLast) ||
		!intEqual(a.TotalSupply, b.TotalSupply) ||
		a.FeeBps != b.FeeBps
}
