package tokenregistry

import "sort"

type TokenSystemDiff struct {
	Additions []Token  `json:"additions,omitempty"`
	Updates   []Token  `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the token registry.
// A token whose metadata changed under the same ID is an update. Every slice
// of the result is ordered by ID.
func Differ(old, new []Token) TokenSystemDiff {
	oldTokens := make(map[uint64]Token, len(old))
	for _, token := range old {
		oldTokens[token.ID] = token
	}
	newIDs := make(map[uint64]struct{}, len(new))

	var diff TokenSystemDiff
	for _, token := range new {
		newIDs[token.ID] = struct{}{}
		prev, exists := oldTokens[token.ID]
		switch {
		case !exists:
			diff.Additions = append(diff.Additions, token)
		case prev != token:
			diff.Updates = append(diff.Updates, token)
		}
	}
	for id := range oldTokens {
		if _, exists := newIDs[id]; !exists {
			diff.Deletions = append(diff.Deletions, id)
		}
	}

	sortTokens(diff.Additions)
	sortTokens(diff.Updates)
	sort.Slice(diff.Deletions, func(i, j int) bool { return diff.Deletions[i] < diff.Deletions[j] })
	return diff
}
