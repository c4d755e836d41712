package poolregistry

import "sort"

// PoolRegistryDiff represents the changes required to transition from one registry state to another.
type PoolRegistryDiff struct {
	PoolAdditions     []Pool                `json:"poolAdditions,omitempty"`
	PoolDeletions     []uint64              `json:"poolDeletions,omitempty"`
	ProtocolAdditions map[uint16]ProtocolID `json:"protocolAdditions,omitempty"`
	ProtocolDeletions []uint16              `json:"protocolDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolRegistryDiff) IsEmpty() bool {
	return len(d.PoolAdditions) == 0 &&
		len(d.PoolDeletions) == 0 &&
		len(d.ProtocolAdditions) == 0 &&
		len(d.ProtocolDeletions) == 0
}

// Differ calculates the difference between two full registry views (old -> new).
// Pool entries are immutable once assigned, so a changed key under the same ID
// is expressed as a deletion plus an addition.
func Differ(old, new PoolRegistry) PoolRegistryDiff {
	oldPools := make(map[uint64]Pool, len(old.Pools))
	for _, pool := range old.Pools {
		oldPools[pool.ID] = pool
	}
	newIDs := make(map[uint64]struct{}, len(new.Pools))

	var diff PoolRegistryDiff
	for _, pool := range new.Pools {
		newIDs[pool.ID] = struct{}{}
		prev, exists := oldPools[pool.ID]
		if exists && prev == pool {
			continue
		}
		if exists {
			diff.PoolDeletions = append(diff.PoolDeletions, pool.ID)
		}
		diff.PoolAdditions = append(diff.PoolAdditions, pool)
	}
	for id := range oldPools {
		if _, exists := newIDs[id]; !exists {
			diff.PoolDeletions = append(diff.PoolDeletions, id)
		}
	}

	for id, name := range new.Protocols {
		if oldName, exists := old.Protocols[id]; !exists || oldName != name {
			if diff.ProtocolAdditions == nil {
				diff.ProtocolAdditions = make(map[uint16]ProtocolID)
			}
			diff.ProtocolAdditions[id] = name
		}
	}
	for id := range old.Protocols {
		if _, exists := new.Protocols[id]; !exists {
			diff.ProtocolDeletions = append(diff.ProtocolDeletions, id)
		}
	}

	sortPools(diff.PoolAdditions)
	sort.Slice(diff.PoolDeletions, func(i, j int) bool { return diff.PoolDeletions[i] < diff.PoolDeletions[j] })
	sort.Slice(diff.ProtocolDeletions, func(i, j int) bool { return diff.ProtocolDeletions[i] < diff.ProtocolDeletions[j] })
	return diff
}
