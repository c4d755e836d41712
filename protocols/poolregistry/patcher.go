package poolregistry

import "fmt"

// Patcher constructs a new registry state by applying a diff to a previous
// state. Deletions are applied before additions. The previous state is not modified.
func Patcher(prevState PoolRegistry, diff PoolRegistryDiff) (PoolRegistry, error) {
	poolMap := make(map[uint64]Pool, len(prevState.Pools))
	for _, pool := range prevState.Pools {
		poolMap[pool.ID] = pool
	}
	for _, id := range diff.PoolDeletions {
		if _, ok := poolMap[id]; !ok {
			return PoolRegistry{}, fmt.Errorf("cannot delete unknown pool %d", id)
		}
		delete(poolMap, id)
	}
	for _, pool := range diff.PoolAdditions {
		if _, ok := poolMap[pool.ID]; ok {
			return PoolRegistry{}, fmt.Errorf("cannot add pool %d: already present", pool.ID)
		}
		poolMap[pool.ID] = pool
	}

	pools := make([]Pool, 0, len(poolMap))
	for _, pool := range poolMap {
		pools = append(pools, pool)
	}
	sortPools(pools)

	protocols := make(map[uint16]ProtocolID, len(prevState.Protocols))
	for k, v := range prevState.Protocols {
		protocols[k] = v
	}
	for _, id := range diff.ProtocolDeletions {
		delete(protocols, id)
	}
	for id, name := range diff.ProtocolAdditions {
		protocols[id] = name
	}

	return PoolRegistry{Pools: pools, Protocols: protocols}, nil
}
