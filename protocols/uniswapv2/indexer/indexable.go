package indexer

import (
	uniswapv2 "github.com/defistate/defistate-amm-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedUniswapV2 views from snapshot pool slices.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed system from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv2.Pool) IndexedUniswapV2 {
	return NewIndexableUniswapV2System(pools)
}

// IndexableUniswapV2System provides fast lookups of pool views by ID and pair address.
type IndexableUniswapV2System struct {
	byID      map[uint64]uniswapv2.Pool
	byAddress map[common.Address]uint64
	all       []uniswapv2.Pool
}

// NewIndexableUniswapV2System creates a new indexed system.
func NewIndexableUniswapV2System(pools []uniswapv2.Pool) *IndexableUniswapV2System {
	byID := make(map[uint64]uniswapv2.Pool, len(pools))
	byAddress := make(map[common.Address]uint64, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
		byAddress[p.Address] = p.ID
	}
	return &IndexableUniswapV2System{
		byID:      byID,
		byAddress: byAddress,
		all:       pools,
	}
}

// GetByID retrieves a pool by its registry ID.
func (ius *IndexableUniswapV2System) GetByID(id uint64) (uniswapv2.Pool, bool) {
	p, ok := ius.byID[id]
	return p, ok
}

// GetByAddress retrieves a pool by its pair address.
func (ius *IndexableUniswapV2System) GetByAddress(address common.Address) (uniswapv2.Pool, bool) {
	id, ok := ius.byAddress[address]
	if !ok {
		return uniswapv2.Pool{}, false
	}
	return ius.GetByID(id)
}

// All returns a defensive copy of the slice of all pools.
func (ius *IndexableUniswapV2System) All() []uniswapv2.Pool {
	allCopy := make([]uniswapv2.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
