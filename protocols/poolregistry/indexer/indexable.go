package indexer

import (
	"maps"

	poolregistry "github.com/defistate/defistate-amm-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool registry from the full registry view.
func (i *Indexer) Index(view poolregistry.PoolRegistry) IndexedPoolRegistry {
	return NewIndexablePoolRegistry(view)
}

// IndexablePoolRegistry provides fast, indexed access to pool registry data.
type IndexablePoolRegistry struct {
	byID      map[uint64]poolregistry.Pool
	byKey     map[poolregistry.PoolKey]poolregistry.Pool
	all       []poolregistry.Pool
	protocols map[uint16]poolregistry.ProtocolID
}

// NewIndexablePoolRegistry creates a new indexed pool registry from the view.
func NewIndexablePoolRegistry(view poolregistry.PoolRegistry) *IndexablePoolRegistry {
	byID := make(map[uint64]poolregistry.Pool, len(view.Pools))
	byKey := make(map[poolregistry.PoolKey]poolregistry.Pool, len(view.Pools))
	for _, p := range view.Pools {
		byID[p.ID] = p
		byKey[p.Key] = p
	}
	return &IndexablePoolRegistry{
		byID:      byID,
		byKey:     byKey,
		all:       view.Pools,
		protocols: maps.Clone(view.Protocols),
	}
}

func (ipr *IndexablePoolRegistry) GetByID(id uint64) (poolregistry.Pool, bool) {
	p, ok := ipr.byID[id]
	return p, ok
}

// GetByAddress retrieves a pool by its contract address.
func (ipr *IndexablePoolRegistry) GetByAddress(address common.Address) (poolregistry.Pool, bool) {
	p, ok := ipr.byKey[poolregistry.AddressToPoolKey(address)]
	return p, ok
}

func (ipr *IndexablePoolRegistry) GetByPoolKey(key poolregistry.PoolKey) (poolregistry.Pool, bool) {
	p, ok := ipr.byKey[key]
	return p, ok
}

// All returns a copy of the slice of all pools.
func (ipr *IndexablePoolRegistry) All() []poolregistry.Pool {
	allCopy := make([]poolregistry.Pool, len(ipr.all))
	copy(allCopy, ipr.all)
	return allCopy
}

// GetProtocols returns a copy of the protocol mapping.
func (ipr *IndexablePoolRegistry) GetProtocols() map[uint16]poolregistry.ProtocolID {
	return maps.Clone(ipr.protocols)
}

// ProtocolOf resolves the protocol name of the pool with the given ID.
func (ipr *IndexablePoolRegistry) ProtocolOf(id uint64) (poolregistry.ProtocolID, bool) {
	p, ok := ipr.byID[id]
	if !ok {
		return "", false
	}
	name, ok := ipr.protocols[p.Protocol]
	return name, ok
}
