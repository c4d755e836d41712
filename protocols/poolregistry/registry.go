// Package poolregistry assigns stable numeric IDs to pools and records which
// protocol each pool belongs to.
package poolregistry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Schema identifies the PoolRegistry layout on the state stream.
const Schema = "defistate/pool-registry/PoolRegistry@v2"

// ProtocolID names a pool protocol, e.g. "uniswap-v2".
type ProtocolID string

// PoolKey identifies a pool independently of its numeric ID. Contract pools
// use their address left-padded to 32 bytes.
type PoolKey [32]byte

// AddressToPoolKey returns the key of the pool deployed at addr.
func AddressToPoolKey(addr common.Address) PoolKey {
	var key PoolKey
	copy(key[32-common.AddressLength:], addr.Bytes())
	return key
}

// Address returns the pool address encoded in the key.
func (k PoolKey) Address() common.Address {
	return common.BytesToAddress(k[32-common.AddressLength:])
}

func (k PoolKey) MarshalText() ([]byte, error) {
	return common.Hash(k).MarshalText()
}

func (k *PoolKey) UnmarshalText(input []byte) error {
	var h common.Hash
	if err := h.UnmarshalText(input); err != nil {
		return err
	}
	*k = PoolKey(h)
	return nil
}

// Pool represents the data for a single pool.
type Pool struct {
	ID       uint64  `json:"id"`
	Key      PoolKey `json:"key"`
	Protocol uint16  `json:"protocol"`
}

// PoolRegistry represents the complete state of the registry.
type PoolRegistry struct {
	Pools     []Pool                `json:"pools"`
	Protocols map[uint16]ProtocolID `json:"protocols"`
}

var (
	ErrPoolExists      = errors.New("poolregistry: pool already registered")
	ErrUnknownProtocol = errors.New("poolregistry: unknown protocol")
)

// Registry is the mutable pool index. Writes are journaled. It is not safe for
// concurrent use.
type Registry struct {
	journal   *state.Journal
	pools     []Pool
	byKey     map[PoolKey]uint64
	protocols map[uint16]ProtocolID
	protoIDs  map[ProtocolID]uint16
}

// NewRegistry returns an empty registry.
func NewRegistry(journal *state.Journal) *Registry {
	return &Registry{
		journal:   journal,
		byKey:     make(map[PoolKey]uint64),
		protocols: make(map[uint16]ProtocolID),
		protoIDs:  make(map[ProtocolID]uint16),
	}
}

// RegisterProtocol returns the internal id of protocol, assigning the next
// free one on first use.
func (r *Registry) RegisterProtocol(protocol ProtocolID) uint16 {
	if id, ok := r.protoIDs[protocol]; ok {
		return id
	}
	id := uint16(len(r.protocols))
	r.protocols[id] = protocol
	r.protoIDs[protocol] = id
	r.journal.Append(func() {
		delete(r.protocols, id)
		delete(r.protoIDs, protocol)
	})
	return id
}

// Add registers the pool at addr. IDs are assigned sequentially from zero.
func (r *Registry) Add(addr common.Address, protocol ProtocolID) (Pool, error) {
	key := AddressToPoolKey(addr)
	if _, exists := r.byKey[key]; exists {
		return Pool{}, fmt.Errorf("%w: %s", ErrPoolExists, addr.Hex())
	}
	protoID, ok := r.protoIDs[protocol]
	if !ok {
		return Pool{}, fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	pool := Pool{ID: uint64(len(r.pools)), Key: key, Protocol: protoID}
	r.pools = append(r.pools, pool)
	r.byKey[key] = pool.ID
	r.journal.Append(func() {
		r.pools = r.pools[:len(r.pools)-1]
		delete(r.byKey, key)
	})
	return pool, nil
}

// GetByAddress returns the pool deployed at addr.
func (r *Registry) GetByAddress(addr common.Address) (Pool, bool) {
	id, ok := r.byKey[AddressToPoolKey(addr)]
	if !ok {
		return Pool{}, false
	}
	return r.pools[id], true
}

// Len returns the number of registered pools.
func (r *Registry) Len() int { return len(r.pools) }

// View returns a copy of the registry ordered by pool ID.
func (r *Registry) View() PoolRegistry {
	pools := make([]Pool, len(r.pools))
	copy(pools, r.pools)
	protocols := make(map[uint16]ProtocolID, len(r.protocols))
	for k, v := range r.protocols {
		protocols[k] = v
	}
	return PoolRegistry{Pools: pools, Protocols: protocols}
}

func sortPools(pools []Pool) {
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
}
