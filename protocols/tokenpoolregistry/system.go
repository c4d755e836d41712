package tokenpoolregistry

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TokenPoolSystem is the concurrency-safe wrapper around TokenPoolRegistry.
// Writers take the mutex; readers use an atomically published view.
type TokenPoolSystem struct {
	mu         sync.RWMutex
	registry   *TokenPoolRegistry
	cachedView atomic.Pointer[TokenPoolRegistryView]
}

// NewTokenPoolSystem returns an empty system.
func NewTokenPoolSystem() *TokenPoolSystem {
	s := &TokenPoolSystem{registry: NewTokenPoolRegistry()}
	s.cachedView.Store(s.registry.view())
	return s
}

// NewTokenPoolSystemFromView restores a system from a snapshot.
func NewTokenPoolSystemFromView(view *TokenPoolRegistryView) *TokenPoolSystem {
	s := &TokenPoolSystem{registry: NewTokenPoolRegistryFromView(view)}
	s.cachedView.Store(s.registry.view())
	return s
}

// AddPool links the tokens of one pool.
func (s *TokenPoolSystem) AddPool(tokenIDs []uint64, poolID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.add(tokenIDs, poolID)
	s.cachedView.Store(s.registry.view())
}

// AddPools links several pools and republishes the view once. Mismatched
// input lengths are a programmer error and panic.
func (s *TokenPoolSystem) AddPools(poolIDs []uint64, tokenIDSets [][]uint64) {
	if len(poolIDs) != len(tokenIDSets) {
		panic(fmt.Sprintf("mismatched input lengths: %d pool IDs and %d token ID sets", len(poolIDs), len(tokenIDSets)))
	}
	if len(poolIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, poolID := range poolIDs {
		s.registry.add(tokenIDSets[i], poolID)
	}
	s.cachedView.Store(s.registry.view())
}

func (s *TokenPoolSystem) PoolsForToken(tokenID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(tokenID)
}

func (s *TokenPoolSystem) PoolsBetween(tokenA, tokenB uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsBetween(tokenA, tokenB)
}

// View returns a private copy of the latest published view without locking.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	v := s.cachedView.Load()
	if v == nil {
		return &TokenPoolRegistryView{}
	}
	return v.Clone()
}
