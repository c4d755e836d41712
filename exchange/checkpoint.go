package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/permit"
	"github.com/defistate/defistate-amm-go/protocols/tokenregistry"
	"github.com/defistate/defistate-amm-go/protocols/uniswapv2/factory"
	"github.com/defistate/defistate-amm-go/storage"
)

// CheckpointKey is the storage key of the latest checkpoint.
var CheckpointKey = []byte("checkpoint/latest")

// Checkpoint is everything needed to rebuild an exchange at a given height.
// Derived indexes (pool registry, token/pool graph, supplies) are rebuilt on
// restore.
type Checkpoint struct {
	ChainID   uint64                `json:"chainId"`
	Height    uint64                `json:"height"`
	Timestamp uint64                `json:"timestamp"`
	Tokens    []tokenregistry.Token `json:"tokens"`
	Ledger    ledger.Snapshot       `json:"ledger"`
	Factory   factory.State         `json:"factory"`
	Nonces    []permit.Nonce        `json:"nonces"`
}

// Checkpoint captures the committed state.
func (e *Exchange) Checkpoint() Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Checkpoint{
		ChainID:   e.chainID,
		Height:    e.height,
		Timestamp: e.timestamp,
		Tokens:    e.tokens.View(),
		Ledger:    e.ledger.Snapshot(),
		Factory:   e.factory.State(),
		Nonces:    e.permits.Nonces(),
	}
}

// Restore loads cp into an exchange that has not committed anything yet. No
// events are published for the restored state; observers receive the
// restored snapshot.
func (e *Exchange) Restore(cp Checkpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.height != 0 || e.factory.AllPairsLength() != 0 || len(e.tokens.View()) != 0 {
		return ErrNotFresh
	}
	if cp.ChainID != e.chainID {
		return fmt.Errorf("checkpoint is for chain %d, exchange runs chain %d", cp.ChainID, e.chainID)
	}

	snap := e.journal.Snapshot()
	if err := e.restore(cp); err != nil {
		e.journal.RevertToSnapshot(snap)
		return err
	}
	e.permits.Restore(cp.Nonces)
	e.batch.Drain()
	e.journal.Commit()

	e.height = cp.Height
	e.timestamp = cp.Timestamp
	for _, p := range e.factory.Pools() {
		e.topology.AddPool([]uint64{p.Token0, p.Token1}, p.ID)
	}

	next := e.buildState(engine.BlockSummary{
		Number:     e.height,
		Timestamp:  e.timestamp,
		ReceivedAt: time.Now().UnixNano(),
	})
	e.snapshot.Store(next)
	for _, o := range e.observers {
		o(next)
	}
	e.logger.Info("exchange restored", "height", e.height, "tokens", len(cp.Tokens), "pairs", len(cp.Factory.Pairs))
	return nil
}

// restore loads cp into the fresh exchange. The ledger is checked before
// anything is written since its Restore is not journaled.
func (e *Exchange) restore(cp Checkpoint) error {
	if err := cp.Ledger.Validate(); err != nil {
		return fmt.Errorf("invalid ledger: %w", err)
	}
	tokens := make([]tokenregistry.Token, len(cp.Tokens))
	copy(tokens, cp.Tokens)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	for _, t := range tokens {
		if got := e.tokens.Register(t); got.ID != t.ID {
			return fmt.Errorf("token %s restored with ID %d, checkpoint has %d", t.Address.Hex(), got.ID, t.ID)
		}
	}
	if err := e.factory.Restore(cp.Factory); err != nil {
		return fmt.Errorf("failed to restore pairs: %w", err)
	}
	if err := e.ledger.Restore(cp.Ledger); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}
	return nil
}

// SaveCheckpoint writes the current checkpoint to db under CheckpointKey.
func (e *Exchange) SaveCheckpoint(db storage.Database) error {
	cp := e.Checkpoint()
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := db.Put(CheckpointKey, raw); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	e.logger.Debug("checkpoint saved", "height", cp.Height, "bytes", len(raw))
	return nil
}

// LoadCheckpoint restores the checkpoint stored in db. It reports false and
// no error when db holds no checkpoint.
func (e *Exchange) LoadCheckpoint(db storage.Database) (bool, error) {
	raw, err := db.Get(CheckpointKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return false, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := e.Restore(cp); err != nil {
		return false, err
	}
	return true, nil
}
