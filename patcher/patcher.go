// Package patcher rebuilds exchange snapshots from a previous snapshot and a
// StateDiff, the inverse of package differ.
package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/engine"
)

// PatcherFunc applies a diff to a previous protocol view.
//
// Implementations must not mutate prevState. prevState is nil when the
// protocol first appears in the diff.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

type StatePatcherConfig struct {
	// Schema -> patcher, e.g. uniswapv2.Schema -> uniswapv2.Patcher.
	Patchers map[engine.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for schema, patcher := range c.Patchers {
		if patcher == nil {
			return fmt.Errorf("config: nil patcher for schema %q", schema)
		}
	}
	return nil
}

// StatePatcher applies StateDiffs by schema.
type StatePatcher struct {
	patchers map[engine.ProtocolSchema]PatcherFunc
}

func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}
	return &StatePatcher{patchers: patchers}, nil
}

// Patch returns the state at diff.ToBlock. Protocols absent from the diff are
// shared with oldState by reference; changed ones are rebuilt by their
// schema's patcher.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState == nil || diff == nil {
		return nil, errors.New("patcher: nil state or diff")
	}
	if oldState.Block.Number != diff.FromBlock {
		return nil, fmt.Errorf("patcher: mismatch fromBlock (state=%d, diff=%d)", oldState.Block.Number, diff.FromBlock)
	}
	if diff.ToBlock.Number < diff.FromBlock {
		return nil, fmt.Errorf("patcher: diff goes backwards (%d -> %d)", diff.FromBlock, diff.ToBlock.Number)
	}

	protocols := make(map[engine.ProtocolID]engine.ProtocolState, len(oldState.Protocols)+len(diff.Protocols))
	for k, v := range oldState.Protocols {
		protocols[k] = v
	}

	for protocolID, protocolDiff := range diff.Protocols {
		patcherFunc, ok := p.patchers[protocolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", protocolDiff.Schema, protocolID)
		}

		var oldData any
		if prev, exists := oldState.Protocols[protocolID]; exists {
			if prev.Schema != protocolDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", protocolID, prev.Schema, protocolDiff.Schema)
			}
			oldData = prev.Data
		}

		newData, err := patcherFunc(oldData, protocolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch protocol %s: %w", protocolID, err)
		}

		protocols[protocolID] = engine.ProtocolState{
			Meta:              protocolDiff.Meta,
			SyncedBlockNumber: protocolDiff.SyncedBlockNumber,
			Schema:            protocolDiff.Schema,
			Data:              newData,
			Error:             protocolDiff.Error,
		}
	}

	return &engine.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Protocols: protocols,
	}, nil
}
