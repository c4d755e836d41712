package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---

// ProtocolDiffer computes the diff between two views of one schema. It
// reports changed=false when the views are equal so the protocol can be left
// out of the state diff.
type ProtocolDiffer func(old, new any) (diff any, changed bool, err error)

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, fn := range c.ProtocolDiffers {
		if fn == nil {
			return fmt.Errorf("config: nil differ for schema %q", schema)
		}
	}
	return nil
}

// StateDiffer is the main differ engine.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff compares two snapshots. Both must be free of protocol errors and new
// must not drop a protocol that old carries.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ: nil state")
	}
	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("differ: state carries protocol errors")
	}
	if new.Block.Number < old.Block.Number {
		return nil, fmt.Errorf("differ: new height %d below old height %d", new.Block.Number, old.Block.Number)
	}
	for protocolID := range old.Protocols {
		if _, ok := new.Protocols[protocolID]; !ok {
			return nil, fmt.Errorf("differ: protocol %s missing from new state", protocolID)
		}
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		oldProtocolState, ok := old.Protocols[protocolID]
		if !ok {
			return nil, fmt.Errorf("differ: protocol %s does not exist in old state", protocolID)
		}
		if oldProtocolState.Schema != newProtocolState.Schema {
			return nil, fmt.Errorf("differ: schema changed for protocol %s (%s -> %s)", protocolID, oldProtocolState.Schema, newProtocolState.Schema)
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			return nil, fmt.Errorf("differ: no differ registered for schema %q", newProtocolState.Schema)
		}
		diffData, changed, err := differFunc(oldProtocolState.Data, newProtocolState.Data)
		if err != nil {
			return nil, fmt.Errorf("differ: protocol %s: %w", protocolID, err)
		}
		if !changed {
			d.metrics.skippedChanges.Inc()
			continue
		}
		d.metrics.protocolDiffs.WithLabelValues(string(newProtocolState.Schema)).Inc()

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:              newProtocolState.Meta,
			SyncedBlockNumber: newProtocolState.SyncedBlockNumber,
			Schema:            newProtocolState.Schema,
			Data:              diffData,
		}
	}

	d.logger.Debug("state diffed",
		"from", old.Block.Number,
		"to", new.Block.Number,
		"changed_protocols", len(protocolDiffs),
	)

	return &StateDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		FromBlock: old.Block.Number,
		ToBlock:   new.Block,
		Protocols: protocolDiffs,
	}, nil
}
