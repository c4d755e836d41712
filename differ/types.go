package differ

import "github.com/defistate/defistate-amm-go/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	// Height at which this protocol's data was last produced.
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data.
	// Examples:
	// "defistate/uniswap-v2/PoolView@v2"
	// "defistate/token-registry/Token@v2"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to produce a view at this height.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes from height FromBlock to ToBlock. Protocols
// whose data did not change are omitted.
type StateDiff struct {
	Timestamp uint64                             `json:"timestamp"`
	FromBlock uint64                             `json:"fromBlock"`
	ToBlock   engine.BlockSummary                `json:"toBlock"`
	Protocols map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}
