// Package engine defines the state snapshot published by the exchange after
// every committed unit of work.
package engine

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "registry", etc.
}

// Well-known protocol entries of an exchange snapshot.
const (
	TokensProtocolID     ProtocolID = "tokens"
	PoolsProtocolID      ProtocolID = "pools"
	TokenPoolsProtocolID ProtocolID = "token-pools"
	UniswapV2ProtocolID  ProtocolID = "uniswap-v2"
)

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// Height at which this protocol's data was last produced.
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data.
	// Example:
	// "defistate/uniswap-v2/PoolView@v2"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to produce a view at this height.
	Error string `json:"error,omitempty"`
}

// BlockSummary describes the unit of work that produced a snapshot. Number is
// the exchange height, bumped once per commit.
type BlockSummary struct {
	Number     uint64 `json:"number"`
	Timestamp  uint64 `json:"timestamp"`
	ReceivedAt int64  `json:"receivedAt"` // Unix nanoseconds at which the commit started.
	Events     int    `json:"events"`
}

// State is the main data structure broadcast to subscribers.
type State struct {
	ChainID   uint64                       `json:"chainId"`
	Timestamp uint64                       `json:"timestamp"`
	Block     BlockSummary                 `json:"block"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

// Height is the exchange height the state was taken at.
func (state *State) Height() uint64 {
	return state.Block.Number
}

func (state *State) HasErrors() bool {
	// Check protocol-level errors
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}
