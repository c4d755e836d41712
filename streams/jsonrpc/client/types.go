package client

import (
	"encoding/json"

	"github.com/defistate/defistate-amm-go/engine"
)

// Event types carried by SubscriptionEvent.Type.
const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// wireProtocol holds one protocol entry of a full state or a diff with its
// data still encoded; the schema decides how it is decoded.
type wireProtocol struct {
	Meta              engine.ProtocolMeta   `json:"meta"`
	SyncedBlockNumber *uint64               `json:"syncedBlockNumber,omitempty"`
	Schema            engine.ProtocolSchema `json:"schema"`
	Error             string                `json:"error,omitempty"`
	Data              json.RawMessage       `json:"data,omitempty"`
}

// wireState mirrors engine.State.
type wireState struct {
	ChainID   uint64                             `json:"chainId"`
	Timestamp uint64                             `json:"timestamp"`
	Block     engine.BlockSummary                `json:"block"`
	Protocols map[engine.ProtocolID]wireProtocol `json:"protocols"`
}

// wireStateDiff mirrors differ.StateDiff.
type wireStateDiff struct {
	FromBlock uint64                             `json:"fromBlock"`
	ToBlock   engine.BlockSummary                `json:"toBlock"`
	Timestamp uint64                             `json:"timestamp"`
	Protocols map[engine.ProtocolID]wireProtocol `json:"protocols"`
}
