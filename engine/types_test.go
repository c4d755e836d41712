package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_HasErrors(t *testing.T) {
	s := &State{Block: BlockSummary{Number: 7}, Protocols: map[ProtocolID]ProtocolState{
		TokensProtocolID: {Schema: "a"},
		PoolsProtocolID:  {Schema: "b"},
	}}
	assert.False(t, s.HasErrors())
	assert.Equal(t, uint64(7), s.Height())

	s.Protocols[UniswapV2ProtocolID] = ProtocolState{Schema: "c", Error: "boom"}
	assert.True(t, s.HasErrors())
}
