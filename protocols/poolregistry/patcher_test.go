package poolregistry

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const protoV2 = ProtocolID("uniswap-v2")

func TestPoolKey(t *testing.T) {
	addr := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	key := AddressToPoolKey(addr)
	assert.Equal(t, addr, key.Address())

	b, err := json.Marshal(key)
	require.NoError(t, err)
	var decoded PoolKey
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, key, decoded)
}

func TestRegistry(t *testing.T) {
	journal := state.NewJournal()
	r := NewRegistry(journal)

	_, err := r.Add(common.HexToAddress("0x1"), protoV2)
	require.ErrorIs(t, err, ErrUnknownProtocol)

	assert.Equal(t, uint16(0), r.RegisterProtocol(protoV2))
	assert.Equal(t, uint16(0), r.RegisterProtocol(protoV2), "registration is idempotent")

	p0, err := r.Add(common.HexToAddress("0x1"), protoV2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p0.ID)

	snap := journal.Snapshot()
	p1, err := r.Add(common.HexToAddress("0x2"), protoV2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p1.ID)

	_, err = r.Add(common.HexToAddress("0x2"), protoV2)
	require.ErrorIs(t, err, ErrPoolExists)

	got, ok := r.GetByAddress(common.HexToAddress("0x2"))
	require.True(t, ok)
	assert.Equal(t, p1, got)

	journal.RevertToSnapshot(snap)
	assert.Equal(t, 1, r.Len())
	_, ok = r.GetByAddress(common.HexToAddress("0x2"))
	assert.False(t, ok)

	view := r.View()
	assert.Equal(t, []Pool{p0}, view.Pools)
	assert.Equal(t, map[uint16]ProtocolID{0: protoV2}, view.Protocols)
}

func TestDifferAndPatcher(t *testing.T) {
	key := func(n int64) PoolKey { return AddressToPoolKey(common.BigToAddress(big.NewInt(n))) }
	initial := PoolRegistry{
		Pools:     []Pool{{ID: 0, Key: key(1)}, {ID: 1, Key: key(2)}, {ID: 2, Key: key(3), Protocol: 1}},
		Protocols: map[uint16]ProtocolID{0: protoV2, 1: "curve"},
	}

	t.Run("additions only", func(t *testing.T) {
		next := PoolRegistry{
			Pools:     append(append([]Pool{}, initial.Pools...), Pool{ID: 3, Key: key(4)}),
			Protocols: initial.Protocols,
		}
		diff := Differ(initial, next)
		assert.Equal(t, []Pool{{ID: 3, Key: key(4)}}, diff.PoolAdditions)
		assert.Empty(t, diff.PoolDeletions)
		assert.Empty(t, diff.ProtocolAdditions)

		patched, err := Patcher(initial, diff)
		require.NoError(t, err)
		assert.Equal(t, next.Pools, patched.Pools)
	})

	t.Run("mixed pool and protocol changes", func(t *testing.T) {
		next := PoolRegistry{
			Pools:     []Pool{{ID: 0, Key: key(1)}, {ID: 2, Key: key(3), Protocol: 2}, {ID: 4, Key: key(5), Protocol: 2}},
			Protocols: map[uint16]ProtocolID{0: protoV2, 2: "sushi"},
		}
		diff := Differ(initial, next)
		assert.Equal(t, []uint64{1, 2}, diff.PoolDeletions)
		assert.Equal(t, []Pool{{ID: 2, Key: key(3), Protocol: 2}, {ID: 4, Key: key(5), Protocol: 2}}, diff.PoolAdditions)
		assert.Equal(t, map[uint16]ProtocolID{2: "sushi"}, diff.ProtocolAdditions)
		assert.Equal(t, []uint16{1}, diff.ProtocolDeletions)

		patched, err := Patcher(initial, diff)
		require.NoError(t, err)
		assert.Equal(t, next, patched)
	})

	t.Run("empty diff", func(t *testing.T) {
		diff := Differ(initial, initial)
		assert.True(t, diff.IsEmpty())
		patched, err := Patcher(initial, diff)
		require.NoError(t, err)
		assert.Equal(t, initial, patched)
	})

	t.Run("previous state is not modified", func(t *testing.T) {
		diff := PoolRegistryDiff{ProtocolAdditions: map[uint16]ProtocolID{99: "temp"}}
		patched, err := Patcher(initial, diff)
		require.NoError(t, err)
		assert.Contains(t, patched.Protocols, uint16(99))
		assert.NotContains(t, initial.Protocols, uint16(99))
	})

	t.Run("unknown deletion fails", func(t *testing.T) {
		_, err := Patcher(initial, PoolRegistryDiff{PoolDeletions: []uint64{42}})
		assert.Error(t, err)
	})

	t.Run("duplicate addition fails", func(t *testing.T) {
		_, err := Patcher(initial, PoolRegistryDiff{PoolAdditions: []Pool{{ID: 0, Key: key(9)}}})
		assert.Error(t, err)
	})
}
