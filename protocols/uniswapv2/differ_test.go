package uniswapv2

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(id, r0, r1 uint64) Pool {
	return Pool{
		ID:                   id,
		Reserve0:             uint256.NewInt(r0),
		Reserve1:             uint256.NewInt(r1),
		Price0CumulativeLast: new(uint256.Int),
		Price1CumulativeLast: new(uint256.Int),
		KLast:                new(uint256.Int),
		TotalSupply:          uint256.NewInt(1000),
		FeeBps:               30,
	}
}

func TestDiffer(t *testing.T) {
	pool1 := pool(1, 1000, 2000)
	pool2 := pool(2, 3000, 4000)
	pool3 := pool(3, 5000, 6000)

	t.Run("additions", func(t *testing.T) {
		diff := Differ([]Pool{pool1}, []Pool{pool1, pool2})
		require.Len(t, diff.Additions, 1)
		assert.Equal(t, uint64(2), diff.Additions[0].ID)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("deletions", func(t *testing.T) {
		diff := Differ([]Pool{pool1, pool2}, []Pool{pool1})
		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		assert.Equal(t, []uint64{2}, diff.Deletions)
	})

	t.Run("reserve update", func(t *testing.T) {
		diff := Differ([]Pool{pool1}, []Pool{pool(1, 1001, 2000)})
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint64(1001), diff.Updates[0].Reserve0.Uint64())
	})

	t.Run("accumulator and kLast updates", func(t *testing.T) {
		acc := pool1.Copy()
		acc.Price0CumulativeLast = uint256.NewInt(1)
		k := pool1.Copy()
		k.KLast = uint256.NewInt(2_000_000)
		ts := pool1.Copy()
		ts.BlockTimestampLast = 9

		for _, next := range []Pool{acc, k, ts} {
			diff := Differ([]Pool{pool1}, []Pool{next})
			assert.Len(t, diff.Updates, 1)
		}
	})

	t.Run("mixed", func(t *testing.T) {
		diff := Differ([]Pool{pool1, pool2, pool3}, []Pool{pool(1, 1, 1), pool2, pool(4, 7, 8)})
		require.Len(t, diff.Additions, 1)
		assert.Equal(t, uint64(4), diff.Additions[0].ID)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint64(1), diff.Updates[0].ID)
		assert.Equal(t, []uint64{3}, diff.Deletions)
	})

	t.Run("no changes", func(t *testing.T) {
		diff := Differ([]Pool{pool1, pool2}, []Pool{pool1.Copy(), pool2.Copy()})
		assert.True(t, diff.IsEmpty())
		assert.True(t, Differ(nil, nil).IsEmpty())
	})

	t.Run("diff does not alias the new state", func(t *testing.T) {
		next := pool(1, 5, 5)
		diff := Differ([]Pool{pool1}, []Pool{next})
		next.Reserve0.SetUint64(99)
		assert.Equal(t, uint64(5), diff.Updates[0].Reserve0.Uint64())
	})
}
