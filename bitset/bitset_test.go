package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitSet(t *testing.T) {
	bs := NewBitSet(100)
	assert.Len(t, bs, 2)

	for _, i := range []uint64{0, 63, 64, 99} {
		bs.Set(i)
	}
	for _, i := range []uint64{0, 63, 64, 99} {
		assert.True(t, bs.IsSet(i), "bit %d", i)
	}
	for _, i := range []uint64{1, 62, 65, 98} {
		assert.False(t, bs.IsSet(i), "bit %d", i)
	}
	assert.Equal(t, 4, bs.Count())

	bs.Unset(63)
	assert.False(t, bs.IsSet(63))
	assert.True(t, bs.IsSet(64), "unset leaves neighbours alone")
	assert.Equal(t, 3, bs.Count())

	other := NewBitSet(100)
	other.SetFrom(bs)
	assert.Equal(t, bs, other)
	other.Set(5)
	assert.False(t, bs.IsSet(5), "SetFrom copies, it does not alias")

	bs.Clear()
	assert.Zero(t, bs.Count())
	assert.Panics(t, func() { NewBitSet(10).SetFrom(NewBitSet(200)) })
}
