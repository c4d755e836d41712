package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	j     *Journal
	value int
}

func (c *counter) set(v int) {
	prev := c.value
	c.j.Append(func() { c.value = prev })
	c.value = v
}

func TestJournal_RevertToSnapshot(t *testing.T) {
	j := NewJournal()
	c := &counter{j: j}

	c.set(1)
	snap := j.Snapshot()
	c.set(2)
	c.set(3)
	require.Equal(t, 3, j.Len())

	j.RevertToSnapshot(snap)
	assert.Equal(t, 1, c.value)
	assert.Equal(t, 1, j.Len())

	j.RevertToSnapshot(0)
	assert.Equal(t, 0, c.value)
	assert.Equal(t, 0, j.Len())
}

func TestJournal_NestedSnapshots(t *testing.T) {
	j := NewJournal()
	c := &counter{j: j}

	outer := j.Snapshot()
	c.set(10)
	inner := j.Snapshot()
	c.set(20)

	j.RevertToSnapshot(inner)
	assert.Equal(t, 10, c.value)

	c.set(30)
	j.RevertToSnapshot(outer)
	assert.Equal(t, 0, c.value)

	// reverting past the end is a no-op
	j.RevertToSnapshot(5)
	assert.Equal(t, 0, c.value)
}

func TestJournal_Commit(t *testing.T) {
	j := NewJournal()
	c := &counter{j: j}
	c.set(7)
	j.Commit()
	j.RevertToSnapshot(0)
	assert.Equal(t, 7, c.value)
}

func TestJournal_Atomic(t *testing.T) {
	j := NewJournal()
	c := &counter{j: j}

	err := j.Atomic(func() error {
		c.set(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.value)

	boom := errors.New("boom")
	err = j.Atomic(func() error {
		c.set(2)
		c.set(3)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.value)
}
