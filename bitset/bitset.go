// Package bitset is a fixed-size set of small non-negative integers.
package bitset

import (
	"fmt"
	"math/bits"
)

// BitSet stores membership as packed 64-bit words.
type BitSet []uint64

// NewBitSet returns an empty set able to hold members in [0, size).
func NewBitSet(size uint64) BitSet {
	return make(BitSet, (size+63)/64)
}

func locate(index uint64) (word uint64, mask uint64) {
	return index / 64, uint64(1) << (index % 64)
}

func (b BitSet) IsSet(index uint64) bool {
	w, mask := locate(index)
	return b[w]&mask != 0
}

func (b BitSet) Set(index uint64) {
	w, mask := locate(index)
	b[w] |= mask
}

func (b BitSet) Unset(index uint64) {
	w, mask := locate(index)
	b[w] &^= mask
}

// Clear removes every member.
func (b BitSet) Clear() {
	clear(b)
}

// SetFrom overwrites b with the members of o. Both sets must have the same size.
func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}

// Count returns the number of members.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}
