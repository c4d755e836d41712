// Package state provides the undo journal that makes a unit of work atomic.
//
// Every component that mutates exchange state (ledger balances, pair reserves,
// factory indexes, permit nonces, buffered events) records an undo closure
// before it writes. Reverting to a snapshot replays those closures in reverse.
package state

import "sync"

// Journal is an append-only undo log. Snapshots are positions in the log and
// may be nested: reverting to an outer snapshot also undoes everything
// recorded after any inner one.
type Journal struct {
	mu      sync.Mutex
	entries []func()
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append records an undo closure.
func (j *Journal) Append(undo func()) {
	j.mu.Lock()
	j.entries = append(j.entries, undo)
	j.mu.Unlock()
}

// Snapshot returns an identifier for the current position in the log.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// RevertToSnapshot undoes every change recorded after the snapshot was taken.
// Reverting to a snapshot that is already past the end of the log is a no-op.
func (j *Journal) RevertToSnapshot(id int) {
	j.mu.Lock()
	if id < 0 {
		id = 0
	}
	if id >= len(j.entries) {
		j.mu.Unlock()
		return
	}
	pending := j.entries[id:]
	j.entries = j.entries[:id]
	j.mu.Unlock()

	// Undo closures run without the lock; they write to their owners' state,
	// never back into the journal.
	for i := len(pending) - 1; i >= 0; i-- {
		pending[i]()
	}
}

// Commit discards the log. Changes recorded so far can no longer be undone.
func (j *Journal) Commit() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}

// Len returns the number of recorded changes.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Atomic runs fn and reverts every change it recorded if it returns an error.
func (j *Journal) Atomic(fn func() error) error {
	snap := j.Snapshot()
	if err := fn(); err != nil {
		j.RevertToSnapshot(snap)
		return err
	}
	return nil
}
