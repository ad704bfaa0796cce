// Package queue implements the performer's global ready queue: the set of
// blocks that have at least one task waiting for interpreter dispatch,
// ordered to minimize seeks on the backing file.
package queue

import (
	"sort"

	"github.com/behrlich/blockwheel/internal/block"
)

type entry struct {
	blockID block.Id
	offset  uint64
}

// Ready holds blocks awaiting dispatch, ordered by file offset. Pop prefers
// the block whose offset is closest to the caller's current offset moving
// forward — the same elevator-style scan a disk head performs — wrapping
// around to the lowest offset once nothing remains ahead. It is not a
// classic fixed-priority queue (the "priority" changes with every call
// depending on where the interpreter head currently sits), so it is kept as
// a small offset-sorted slice rather than a container/heap: a heap exposes
// only its global minimum, not "the first entry at or after X".
type Ready struct {
	entries []entry
}

// New creates an empty ready queue.
func New() *Ready {
	return &Ready{}
}

// Len reports how many blocks are currently queued.
func (r *Ready) Len() int {
	return len(r.entries)
}

// Push inserts a block at the given offset. The caller is responsible for
// ensuring the block isn't already present (tracked via TasksHead.IsQueued).
func (r *Ready) Push(blockID block.Id, offset uint64) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].offset >= offset
	})
	r.entries = append(r.entries, entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = entry{blockID: blockID, offset: offset}
}

// Pop removes and returns the block id best positioned relative to
// currentOffset: the lowest offset that is >= currentOffset, or if none
// exists, the lowest offset overall. Ties are impossible by construction
// (a given offset belongs to at most one live block); if equal offsets were
// pushed anyway, Push places the newest before the older ones, so the most
// recently pushed is popped first.
func (r *Ready) Pop(currentOffset uint64) (block.Id, bool) {
	if len(r.entries) == 0 {
		return 0, false
	}
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].offset >= currentOffset
	})
	if i == len(r.entries) {
		i = 0
	}
	picked := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return picked.blockID, true
}
