// Package defrag holds the online-compaction bookkeeping the performer
// consults each poke: a priority queue of free-space regions worth
// collapsing, and a FIFO of client writes that didn't fit and are waiting
// for defrag to make room.
package defrag

import (
	"container/heap"

	"github.com/behrlich/blockwheel/internal/block"
)

// Hint names one free-space region worth relocating a block into, ordered
// purely by FreeSpaceOffset. SpaceKey is opaque to the performer: it is
// handed back to the schema verbatim when the region is popped.
type Hint struct {
	FreeSpaceOffset uint64
	SpaceKey        any
}

// PendingWrite is a client write that couldn't be placed at submission
// time and is waiting for defrag to free room. Bytes is the payload the
// client handed in; Context is opaque and returned unchanged once the
// write is retried and succeeds.
type PendingWrite struct {
	Bytes   block.Bytes
	Context any
}

// Queues bundles the two structures the performer's defrag step consults:
// a min-heap of regions to collapse next, and a FIFO of writes to retry
// once space opens up.
type Queues struct {
	tasks   hintHeap
	pending []PendingWrite
}

// New creates empty defrag queues.
func New() *Queues {
	return &Queues{}
}

// PushHint enqueues a free-space region for the top-up step to consider.
// Grounded on the pack-wide idiom of a container/heap priority queue (seen
// in erigon's transaction scheduler and other_examples' DAG/gaio
// schedulers) rather than a third-party priority-queue package, since the
// corpus never reaches for one for this shape of problem.
func (q *Queues) PushHint(h Hint) {
	heap.Push(&q.tasks, h)
}

// PopHint removes and returns the region with the lowest free-space
// offset, if any.
func (q *Queues) PopHint() (Hint, bool) {
	if q.tasks.Len() == 0 {
		return Hint{}, false
	}
	return heap.Pop(&q.tasks).(Hint), true
}

// HintsLen reports how many free-space regions are queued for relocation.
func (q *Queues) HintsLen() int {
	return q.tasks.Len()
}

// PushPending queues a write that didn't fit at submission time.
func (q *Queues) PushPending(w PendingWrite) {
	q.pending = append(q.pending, w)
}

// PopPending removes and returns the oldest pending write, if any. The
// driver is expected to retry these once the schema reports growing free
// space; the performer itself never drains this queue automatically (see
// §4.4 of the design: policy belongs to the schema/driver, not here).
func (q *Queues) PopPending() (PendingWrite, bool) {
	if len(q.pending) == 0 {
		return PendingWrite{}, false
	}
	w := q.pending[0]
	q.pending = q.pending[1:]
	return w, true
}

// PendingLen reports how many writes are waiting for space to free up.
func (q *Queues) PendingLen() int {
	return len(q.pending)
}

// InProgress tracks the count of outstanding tasks whose context is a
// defrag variant, bounded by a configured limit so relocation never
// monopolizes the single in-flight interpreter slot.
type InProgress struct {
	count int
	limit int
}

// NewInProgress creates a counter bounded by limit. A limit <= 0 means
// defrag is disabled: HasRoom always reports false.
func NewInProgress(limit int) *InProgress {
	return &InProgress{limit: limit}
}

// Enabled reports whether defrag is configured at all.
func (p *InProgress) Enabled() bool {
	return p.limit > 0
}

// HasRoom reports whether another defrag task can be started without
// exceeding the configured limit.
func (p *InProgress) HasRoom() bool {
	return p.Enabled() && p.count < p.limit
}

// Count returns the current number of in-flight defrag tasks.
func (p *InProgress) Count() int {
	return p.count
}

// Increment records a newly dispatched defrag task.
func (p *InProgress) Increment() {
	p.count++
}

// Decrement records a completed defrag task. Panics if the count would go
// negative — that is an invariant violation (§7), not a recoverable error.
func (p *InProgress) Decrement() {
	if p.count <= 0 {
		panic("defrag: in-progress count would go negative")
	}
	p.count--
}

// hintHeap implements container/heap.Interface, ordering Hints by
// FreeSpaceOffset. Ties (which the spec says are broken arbitrarily) fall
// out of heap.Push/Pop's insertion order.
type hintHeap []Hint

func (h hintHeap) Len() int            { return len(h) }
func (h hintHeap) Less(i, j int) bool  { return h[i].FreeSpaceOffset < h[j].FreeSpaceOffset }
func (h hintHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hintHeap) Push(x any)         { *h = append(*h, x.(Hint)) }
func (h *hintHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
