// Package task defines the unit of I/O work the performer hands to the
// interpreter, and the per-block bookkeeping (TasksHead) that keeps a
// block's tasks serialized.
package task

import "github.com/behrlich/blockwheel/internal/block"

// CommitType distinguishes a plain write from one that also extends the
// file's logical tail.
type CommitType int

const (
	// CommitOnly marks a write whose extent is already covered by the file.
	CommitOnly CommitType = iota
	// CommitAndEof marks a write that also advances the file's end-of-data
	// offset once durable.
	CommitAndEof
)

func (c CommitType) String() string {
	if c == CommitAndEof {
		return "CommitAndEof"
	}
	return "CommitOnly"
}

// WriteContext tags the originator of a WriteBlock task: either an external
// caller (carrying an opaque context token) or the defrag pipeline (which
// never needs one, since the follow-up write doesn't reply to anyone).
type WriteContext interface{ isWriteContext() }

// ExternalWriteContext is a write requested directly by a client.
type ExternalWriteContext struct {
	Context any
}

// DefragWriteContext is the follow-up write of a defrag move, relocating a
// block's payload to its new home.
type DefragWriteContext struct{}

func (ExternalWriteContext) isWriteContext() {}
func (DefragWriteContext) isWriteContext()   {}

// ReadContext tags the originator of a ReadBlock task.
type ReadContext interface{ isReadContext() }

// ExternalReadContext is a read requested directly by a client.
type ExternalReadContext struct {
	Context any
}

// DefragReadContext is the first step of a defrag move: read the live
// payload before the original is deleted. SpaceKey names the free-space
// region this move is meant to collapse.
type DefragReadContext struct {
	SpaceKey any
}

func (ExternalReadContext) isReadContext() {}
func (DefragReadContext) isReadContext()   {}

// DeleteContext tags the originator of a DeleteBlock task.
type DeleteContext interface{ isDeleteContext() }

// ExternalDeleteContext is a delete requested directly by a client.
type ExternalDeleteContext struct {
	Context any
}

// DefragDeleteContext is the second step of a defrag move: remove the
// original once its payload has been cached for relocation.
type DefragDeleteContext struct {
	SpaceKey any
}

func (ExternalDeleteContext) isDeleteContext() {}
func (DefragDeleteContext) isDeleteContext()   {}

// Kind is the sum type of work a Task can describe.
type Kind interface{ isKind() }

// WriteBlock asks the interpreter to write bytes at the offset carried
// alongside the task.
type WriteBlock struct {
	Bytes   block.Bytes
	Commit  CommitType
	Context WriteContext
}

// ReadBlock asks the interpreter to fill Bytes with the block's payload.
type ReadBlock struct {
	Header  block.Header
	Bytes   block.BytesMut
	Context ReadContext
}

// DeleteBlock asks the interpreter to erase a block's on-disk record.
// Length is the total on-disk span (header/trailer overhead plus payload)
// the schema allocated for this block, since a delete task carries no
// payload of its own to infer it from.
type DeleteBlock struct {
	Length  uint64
	Context DeleteContext
}

// Flush asks the interpreter to durably sync everything written so far. It
// isn't associated with any block id.
type Flush struct {
	Context any
}

func (WriteBlock) isKind()  {}
func (ReadBlock) isKind()   {}
func (DeleteBlock) isKind() {}
func (Flush) isKind()       {}

// Task is one unit of interpreter work against a single block.
type Task struct {
	BlockID block.Id
	Kind    Kind
}

// TasksHead is the per-block FIFO of pending tasks, plus the coherence flag
// that says whether this block currently has an entry in the global ready
// queue. IsQueued must only ever be true while the FIFO (or the in-flight
// slot) actually owns at least one task for this block — see
// internal/task/queue for the invariant this protects.
type TasksHead struct {
	pending  []Task
	IsQueued bool
}

// PushBack appends a task to this block's FIFO.
func (h *TasksHead) PushBack(t Task) {
	h.pending = append(h.pending, t)
}

// PeekFront returns the oldest pending task without removing it, if any.
func (h *TasksHead) PeekFront() (Task, bool) {
	if len(h.pending) == 0 {
		return Task{}, false
	}
	return h.pending[0], true
}

// PopFront removes and returns the oldest pending task, if any.
func (h *TasksHead) PopFront() (Task, bool) {
	if len(h.pending) == 0 {
		return Task{}, false
	}
	t := h.pending[0]
	h.pending = h.pending[1:]
	return t, true
}

// Len reports the number of tasks still waiting in this block's FIFO.
func (h *TasksHead) Len() int {
	return len(h.pending)
}

// Drain removes and returns every task still queued for this block, oldest
// first. The performer's delete fan-out does not use it; it pops tasks one
// at a time with PopFront.
func (h *TasksHead) Drain() []Task {
	pending := h.pending
	h.pending = nil
	return pending
}
