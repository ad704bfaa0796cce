// Package schema declares the placement/free-space oracle the performer
// consults on every request and task completion, plus a reference
// in-memory implementation so the performer can be exercised end to end.
//
// The performer never reaches into a schema's internals: everything it
// needs crosses the Oracle interface as an idempotent query or update,
// exactly as spec'd — the performer only classifies the outcome, it never
// decides placement itself.
package schema

import (
	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/task"
)

// DefragOp is a hint returned alongside several oracle outcomes, naming a
// free-space region that's worth prioritizing for the next relocation.
// SpaceKey is opaque to the performer: it is handed back to PickDefragSpaceKey
// and the *TaskDoneDefrag methods verbatim.
type DefragOp interface{ isDefragOp() }

// DefragOpNone means the triggering event didn't open up a new relocation
// opportunity.
type DefragOpNone struct{}

// DefragOpQueue names a free-space region at FreeSpaceOffset worth
// collapsing, identified by the opaque SpaceKey.
type DefragOpQueue struct {
	FreeSpaceOffset uint64
	SpaceKey        any
}

func (DefragOpNone) isDefragOp()  {}
func (DefragOpQueue) isDefragOp() {}

// BlockEntry is a live block's record: where it lives, its header, the
// FIFO of tasks still pending against it, and (only during a defrag move)
// the cached payload awaiting delivery to any external reader queued
// behind the move.
type BlockEntry struct {
	Offset uint64
	Header block.Header
	// Length is the total on-disk span this block occupies (header/trailer
	// overhead plus payload), needed by delete tasks to know how much to
	// erase without the schema's internal overhead constant leaking out.
	Length        uint64
	TasksHead     *task.TasksHead
	CachedPayload *block.Bytes
}

// WriteOutcome is the result of ProcessWriteBlockRequest.
type WriteOutcome interface{ isWriteOutcome() }

// WritePerform means placement succeeded; BlockID is newly assigned, Offset
// is where the interpreter must write, and TasksHead is the (initially
// empty) FIFO head for the new block.
type WritePerform struct {
	BlockID   block.Id
	Offset    uint64
	Commit    task.CommitType
	DefragOp  DefragOp
	TasksHead *task.TasksHead
}

// WriteQueuePendingDefrag means the write doesn't fit right now but could
// once defrag frees enough contiguous space; the performer queues it on
// defrag.pending (only reachable when defrag is configured — see the
// defragEnabled parameter of New).
type WriteQueuePendingDefrag struct{}

// WriteReplyNoSpaceLeft means the write can never fit (oversized relative
// to total capacity, or defrag isn't configured).
type WriteReplyNoSpaceLeft struct{}

func (WritePerform) isWriteOutcome()             {}
func (WriteQueuePendingDefrag) isWriteOutcome()  {}
func (WriteReplyNoSpaceLeft) isWriteOutcome()    {}

// ReadOutcome is the result of ProcessReadBlockRequest.
type ReadOutcome interface{ isReadOutcome() }

// ReadPerform means the block exists but isn't cached; the performer must
// lend a buffer and dispatch a ReadBlock task at Offset.
type ReadPerform struct {
	Offset    uint64
	Header    block.Header
	TasksHead *task.TasksHead
}

// ReadCached means the schema already holds the payload (a defrag move's
// stashed copy) and the read can be answered without I/O. The LRU cache is
// consulted separately by the performer on ReadPerform.
type ReadCached struct {
	Bytes block.Bytes
}

// ReadNotFound means no such block exists.
type ReadNotFound struct{}

func (ReadPerform) isReadOutcome()   {}
func (ReadCached) isReadOutcome()    {}
func (ReadNotFound) isReadOutcome()  {}

// DeleteOutcome is the result of ProcessDeleteBlockRequest.
type DeleteOutcome interface{ isDeleteOutcome() }

// DeletePerform means the block exists; the performer must dispatch a
// DeleteBlock task at Offset.
type DeletePerform struct {
	Offset    uint64
	Length    uint64
	TasksHead *task.TasksHead
}

// DeleteNotFound means no such block exists.
type DeleteNotFound struct{}

func (DeletePerform) isDeleteOutcome()  {}
func (DeleteNotFound) isDeleteOutcome() {}

// DeleteTaskDoneDefragOutcome is the result of
// ProcessDeleteBlockTaskDoneDefrag: where and how to write the relocated
// payload.
type DeleteTaskDoneDefragOutcome struct {
	Offset   uint64
	Commit   task.CommitType
	DefragOp DefragOp
}

// Stats answers an Info request: a snapshot of the schema's bookkeeping.
type Stats struct {
	Size          uint64
	BlockCount    int
	FreeBytes     uint64
	OccupiedBytes uint64
}

// Oracle is the placement/free-space decision authority the performer
// consults. Every method is idempotent with respect to repeated identical
// inputs — the performer relies on this to replay DoneTask continuations
// across pokes without re-deciding placement.
type Oracle interface {
	ProcessWriteBlockRequest(payload block.Bytes) WriteOutcome
	ProcessReadBlockRequest(bid block.Id) ReadOutcome
	ProcessDeleteBlockRequest(bid block.Id) DeleteOutcome

	ProcessWriteBlockTaskDone(bid block.Id)
	// ProcessReadBlockTaskDone records a completed read and reports whether
	// the payload's checksum matches the header recorded at write time.
	ProcessReadBlockTaskDone(bid block.Id, payload block.Bytes) (corrupt bool)
	ProcessDeleteBlockTaskDone(bid block.Id) (BlockEntry, DefragOp)
	// ProcessDeleteBlockTaskDoneDefrag decides where the relocated payload
	// should land once the original has been deleted. payload is the bytes
	// the performer cached from the preceding defrag read; tasksHead is the
	// same FIFO head the block had before the move (the performer retains
	// it across the move so that readers queued mid-relocation keep working
	// against one consistent object). The oracle stages the new placement;
	// it is finalized by a subsequent ProcessWriteBlockTaskDone(bid) call,
	// exactly like a regular write completion.
	ProcessDeleteBlockTaskDoneDefrag(bid block.Id, spaceKey any, payload block.Bytes, tasksHead *task.TasksHead) DeleteTaskDoneDefragOutcome

	// StashDefragPayload records the payload a defrag read just collected
	// for bid, so a reader queued behind the in-flight move (or the move's
	// own follow-up delete/write) can retrieve it. It asserts the block had
	// no cached payload already stashed.
	StashDefragPayload(bid block.Id, payload block.Bytes)

	// PickDefragSpaceKey resolves a queued free-space hint to the block
	// that should be relocated to help collapse it, if one still exists.
	PickDefragSpaceKey(spaceKey any) (BlockEntry, bool)

	// Entry returns a live block's current record, including any stashed
	// defrag payload.
	Entry(bid block.Id) (BlockEntry, bool)

	BlockOffsetTasksHead(bid block.Id) (offset uint64, head *task.TasksHead, ok bool)
	BlockTasksHead(bid block.Id) (*task.TasksHead, bool)

	Stats() Stats
}
