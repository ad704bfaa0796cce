package performer

import (
	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/schema"
)

// bgTaskState is the sum type of the single in-flight interpreter slot.
type bgTaskState interface{ isBgTaskState() }

// bgIdle means no task is in flight or awaited.
type bgIdle struct{}

// bgAwait means a task for BlockID has just been dispatched to the caller
// via InterpretTask and has not yet been confirmed accepted. Context is the
// originating task's context (e.g. task.ExternalWriteContext vs.
// task.DefragWriteContext), carried forward from dispatch time so it can be
// attached once the task moves to bgInProgress. Flush marks a synthetic
// flush dispatch, which has no associated block.
type bgAwait struct {
	BlockID block.Id
	Context any
	Flush   bool
}

// bgInProgress means a task for BlockID has been accepted by the
// interpreter and the caller is expected to supply its completion on a
// future poke. InterpCtx is the interpreter's own acceptance token, handed
// back verbatim as PollRequestAndInterpreter.InterpContext each time the
// slot is re-polled. interp.TaskDone itself reports no context, so
// incoming_interpreter branches on Context rather than asking the driver
// to disambiguate externally.
type bgInProgress struct {
	BlockID   block.Id
	InterpCtx any
	Context   any
	Flush     bool
}

func (bgIdle) isBgTaskState()       {}
func (bgAwait) isBgTaskState()      {}
func (bgInProgress) isBgTaskState() {}

// bgTask tracks the interpreter's logical head position (for locality
// scheduling) and what, if anything, currently occupies the single
// in-flight slot.
type bgTask struct {
	CurrentOffset uint64
	State         bgTaskState
}

// doneTask is the single-slot continuation the performer uses to resume
// multi-event fan-out across pokes (§9 design note).
type doneTask interface{ isDoneTask() }

// doneNone means all deferred fan-out has been drained.
type doneNone struct{}

// doneReenqueue means the named block's FIFO might have more work that
// isn't yet reflected in the ready queue.
type doneReenqueue struct {
	BlockID block.Id
}

// doneReadBlock carries a just-completed read's bytes so that any other
// queued reader of the same block can be satisfied without a second task.
type doneReadBlock struct {
	BlockID block.Id
	Bytes   block.Bytes
}

// doneDeleteBlockRegular carries the just-removed entry so the performer
// can fan out cancellations (NotFound) to anything still queued against
// the now-gone block.
type doneDeleteBlockRegular struct {
	BlockID block.Id
	Entry   schema.BlockEntry
}

// doneDeleteBlockDefrag carries the relocated payload so that any external
// reader queued during the move is satisfied with it instead of a
// transient NotFound.
type doneDeleteBlockDefrag struct {
	BlockID block.Id
	Bytes   block.Bytes
}

func (doneNone) isDoneTask()               {}
func (doneReenqueue) isDoneTask()           {}
func (doneReadBlock) isDoneTask()           {}
func (doneDeleteBlockRegular) isDoneTask()  {}
func (doneDeleteBlockDefrag) isDoneTask()   {}
