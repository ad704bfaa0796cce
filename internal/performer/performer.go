package performer

import (
	"fmt"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/defrag"
	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/lru"
	"github.com/behrlich/blockwheel/internal/pool"
	"github.com/behrlich/blockwheel/internal/schema"
	"github.com/behrlich/blockwheel/internal/task"
	"github.com/behrlich/blockwheel/internal/task/queue"
)

// Performer is the deterministic control core. It owns no threads, locks,
// or timers: Step and the continuation methods on the tokens it returns are
// the entire interface, and every call is synchronous and finite.
type Performer struct {
	oracle schema.Oracle
	cache  *lru.Cache
	pool   *pool.Blocks
	ready  *queue.Ready
	queues *defrag.Queues
	inflt  *defrag.InProgress

	// pendingFlush is a FIFO of flush requests waiting for the single
	// in-flight interpreter slot; drained ahead of the ready queue so a
	// flush can't be starved by a steady stream of block traffic.
	pendingFlush []FlushRequest

	bg   bgTask
	done doneTask
}

// New constructs a Performer over the given collaborators. defragLimit <= 0
// disables defrag entirely (matching §6: "if absent, defrag is disabled").
func New(oracle schema.Oracle, cache *lru.Cache, blocks *pool.Blocks, defragLimit int) *Performer {
	return &Performer{
		oracle: oracle,
		cache:  cache,
		pool:   blocks,
		ready:  queue.New(),
		queues: defrag.New(),
		inflt:  defrag.NewInProgress(defragLimit),
		bg:     bgTask{State: bgIdle{}},
		done:   doneNone{},
	}
}

// PendingWritesLen reports how many writes are parked waiting for defrag to
// free space. It exists so a driver can implement the retry-on-free-space
// policy §4.4 assigns to the driver rather than the performer, without
// reaching into internal/defrag itself.
func (p *Performer) PendingWritesLen() int {
	return p.queues.PendingLen()
}

func invariantViolation(format string, args ...any) {
	panic(fmt.Sprintf("performer: invariant violation: "+format, args...))
}

// Step is incoming_poke: the performer's single step function.
func (p *Performer) Step() Op {
	if op, handled := p.drainDone(); handled {
		return op
	}
	p.topUpDefrag()
	return p.dispatchBackground()
}

// --- Step 1: drain DoneTask -------------------------------------------------

func (p *Performer) drainDone() (Op, bool) {
	switch d := p.done.(type) {
	case doneNone:
		return nil, false

	case doneReenqueue:
		p.done = doneNone{}
		if offset, head, ok := p.oracle.BlockOffsetTasksHead(d.BlockID); ok {
			p.maybeScheduleReady(d.BlockID, offset, head)
		}
		return Idle{}, true

	case doneReadBlock:
		return p.drainReadBlock(d), true

	case doneDeleteBlockRegular:
		return p.drainDeleteRegular(d), true

	case doneDeleteBlockDefrag:
		return p.drainDeleteDefrag(d), true

	default:
		invariantViolation("unknown DoneTask variant %T", d)
		panic("unreachable")
	}
}

// drainReadBlock looks at whatever is queued immediately behind a read that
// just completed. A queued ReadBlock reuses the just-read bytes directly
// (repeated until none remain). Anything else queued there is never another
// read waiting on this same payload: a WriteBlock can't coexist with an
// in-flight read for the same block (invariant), while a DeleteBlock can —
// the defrag pipeline's own follow-up delete, queued by the read it trails.
// That case, and the empty case, both fall through to Reenqueue so the
// remaining task gets scheduled through the normal ready-queue path instead
// of being mistaken for another reader.
func (p *Performer) drainReadBlock(d doneReadBlock) Op {
	head, ok := p.oracle.BlockTasksHead(d.BlockID)
	if ok {
		if t, ok := head.PeekFront(); ok {
			switch k := t.Kind.(type) {
			case task.ReadBlock:
				head.PopFront()
				p.pool.Repay(k.Bytes)
				p.done = doneReadBlock{BlockID: d.BlockID, Bytes: d.Bytes}
				return p.proceedReadBlockTaskDone(d.BlockID, d.Bytes, k.Context)
			case task.WriteBlock:
				invariantViolation("write task queued behind an in-flight read for block %s", d.BlockID)
			}
		}
	}
	p.done = doneReenqueue{BlockID: d.BlockID}
	return Idle{}
}

func (p *Performer) drainDeleteRegular(d doneDeleteBlockRegular) Op {
	head := d.Entry.TasksHead
	for {
		t, ok := head.PopFront()
		if !ok {
			p.done = doneNone{}
			return Idle{}
		}
		switch k := t.Kind.(type) {
		case task.WriteBlock:
			invariantViolation("write task queued behind a deleted block %s", d.BlockID)

		case task.ReadBlock:
			switch ctx := k.Context.(type) {
			case task.ExternalReadContext:
				p.pool.Repay(k.Bytes)
				p.done = d
				return EventOp{Event: ReadBlockNotFoundEvent{Context: ctx.Context}}
			case task.DefragReadContext:
				p.pool.Repay(k.Bytes)
				continue
			default:
				invariantViolation("unknown read context %T", ctx)
			}

		case task.DeleteBlock:
			switch ctx := k.Context.(type) {
			case task.ExternalDeleteContext:
				p.done = d
				return EventOp{Event: DeleteBlockNotFoundEvent{Context: ctx.Context}}
			case task.DefragDeleteContext:
				continue
			default:
				invariantViolation("unknown delete context %T", ctx)
			}

		default:
			invariantViolation("unknown task kind %T", k)
		}
	}
	panic("unreachable")
}

func (p *Performer) drainDeleteDefrag(d doneDeleteBlockDefrag) Op {
	head, ok := p.oracle.BlockTasksHead(d.BlockID)
	if !ok {
		p.done = doneReenqueue{BlockID: d.BlockID}
		return Idle{}
	}
	t, ok := head.PeekFront()
	if !ok {
		p.done = doneReenqueue{BlockID: d.BlockID}
		return Idle{}
	}
	if rb, isRead := t.Kind.(task.ReadBlock); isRead {
		ext, isExt := rb.Context.(task.ExternalReadContext)
		if !isExt {
			invariantViolation("concurrent defrag read queued on block %s already under relocation", d.BlockID)
		}
		head.PopFront()
		p.pool.Repay(rb.Bytes)
		p.done = d
		return EventOp{Event: ReadBlockDoneEvent{Context: ext.Context, Bytes: d.Bytes}}
	}
	// A write (the follow-up relocation write) or a delete queued after the
	// move started is a legitimate continuation, not a cancellation target.
	// Leave it queued and let normal dispatch pick it up.
	p.done = doneReenqueue{BlockID: d.BlockID}
	return Idle{}
}

// --- Step 2: top up defrag --------------------------------------------------

func (p *Performer) topUpDefrag() {
	for p.inflt.HasRoom() {
		hint, ok := p.queues.PopHint()
		if !ok {
			return
		}
		entry, ok := p.oracle.PickDefragSpaceKey(hint.SpaceKey)
		if !ok {
			continue
		}
		buf := p.pool.Lend(int(entry.Header.PayloadLen))
		bid := entry.Header.BlockID
		t := task.Task{
			BlockID: bid,
			Kind: task.ReadBlock{
				Header:  entry.Header,
				Bytes:   buf,
				Context: task.DefragReadContext{SpaceKey: hint.SpaceKey},
			},
		}
		p.pushTask(bid, entry.Offset, entry.TasksHead, t)
		p.inflt.Increment()
	}
}

// --- Step 3: background task dispatch --------------------------------------

func (p *Performer) dispatchBackground() Op {
	switch st := p.bg.State.(type) {
	case bgIdle:
		if len(p.pendingFlush) > 0 {
			r := p.pendingFlush[0]
			p.pendingFlush = p.pendingFlush[1:]
			t := task.Task{Kind: task.Flush{Context: r.Context}}
			p.bg.State = bgAwait{Context: r.Context, Flush: true}
			return &InterpretTask{Offset: p.bg.CurrentOffset, Task: t, Next: &InterpretTaskToken{p: p}}
		}

		bid, ok := p.ready.Pop(p.bg.CurrentOffset)
		if !ok {
			return &PollRequest{Next: &PollRequestToken{p: p}}
		}
		offset, head, ok := p.oracle.BlockOffsetTasksHead(bid)
		if !ok {
			invariantViolation("ready queue named unknown block %s", bid)
		}
		t, ok := head.PopFront()
		if !ok {
			invariantViolation("ready queue named block %s with an empty FIFO", bid)
		}
		head.IsQueued = false
		p.bg.State = bgAwait{BlockID: bid, Context: taskContext(t.Kind)}
		return &InterpretTask{Offset: offset, Task: t, Next: &InterpretTaskToken{p: p}}

	case bgInProgress:
		// Still waiting on the interpreter; state stays InProgress (only
		// incoming_interpreter is allowed to move it back to Idle) so a
		// later completion can still find it here even if the driver feeds
		// one or more requests through this same token first.
		return &PollRequestAndInterpreter{InterpContext: st.InterpCtx, Next: &PollRequestAndInterpreterToken{p: p}}

	case bgAwait:
		invariantViolation("dispatchBackground called while bg_task.state == Await{%s}", st.BlockID)
		panic("unreachable")

	default:
		invariantViolation("unknown bg_task.state variant %T", st)
		panic("unreachable")
	}
}

// taskContext extracts the originating context from a dispatched task, so
// bg_task can carry it across the Await/InProgress handoff: interp.TaskDone
// itself reports no context, so whatever decides what a completion means
// must remember it from dispatch time instead.
func taskContext(k task.Kind) any {
	switch kind := k.(type) {
	case task.WriteBlock:
		return kind.Context
	case task.ReadBlock:
		return kind.Context
	case task.DeleteBlock:
		return kind.Context
	case task.Flush:
		return kind.Context
	default:
		invariantViolation("unknown task kind %T", k)
		panic("unreachable")
	}
}

// taskAccepted is InterpretTaskToken.TaskAccepted.
func (p *Performer) taskAccepted(interpCtx any) Op {
	await, ok := p.bg.State.(bgAwait)
	if !ok {
		invariantViolation("task_accepted called outside Await state (got %T)", p.bg.State)
	}
	p.bg.State = bgInProgress{BlockID: await.BlockID, InterpCtx: interpCtx, Context: await.Context, Flush: await.Flush}
	return Idle{}
}

// --- incoming_request --------------------------------------------------------

func (p *Performer) incomingRequest(req Request) Op {
	switch r := req.(type) {
	case InfoRequest:
		return EventOp{Event: InfoEvent{Context: r.Context, Stats: p.oracle.Stats()}}

	case FlushRequest:
		return p.incomingFlush(r)

	case LendBlockRequest:
		buf := p.pool.Lend(r.Size)
		return EventOp{Event: LendBlockEvent{Context: r.Context, Bytes: buf}}

	case RepayBlockRequest:
		p.pool.Repay(r.Bytes)
		return Idle{}

	case WriteBlockRequest:
		return p.incomingWrite(r)

	case ReadBlockRequest:
		return p.incomingRead(r)

	case DeleteBlockRequest:
		return p.incomingDelete(r)

	default:
		invariantViolation("unknown request variant %T", req)
		panic("unreachable")
	}
}

// incomingFlush just enqueues the request; dispatchBackground's bgIdle case
// drains pendingFlush ahead of the ready queue once the in-flight slot frees
// up, since a flush has no target block of its own to serialize against.
func (p *Performer) incomingFlush(r FlushRequest) Op {
	p.pendingFlush = append(p.pendingFlush, r)
	return Idle{}
}

func (p *Performer) incomingWrite(r WriteBlockRequest) Op {
	switch outcome := p.oracle.ProcessWriteBlockRequest(r.Bytes).(type) {
	case schema.WritePerform:
		t := task.Task{
			BlockID: outcome.BlockID,
			Kind: task.WriteBlock{
				Bytes:   r.Bytes,
				Commit:  outcome.Commit,
				Context: task.ExternalWriteContext{Context: r.Context},
			},
		}
		p.pushDefragHint(outcome.DefragOp)
		p.pushTask(outcome.BlockID, outcome.Offset, outcome.TasksHead, t)
		return Idle{}

	case schema.WriteQueuePendingDefrag:
		p.queues.PushPending(defrag.PendingWrite{Bytes: r.Bytes, Context: r.Context})
		return Idle{}

	case schema.WriteReplyNoSpaceLeft:
		return EventOp{Event: WriteBlockNoSpaceLeftEvent{Context: r.Context}}

	default:
		invariantViolation("unknown write outcome %T", outcome)
		panic("unreachable")
	}
}

func (p *Performer) incomingRead(r ReadBlockRequest) Op {
	switch outcome := p.oracle.ProcessReadBlockRequest(r.BlockID).(type) {
	case schema.ReadPerform:
		if cached, ok := p.cache.Get(r.BlockID); ok {
			return EventOp{Event: ReadBlockDoneEvent{Context: r.Context, Bytes: cached}}
		}
		buf := p.pool.Lend(int(outcome.Header.PayloadLen))
		t := task.Task{
			BlockID: r.BlockID,
			Kind: task.ReadBlock{
				Header:  outcome.Header,
				Bytes:   buf,
				Context: task.ExternalReadContext{Context: r.Context},
			},
		}
		p.pushTask(r.BlockID, outcome.Offset, outcome.TasksHead, t)
		return Idle{}

	case schema.ReadCached:
		return EventOp{Event: ReadBlockDoneEvent{Context: r.Context, Bytes: outcome.Bytes}}

	case schema.ReadNotFound:
		return EventOp{Event: ReadBlockNotFoundEvent{Context: r.Context}}

	default:
		invariantViolation("unknown read outcome %T", outcome)
		panic("unreachable")
	}
}

func (p *Performer) incomingDelete(r DeleteBlockRequest) Op {
	switch outcome := p.oracle.ProcessDeleteBlockRequest(r.BlockID).(type) {
	case schema.DeletePerform:
		t := task.Task{
			BlockID: r.BlockID,
			Kind: task.DeleteBlock{
				Length:  outcome.Length,
				Context: task.ExternalDeleteContext{Context: r.Context},
			},
		}
		p.pushTask(r.BlockID, outcome.Offset, outcome.TasksHead, t)
		return Idle{}

	case schema.DeleteNotFound:
		return EventOp{Event: DeleteBlockNotFoundEvent{Context: r.Context}}

	default:
		invariantViolation("unknown delete outcome %T", outcome)
		panic("unreachable")
	}
}

// --- incoming_interpreter ----------------------------------------------------

func (p *Performer) incomingInterpreter(done completion) Op {
	ip, ok := p.bg.State.(bgInProgress)
	if !ok {
		invariantViolation("interpreter completion delivered outside InProgress state (got %T)", p.bg.State)
	}
	p.bg = bgTask{CurrentOffset: done.Offset, State: bgIdle{}}

	if ip.Flush {
		if _, ok := done.Kind.(interp.FlushDone); !ok {
			invariantViolation("flush dispatch completed with non-flush kind %T", done.Kind)
		}
		return EventOp{Event: FlushEvent{Context: ip.Context}}
	}

	switch kind := done.Kind.(type) {
	case interp.WriteDone:
		return p.onWriteDone(ip.BlockID, ip.Context)
	case interp.ReadDone:
		return p.onReadDone(ip.BlockID, kind.Bytes, ip.Context)
	case interp.DeleteDone:
		return p.onDeleteDone(ip.BlockID, ip.Context)
	default:
		invariantViolation("unknown interpreter completion kind %T", kind)
		panic("unreachable")
	}
}

func (p *Performer) onWriteDone(bid block.Id, ctx any) Op {
	p.oracle.ProcessWriteBlockTaskDone(bid)
	p.done = doneReenqueue{BlockID: bid}

	switch c := ctx.(type) {
	case task.ExternalWriteContext:
		return EventOp{Event: WriteBlockDoneEvent{Context: c.Context, BlockID: bid}}
	case task.DefragWriteContext:
		p.inflt.Decrement()
		return Idle{}
	default:
		invariantViolation("unknown write context %T", ctx)
		panic("unreachable")
	}
}

func (p *Performer) onReadDone(bid block.Id, buf block.BytesMut, ctx any) Op {
	bytes := buf.Freeze()
	p.cache.Insert(bid, bytes)

	if corrupt := p.oracle.ProcessReadBlockTaskDone(bid, bytes); corrupt {
		p.cache.Invalidate(bid)
		p.done = doneReenqueue{BlockID: bid}
		if ext, ok := ctx.(task.ExternalReadContext); ok {
			return EventOp{Event: ReadBlockCorruptEvent{Context: ext.Context, BlockID: bid}}
		}
		return Idle{}
	}

	readCtx, ok := ctx.(task.ReadContext)
	if !ok {
		invariantViolation("read completion carried non-read context %T", ctx)
	}

	// Set before resolving this task's own continuation so that any reader
	// still queued behind it (drainReadBlock) gets serviced on a later poke
	// without a second interpreter round trip.
	p.done = doneReadBlock{BlockID: bid, Bytes: bytes}
	return p.proceedReadBlockTaskDone(bid, bytes, readCtx)
}

func (p *Performer) onDeleteDone(bid block.Id, ctx any) Op {
	p.cache.Invalidate(bid)

	switch c := ctx.(type) {
	case task.ExternalDeleteContext:
		entry, hint := p.oracle.ProcessDeleteBlockTaskDone(bid)
		p.pushDefragHint(hint)
		p.done = doneDeleteBlockRegular{BlockID: bid, Entry: entry}
		return EventOp{Event: DeleteBlockDoneEvent{Context: c.Context, BlockID: bid}}

	case task.DefragDeleteContext:
		return p.completeDefragDelete(bid, c.SpaceKey)

	default:
		invariantViolation("unknown delete context %T", ctx)
		panic("unreachable")
	}
}

// completeDefragDelete is the second step of a defrag move: the original
// has just been erased, so the payload stashed during the preceding read
// (StashDefragPayload) can be written out to its new home.
func (p *Performer) completeDefragDelete(bid block.Id, spaceKey any) Op {
	entry, ok := p.oracle.Entry(bid)
	if !ok || entry.CachedPayload == nil {
		invariantViolation("defrag delete completed for block %s with no stashed payload", bid)
	}
	payload := *entry.CachedPayload
	head := entry.TasksHead

	outcome := p.oracle.ProcessDeleteBlockTaskDoneDefrag(bid, spaceKey, payload, head)
	p.pushDefragHint(outcome.DefragOp)

	t := task.Task{
		BlockID: bid,
		Kind: task.WriteBlock{
			Bytes:   payload,
			Commit:  outcome.Commit,
			Context: task.DefragWriteContext{},
		},
	}
	p.pushTask(bid, outcome.Offset, head, t)

	p.done = doneDeleteBlockDefrag{BlockID: bid, Bytes: payload}
	return Idle{}
}

// --- proceed_read_block_task_done -------------------------------------------

func (p *Performer) proceedReadBlockTaskDone(bid block.Id, bytes block.Bytes, ctx task.ReadContext) Op {
	switch c := ctx.(type) {
	case task.ExternalReadContext:
		return EventOp{Event: ReadBlockDoneEvent{Context: c.Context, Bytes: bytes}}

	case task.DefragReadContext:
		entry, ok := p.oracle.Entry(bid)
		if !ok {
			invariantViolation("defrag read completed for unknown block %s", bid)
		}
		p.oracle.StashDefragPayload(bid, bytes)
		entry.TasksHead.PushBack(task.Task{
			BlockID: bid,
			Kind: task.DeleteBlock{
				Length:  entry.Length,
				Context: task.DefragDeleteContext{SpaceKey: c.SpaceKey},
			},
		})
		return Idle{}

	default:
		invariantViolation("unknown read context %T", ctx)
		panic("unreachable")
	}
}

// --- tasks_queue_push --------------------------------------------------------

// pushTask implements §4.3's push discipline: append-only when the block is
// already in flight or already queued, otherwise insert into the ready
// queue.
func (p *Performer) pushTask(bid block.Id, offset uint64, head *task.TasksHead, t task.Task) {
	switch st := p.bg.State.(type) {
	case bgAwait:
		if !st.Flush && st.BlockID == bid {
			head.PushBack(t)
			return
		}
	case bgInProgress:
		if !st.Flush && st.BlockID == bid {
			head.PushBack(t)
			return
		}
	}

	head.PushBack(t)
	p.maybeScheduleReady(bid, offset, head)
}

func (p *Performer) maybeScheduleReady(bid block.Id, offset uint64, head *task.TasksHead) {
	if head.IsQueued || head.Len() == 0 {
		return
	}
	switch st := p.bg.State.(type) {
	case bgAwait:
		if !st.Flush && st.BlockID == bid {
			return
		}
	case bgInProgress:
		if !st.Flush && st.BlockID == bid {
			return
		}
	}
	p.ready.Push(bid, offset)
	head.IsQueued = true
}

func (p *Performer) pushDefragHint(op schema.DefragOp) {
	if q, ok := op.(schema.DefragOpQueue); ok {
		p.queues.PushHint(defrag.Hint{FreeSpaceOffset: q.FreeSpaceOffset, SpaceKey: q.SpaceKey})
	}
}
