package performer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/interp/mem"
	"github.com/behrlich/blockwheel/internal/lru"
	"github.com/behrlich/blockwheel/internal/pool"
	"github.com/behrlich/blockwheel/internal/schema"
	"github.com/behrlich/blockwheel/internal/task"
)

// harness wires a Performer to a real in-memory interpreter and drives the
// Step/token protocol the way Engine does, but exposes each individual
// request's Event directly so tests can interleave requests mid-flight.
type harness struct {
	t    *testing.T
	perf *Performer
	mem  *mem.Interp
}

func newHarness(t *testing.T, capacity uint64, defragLimit int) *harness {
	t.Helper()
	oracle := schema.New(capacity, defragLimit > 0)
	h := &harness{
		t:    t,
		perf: New(oracle, lru.New(lru.DefaultCapacity), pool.New(), defragLimit),
		mem:  mem.New(int64(capacity)),
	}
	t.Cleanup(func() { h.mem.Close() })
	return h
}

// stepPastIdle drives Step, discarding leading Idle results, until it gets
// an Op a test can act on. h.submit deliberately stops at the first Event
// it sees, which can leave a DoneTask continuation (e.g. doneReenqueue
// after a write) still pending — the next real Op only appears after that
// drains.
func (h *harness) stepPastIdle() Op {
	h.t.Helper()
	op := h.perf.Step()
	for {
		if _, idle := op.(Idle); !idle {
			return op
		}
		op = h.perf.Step()
	}
}

// submit drives Step until req has produced its Event, servicing any
// background interpreter work along the way with the real mem interpreter.
func (h *harness) submit(req Request) Event {
	h.t.Helper()
	submitted := false
	op := h.perf.Step()
	for {
		switch o := op.(type) {
		case Idle:
			op = h.perf.Step()
		case EventOp:
			return o.Event
		case *PollRequest:
			require.False(h.t, submitted, "performer asked for a second request before replying to the first")
			submitted = true
			op = o.Next.IncomingRequest(req)
		case *PollRequestAndInterpreter:
			if !submitted {
				submitted = true
				op = o.Next.IncomingRequest(req)
				continue
			}
			done := <-h.mem.Completions()
			op = o.Next.IncomingInterpreter(done)
		case *InterpretTask:
			acceptance, err := h.mem.Submit(o.Offset, o.Task)
			require.NoError(h.t, err)
			op = o.Next.TaskAccepted(acceptance)
		default:
			h.t.Fatalf("unexpected op %T", op)
		}
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	h := newHarness(t, 4096, 0)

	ev := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("hello")), Context: 1})
	done, ok := ev.(WriteBlockDoneEvent)
	require.True(t, ok, "expected WriteBlockDoneEvent, got %T", ev)
	assert.Equal(t, 1, done.Context)

	ev = h.submit(ReadBlockRequest{BlockID: done.BlockID, Context: 2})
	read, ok := ev.(ReadBlockDoneEvent)
	require.True(t, ok, "expected ReadBlockDoneEvent, got %T", ev)
	assert.Equal(t, "hello", string(read.Bytes.Bytes()))
}

func TestWriteThenDeleteThenReadNotFound(t *testing.T) {
	h := newHarness(t, 4096, 0)

	ev := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("gone soon")), Context: 1})
	write := ev.(WriteBlockDoneEvent)

	ev = h.submit(DeleteBlockRequest{BlockID: write.BlockID, Context: 2})
	_, ok := ev.(DeleteBlockDoneEvent)
	require.True(t, ok, "expected DeleteBlockDoneEvent, got %T", ev)

	ev = h.submit(ReadBlockRequest{BlockID: write.BlockID, Context: 3})
	assert.IsType(t, ReadBlockNotFoundEvent{}, ev)
}

func TestDeleteUnknownBlockNotFound(t *testing.T) {
	h := newHarness(t, 4096, 0)
	ev := h.submit(DeleteBlockRequest{BlockID: block.Id(999), Context: 1})
	assert.IsType(t, DeleteBlockNotFoundEvent{}, ev)
}

func TestWriteNoSpaceLeftWithoutDefrag(t *testing.T) {
	h := newHarness(t, 16, 0)
	ev := h.submit(WriteBlockRequest{Bytes: block.NewBytes(make([]byte, 64)), Context: 1})
	assert.IsType(t, WriteBlockNoSpaceLeftEvent{}, ev)
}

func TestInfoReportsStats(t *testing.T) {
	h := newHarness(t, 1024, 0)
	h.submit(WriteBlockRequest{Bytes: block.NewBytes(make([]byte, 10)), Context: 1})

	ev := h.submit(InfoRequest{Context: 2})
	info, ok := ev.(InfoEvent)
	require.True(t, ok, "expected InfoEvent, got %T", ev)
	assert.Equal(t, uint64(1024), info.Stats.Size)
	assert.Equal(t, 1, info.Stats.BlockCount)
}

func TestFlushCompletes(t *testing.T) {
	h := newHarness(t, 1024, 0)
	h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("payload")), Context: 1})

	ev := h.submit(FlushRequest{Context: 2})
	assert.IsType(t, FlushEvent{}, ev)
}

func TestLendThenRepay(t *testing.T) {
	h := newHarness(t, 1024, 0)
	ev := h.submit(LendBlockRequest{Size: 128, Context: 1})
	lend, ok := ev.(LendBlockEvent)
	require.True(t, ok, "expected LendBlockEvent, got %T", ev)
	assert.Equal(t, 128, lend.Bytes.Len())

	// RepayBlockRequest never produces an Event; drive Step manually and
	// confirm it settles back to Idle/PollRequest without a reply.
	op := h.perf.Step()
	pr, ok := op.(*PollRequest)
	require.True(t, ok, "expected PollRequest, got %T", op)
	op = pr.Next.IncomingRequest(RepayBlockRequest{Bytes: lend.Bytes})
	assert.IsType(t, Idle{}, op)
}

func TestMultipleReadersOfSameInFlightBlockBothSatisfied(t *testing.T) {
	h := newHarness(t, 4096, 0)
	write := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("shared")), Context: 1}).(WriteBlockDoneEvent)

	// Drive the read request in by hand so a second read can be queued
	// behind it while the first is still in flight with the interpreter.
	// stepPastIdle first drains the write's own leftover doneReenqueue
	// continuation before the performer has anything new to ask for.
	op := h.stepPastIdle()
	pr, ok := op.(*PollRequest)
	require.True(t, ok, "expected PollRequest, got %T", op)
	op = pr.Next.IncomingRequest(ReadBlockRequest{BlockID: write.BlockID, Context: 2})
	assert.IsType(t, Idle{}, op)

	// The next Step dispatches the read; hand it to the interpreter so it
	// is in flight.
	op = h.perf.Step()
	it, ok := op.(*InterpretTask)
	require.True(t, ok, "expected InterpretTask, got %T", op)
	acceptance, err := h.mem.Submit(it.Offset, it.Task)
	require.NoError(t, err)
	op = it.Next.TaskAccepted(acceptance)
	assert.IsType(t, Idle{}, op)

	op = h.perf.Step()
	dispatch, ok := op.(*PollRequestAndInterpreter)
	require.True(t, ok, "expected PollRequestAndInterpreter, got %T", op)

	// Queue a second reader for the same block behind the in-flight one.
	op = dispatch.Next.IncomingRequest(ReadBlockRequest{BlockID: write.BlockID, Context: 3})
	assert.IsType(t, Idle{}, op)

	// Now let the in-flight read actually complete and confirm both
	// readers are satisfied without a second interpreter round-trip.
	events := map[any]Event{}
	op = h.perf.Step()
	for len(events) < 2 {
		switch o := op.(type) {
		case Idle:
			op = h.perf.Step()
		case EventOp:
			events[eventContext(o.Event)] = o.Event
			op = h.perf.Step()
		case *PollRequestAndInterpreter:
			done := <-h.mem.Completions()
			op = o.Next.IncomingInterpreter(done)
		case *InterpretTask:
			acceptance, err := h.mem.Submit(o.Offset, o.Task)
			require.NoError(t, err)
			op = o.Next.TaskAccepted(acceptance)
		default:
			t.Fatalf("unexpected op %T", op)
		}
	}

	first, ok := events[2].(ReadBlockDoneEvent)
	require.True(t, ok, "expected ReadBlockDoneEvent for context 2, got %T", events[2])
	assert.Equal(t, "shared", string(first.Bytes.Bytes()))

	second, ok := events[3].(ReadBlockDoneEvent)
	require.True(t, ok, "expected ReadBlockDoneEvent for context 3, got %T", events[3])
	assert.Equal(t, "shared", string(second.Bytes.Bytes()))
}

func eventContext(ev Event) any {
	switch e := ev.(type) {
	case ReadBlockDoneEvent:
		return e.Context
	case ReadBlockNotFoundEvent:
		return e.Context
	case ReadBlockCorruptEvent:
		return e.Context
	default:
		return nil
	}
}

func TestDeleteQueuedBehindInFlightReadBothSucceed(t *testing.T) {
	h := newHarness(t, 4096, 0)
	write := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("will be deleted")), Context: 1}).(WriteBlockDoneEvent)

	op := h.stepPastIdle()
	pr, ok := op.(*PollRequest)
	require.True(t, ok, "expected PollRequest, got %T", op)
	op = pr.Next.IncomingRequest(ReadBlockRequest{BlockID: write.BlockID, Context: 2})
	assert.IsType(t, Idle{}, op)

	// The next Step dispatches the read; hand it to the interpreter so it
	// is in flight.
	op = h.perf.Step()
	it, ok := op.(*InterpretTask)
	require.True(t, ok, "expected InterpretTask, got %T", op)
	acceptance, err := h.mem.Submit(it.Offset, it.Task)
	require.NoError(t, err)
	op = it.Next.TaskAccepted(acceptance)
	assert.IsType(t, Idle{}, op)

	op = h.perf.Step()
	dispatch, ok := op.(*PollRequestAndInterpreter)
	require.True(t, ok, "expected PollRequestAndInterpreter, got %T", op)

	// Queue a delete for the same block behind the in-flight read.
	op = dispatch.Next.IncomingRequest(DeleteBlockRequest{BlockID: write.BlockID, Context: 3})
	assert.IsType(t, Idle{}, op)

	events := map[any]Event{}
	op = h.perf.Step()
	for len(events) < 2 {
		switch o := op.(type) {
		case Idle:
			op = h.perf.Step()
		case EventOp:
			events[deleteOrReadContext(o.Event)] = o.Event
			op = h.perf.Step()
		case *PollRequestAndInterpreter:
			done := <-h.mem.Completions()
			op = o.Next.IncomingInterpreter(done)
		case *InterpretTask:
			acceptance, err := h.mem.Submit(o.Offset, o.Task)
			require.NoError(t, err)
			op = o.Next.TaskAccepted(acceptance)
		default:
			t.Fatalf("unexpected op %T", op)
		}
	}

	read, ok := events[2].(ReadBlockDoneEvent)
	require.True(t, ok, "expected the in-flight read to still succeed, got %T", events[2])
	assert.Equal(t, "will be deleted", string(read.Bytes.Bytes()))

	assert.IsType(t, DeleteBlockDoneEvent{}, events[3])
}

func deleteOrReadContext(ev Event) any {
	switch e := ev.(type) {
	case ReadBlockDoneEvent:
		return e.Context
	case DeleteBlockDoneEvent:
		return e.Context
	case DeleteBlockNotFoundEvent:
		return e.Context
	default:
		return nil
	}
}

func TestSequentialWritesReadBackInOrder(t *testing.T) {
	h := newHarness(t, 1<<20, 0)

	// Three writes land at increasing offsets. With no task in flight, the
	// ready queue should service them in FIFO dispatch order since each is
	// submitted and completed one at a time — this mainly documents that
	// sequential single-block traffic never stalls on scheduling.
	var ids []block.Id
	for i := 0; i < 3; i++ {
		ev := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte{byte(i), byte(i), byte(i)}), Context: i})
		ids = append(ids, ev.(WriteBlockDoneEvent).BlockID)
	}

	for i, id := range ids {
		ev := h.submit(ReadBlockRequest{BlockID: id, Context: 100 + i})
		read := ev.(ReadBlockDoneEvent)
		assert.Equal(t, []byte{byte(i), byte(i), byte(i)}, read.Bytes.Bytes())
	}
}

// TestDefragMovePreservesQueuedRead is spec.md §8's scenario 5: a block
// being relocated by defrag still satisfies a concurrent external read with
// its original payload, via exactly one read + one delete + one write (no
// second read task for the relocation).
func TestDefragMovePreservesQueuedRead(t *testing.T) {
	h := newHarness(t, 200, 1)

	a := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("AAAAAAAA")), Context: 1}).(WriteBlockDoneEvent)
	b := h.submit(WriteBlockRequest{Bytes: block.NewBytes([]byte("BBBBBBBB")), Context: 2}).(WriteBlockDoneEvent)

	del := h.submit(DeleteBlockRequest{BlockID: a.BlockID, Context: 3})
	require.IsType(t, DeleteBlockDoneEvent{}, del)

	// Drive steps until the defrag top-up has dispatched B's relocation
	// read and it's in flight with the interpreter.
	reads := 0
	var dispatch *PollRequestAndInterpreter
	op := h.stepPastIdle()
	for dispatch == nil {
		switch o := op.(type) {
		case *InterpretTask:
			if _, isRead := o.Task.Kind.(task.ReadBlock); isRead {
				reads++
			}
			acceptance, err := h.mem.Submit(o.Offset, o.Task)
			require.NoError(t, err)
			op = o.Next.TaskAccepted(acceptance)
		case *PollRequestAndInterpreter:
			dispatch = o
		default:
			t.Fatalf("unexpected op %T before defrag read dispatch", op)
		}
		if dispatch == nil {
			op = h.stepPastIdle()
		}
	}
	require.Equal(t, 1, reads, "defrag top-up should have dispatched exactly one read")

	// Queue an external read for B behind the in-flight relocation.
	op = dispatch.Next.IncomingRequest(ReadBlockRequest{BlockID: b.BlockID, Context: 4})
	assert.IsType(t, Idle{}, op)

	// Drive the move to completion, collecting the external read's event
	// and counting every read task dispatched along the way.
	var readEvent Event
	op = h.perf.Step()
	for readEvent == nil || h.perf.inflt.Count() > 0 {
		switch o := op.(type) {
		case Idle:
			op = h.perf.Step()
		case EventOp:
			if _, ok := o.Event.(ReadBlockDoneEvent); ok {
				readEvent = o.Event
			}
			op = h.perf.Step()
		case *PollRequestAndInterpreter:
			done := <-h.mem.Completions()
			op = o.Next.IncomingInterpreter(done)
		case *InterpretTask:
			if _, isRead := o.Task.Kind.(task.ReadBlock); isRead {
				reads++
			}
			acceptance, err := h.mem.Submit(o.Offset, o.Task)
			require.NoError(t, err)
			op = o.Next.TaskAccepted(acceptance)
		default:
			t.Fatalf("unexpected op %T", op)
		}
	}

	read, ok := readEvent.(ReadBlockDoneEvent)
	require.True(t, ok, "expected a ReadBlockDoneEvent for the queued external read")
	assert.Equal(t, "BBBBBBBB", string(read.Bytes.Bytes()))
	assert.Equal(t, 1, reads, "the relocation must not trigger a second read")
}
