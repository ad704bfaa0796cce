package blockwheel

import (
	"fmt"
	"time"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/logging"
	"github.com/behrlich/blockwheel/internal/lru"
	"github.com/behrlich/blockwheel/internal/performer"
	"github.com/behrlich/blockwheel/internal/pool"
	"github.com/behrlich/blockwheel/internal/schema"
	"github.com/behrlich/blockwheel/internal/task"
)

// BlockID is the opaque handle a caller gets back from Write and passes to
// Read/Delete.
type BlockID = block.Id

// Stats is a snapshot of the engine's schema bookkeeping, answered by Info.
type Stats = schema.Stats

// Interpreter is the external actor that performs file I/O for a task the
// engine hands off; internal/interp/mem and internal/interp/file are the
// two reference implementations.
type Interpreter = interp.Interpreter

// Config configures a new Engine. Schema and LRU cache are constructor
// injections per spec.md §6; Interpreter is likewise supplied by the
// caller rather than hardcoded, the same way go-ublk takes a Backend.
type Config struct {
	// Capacity is the backing file size in bytes.
	Capacity uint64
	// DefragInProgressLimit bounds concurrent defrag relocations. <= 0
	// disables defrag entirely (spec.md §6: "if absent, defrag is
	// disabled").
	DefragInProgressLimit int
	// CacheCapacity bounds the number of decoded block payloads the LRU
	// cache holds. <= 0 falls back to DefaultCacheCapacity.
	CacheCapacity int
	// Interpreter performs the I/O the engine's internal performer issues.
	Interpreter Interpreter
	// Logger receives structured log lines; defaults to logging.Default().
	Logger *logging.Logger
	// Observer receives per-operation metrics; when nil, New records into
	// the engine's own Metrics through a MetricsObserver.
	Observer Observer
}

// DefaultConfig returns a Config with blockwheel's defaults over the given
// interpreter, mirroring go-ublk's DefaultDeviceParams(backend) pattern.
// Observer is left nil so New wires the engine's own Metrics by default;
// set it explicitly to opt out or redirect metrics elsewhere.
func DefaultConfig(interpreter Interpreter) *Config {
	return &Config{
		Capacity:              DefaultCapacity,
		DefragInProgressLimit: DefaultDefragInProgressLimit,
		CacheCapacity:         DefaultCacheCapacity,
		Interpreter:           interpreter,
		Logger:                logging.Default(),
	}
}

// Engine is a synchronous facade over internal/performer: it owns the poke
// loop spec.md explicitly puts out of scope (the "async runtime that pumps
// the state machine") so callers get plain blocking methods instead of
// having to drive the Op protocol themselves. internal/performer remains
// directly usable by anyone who wants their own I/O scheduler.
type Engine struct {
	perf     *performer.Performer
	interp   Interpreter
	logger   *logging.Logger
	observer Observer
	metrics  *Metrics
}

// New constructs an Engine over the given configuration.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, NewError("New", ErrCodeInvalidParameters, "config is required")
	}
	if cfg.Interpreter == nil {
		return nil, NewError("New", ErrCodeInvalidParameters, "interpreter is required")
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	oracle := schema.New(capacity, cfg.DefragInProgressLimit > 0)
	cache := lru.New(cfg.CacheCapacity)
	blocks := pool.New()
	perf := performer.New(oracle, cache, blocks, cfg.DefragInProgressLimit)

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	// An explicit Observer opts out of the built-in Metrics entirely (the
	// caller presumably wired its own); otherwise Engine records into its
	// own Metrics so Metrics() reflects real traffic out of the box.
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	return &Engine{
		perf:     perf,
		interp:   cfg.Interpreter,
		logger:   logger,
		observer: observer,
		metrics:  metrics,
	}, nil
}

// Metrics returns the engine's built-in metrics. They are recorded only when
// Config.Observer was left nil; an explicitly supplied Observer receives the
// observations instead and these counters stay at zero.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// requestEvent drives the performer's step protocol to completion for a
// single request: submit it exactly once, hand every InterpretTask to the
// interpreter, and feed back whichever of (next request | completion)
// arrives, until the matching reply event comes back. Since an Engine
// serializes its own calls (one request in flight from this driver's
// perspective at a time), any EventOp the loop observes belongs to the
// request this call submitted — see DESIGN.md for why that holds.
//
// expectEvent is false for requests that never produce a reply event
// (RepayBlock): the first Idle after submission ends the call. For
// requests that do expect an event, a growing pending-defrag-writes count
// after submission means this particular write will never produce one
// either (spec.md §4.4: QueuePendingDefrag has no synchronous outcome) —
// both cases return ok=false.
func (e *Engine) requestEvent(req performer.Request, expectEvent bool) (ev performer.Event, ok bool) {
	pendingBefore := e.perf.PendingWritesLen()
	submitted := false

	op := e.perf.Step()
	for {
		switch o := op.(type) {
		case performer.Idle:
			if submitted {
				if !expectEvent {
					return nil, false
				}
				if e.perf.PendingWritesLen() > pendingBefore {
					return nil, false
				}
			}
			op = e.perf.Step()

		case performer.EventOp:
			return o.Event, true

		case *performer.PollRequest:
			if submitted {
				panic("engine: performer asked for another request while one was already in flight")
			}
			submitted = true
			op = o.Next.IncomingRequest(req)

		case *performer.PollRequestAndInterpreter:
			if !submitted {
				submitted = true
				op = o.Next.IncomingRequest(req)
				continue
			}
			done := <-e.interp.Completions()
			op = o.Next.IncomingInterpreter(done)

		case *performer.InterpretTask:
			taskStart := time.Now()
			acceptance, err := e.interp.Submit(o.Offset, o.Task)
			if err != nil {
				e.logger.BlockOp(fmt.Sprintf("interpreter %T", o.Task.Kind), o.Task.BlockID, err)
				panic(fmt.Sprintf("engine: interpreter fatal error: %v", err))
			}
			// The defrag write is the last leg of a relocation (read, stash,
			// delete, write); its dispatch is the one externally visible
			// point the Engine can cheaply attribute a whole move to, since
			// both interpreters complete Submit synchronously.
			if wb, ok := o.Task.Kind.(task.WriteBlock); ok {
				if _, isDefrag := wb.Context.(task.DefragWriteContext); isDefrag {
					e.observer.ObserveDefragMove(uint64(wb.Bytes.Len()), uint64(time.Since(taskStart).Nanoseconds()), true)
					e.logger.DefragMove(o.Task.BlockID, o.Offset, wb.Bytes.Len())
				}
			}
			op = o.Next.TaskAccepted(acceptance)

		default:
			panic(fmt.Sprintf("engine: unknown op %T", op))
		}
	}
}

// Write places a new block containing a copy of payload, blocking until
// the interpreter durably applies the write (or placement is found
// impossible).
func (e *Engine) Write(payload []byte) (BlockID, error) {
	start := time.Now()
	buf := append([]byte(nil), payload...)

	ev, ok := e.requestEvent(performer.WriteBlockRequest{Bytes: block.NewBytes(buf)}, true)
	latency := uint64(time.Since(start).Nanoseconds())

	if !ok {
		e.observer.ObserveWrite(uint64(len(payload)), latency, false)
		return 0, NewError("Write", ErrCodeNoSpaceLeft, "write queued pending defrag; retry later")
	}
	switch r := ev.(type) {
	case performer.WriteBlockDoneEvent:
		e.observer.ObserveWrite(uint64(len(payload)), latency, true)
		return r.BlockID, nil
	case performer.WriteBlockNoSpaceLeftEvent:
		e.observer.ObserveWrite(uint64(len(payload)), latency, false)
		return 0, NewError("Write", ErrCodeNoSpaceLeft, "no space left")
	default:
		panic(fmt.Sprintf("engine: unexpected event %T for WriteBlockRequest", ev))
	}
}

// Read returns a block's payload, blocking until it is available.
func (e *Engine) Read(bid BlockID) (block.Bytes, error) {
	start := time.Now()
	ev, _ := e.requestEvent(performer.ReadBlockRequest{BlockID: bid}, true)
	latency := uint64(time.Since(start).Nanoseconds())

	switch r := ev.(type) {
	case performer.ReadBlockDoneEvent:
		e.observer.ObserveRead(uint64(r.Bytes.Len()), latency, true)
		return r.Bytes, nil
	case performer.ReadBlockNotFoundEvent:
		e.observer.ObserveRead(0, latency, false)
		return block.Bytes{}, NewBlockError("Read", bid, ErrCodeNotFound, "no such block")
	case performer.ReadBlockCorruptEvent:
		e.observer.ObserveRead(0, latency, false)
		return block.Bytes{}, NewBlockError("Read", bid, ErrCodeCorruptBlock, "checksum mismatch")
	default:
		panic(fmt.Sprintf("engine: unexpected event %T for ReadBlockRequest", ev))
	}
}

// Delete removes a block, blocking until the interpreter has erased it.
func (e *Engine) Delete(bid BlockID) error {
	start := time.Now()
	ev, _ := e.requestEvent(performer.DeleteBlockRequest{BlockID: bid}, true)
	latency := uint64(time.Since(start).Nanoseconds())

	switch ev.(type) {
	case performer.DeleteBlockDoneEvent:
		e.observer.ObserveDelete(latency, true)
		return nil
	case performer.DeleteBlockNotFoundEvent:
		e.observer.ObserveDelete(latency, false)
		return NewBlockError("Delete", bid, ErrCodeNotFound, "no such block")
	default:
		panic(fmt.Sprintf("engine: unexpected event %T for DeleteBlockRequest", ev))
	}
}

// Flush blocks until the interpreter has durably synced everything written
// so far.
func (e *Engine) Flush() error {
	start := time.Now()
	_, _ = e.requestEvent(performer.FlushRequest{}, true)
	e.observer.ObserveFlush(uint64(time.Since(start).Nanoseconds()), true)
	return nil
}

// Info reports a snapshot of the schema's free/occupied space bookkeeping.
func (e *Engine) Info() Stats {
	ev, _ := e.requestEvent(performer.InfoRequest{}, true)
	return ev.(performer.InfoEvent).Stats
}

// Lend borrows a mutable scratch buffer of the given size from the block
// pool.
func (e *Engine) Lend(size int) block.BytesMut {
	ev, _ := e.requestEvent(performer.LendBlockRequest{Size: size}, true)
	return ev.(performer.LendBlockEvent).Bytes
}

// Repay returns a buffer previously obtained from Lend that went unused.
func (e *Engine) Repay(buf block.BytesMut) {
	e.requestEvent(performer.RepayBlockRequest{Bytes: buf}, false)
}

// Close releases the engine's interpreter.
func (e *Engine) Close() error {
	e.metrics.Stop()
	return e.interp.Close()
}
