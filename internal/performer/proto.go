// Package performer implements the pure, synchronous control core: request
// intake, task scheduling, background-task sequencing, defrag
// orchestration, and LRU interaction, expressed as a stepwise "next
// operation" protocol with no internal threads or timers.
package performer

import (
	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/schema"
)

// Request is the sum type of inbound client requests. Every variant
// carries a caller-defined opaque Context token, returned unchanged in the
// matching reply event.
type Request interface{ isRequest() }

// InfoRequest asks for a snapshot of schema stats; no state change.
type InfoRequest struct {
	Context any
}

// FlushRequest asks the performer to wait for the interpreter to durably
// sync everything written so far.
type FlushRequest struct {
	Context any
}

// LendBlockRequest asks the pool for a scratch buffer of the given size.
type LendBlockRequest struct {
	Size    int
	Context any
}

// RepayBlockRequest returns a previously lent buffer that went unused.
type RepayBlockRequest struct {
	Bytes block.BytesMut
}

// WriteBlockRequest asks to place a new block containing Bytes.
type WriteBlockRequest struct {
	Bytes   block.Bytes
	Context any
}

// ReadBlockRequest asks to read back a block's payload.
type ReadBlockRequest struct {
	BlockID block.Id
	Context any
}

// DeleteBlockRequest asks to remove a block.
type DeleteBlockRequest struct {
	BlockID block.Id
	Context any
}

func (InfoRequest) isRequest()        {}
func (FlushRequest) isRequest()       {}
func (LendBlockRequest) isRequest()   {}
func (RepayBlockRequest) isRequest()  {}
func (WriteBlockRequest) isRequest()  {}
func (ReadBlockRequest) isRequest()   {}
func (DeleteBlockRequest) isRequest() {}

// Event is the sum type of outbound replies delivered to the caller that
// originated the matching request.
type Event interface{ isEvent() }

// InfoEvent answers an InfoRequest.
type InfoEvent struct {
	Context any
	Stats   schema.Stats
}

// FlushEvent answers a FlushRequest once the interpreter has synced.
type FlushEvent struct {
	Context any
}

// LendBlockEvent answers a LendBlockRequest with the lent buffer.
type LendBlockEvent struct {
	Context any
	Bytes   block.BytesMut
}

// WriteBlockDoneEvent reports a successful write.
type WriteBlockDoneEvent struct {
	Context any
	BlockID block.Id
}

// WriteBlockNoSpaceLeftEvent reports that placement failed and cannot
// succeed (even after defrag consideration, or because defrag is
// disabled).
type WriteBlockNoSpaceLeftEvent struct {
	Context any
}

// ReadBlockDoneEvent reports a successful read.
type ReadBlockDoneEvent struct {
	Context any
	Bytes   block.Bytes
}

// ReadBlockNotFoundEvent reports that no such block exists (or it was
// deleted while the read was queued).
type ReadBlockNotFoundEvent struct {
	Context any
}

// ReadBlockCorruptEvent reports that the block was found but its payload
// failed checksum verification — a supplemental failure mode the schema
// can surface that the original design didn't model.
type ReadBlockCorruptEvent struct {
	Context any
	BlockID block.Id
}

// DeleteBlockDoneEvent reports a successful delete.
type DeleteBlockDoneEvent struct {
	Context any
	BlockID block.Id
}

// DeleteBlockNotFoundEvent reports that no such block exists (or it was
// already deleted while this request was queued).
type DeleteBlockNotFoundEvent struct {
	Context any
}

func (InfoEvent) isEvent()                  {}
func (FlushEvent) isEvent()                 {}
func (LendBlockEvent) isEvent()             {}
func (WriteBlockDoneEvent) isEvent()        {}
func (WriteBlockNoSpaceLeftEvent) isEvent() {}
func (ReadBlockDoneEvent) isEvent()         {}
func (ReadBlockNotFoundEvent) isEvent()     {}
func (ReadBlockCorruptEvent) isEvent()      {}
func (DeleteBlockDoneEvent) isEvent()       {}
func (DeleteBlockNotFoundEvent) isEvent()   {}

// completion is the internal shape the driver feeds back for
// incoming_interpreter; it's just interp.TaskDone re-exposed under the
// performer's own vocabulary so callers of this package don't need to
// import internal/interp just to drive a step.
type completion = interp.TaskDone
