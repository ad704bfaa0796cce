// Package interp declares the interpreter contract: the external actor that
// performs file I/O for a performer-issued task and reports completion.
//
// The performer never talks to an Interpreter directly — it only emits
// InterpretTask operations for its driver to act on. This package exists so
// that driver (the root package's Engine) and the interpreter implementations
// (interp/mem, interp/file) share one vocabulary for task handoff and
// completion.
package interp

import (
	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/task"
)

// DoneKind is the sum type of completion payloads, mirroring task.Kind.
type DoneKind interface{ isDoneKind() }

// WriteDone reports a completed write; it carries no payload.
type WriteDone struct{}

// ReadDone reports a completed read; Bytes is the same buffer the task was
// submitted with, now filled in.
type ReadDone struct {
	Bytes block.BytesMut
}

// DeleteDone reports a completed delete; it carries no payload.
type DeleteDone struct{}

// FlushDone reports that a flush task has durably synced.
type FlushDone struct{}

func (WriteDone) isDoneKind()  {}
func (ReadDone) isDoneKind()   {}
func (DeleteDone) isDoneKind() {}
func (FlushDone) isDoneKind()  {}

// TaskDone is what the driver feeds back into the performer's
// incoming_interpreter step. Offset is the interpreter's new head position
// after performing this task — it becomes the performer's next
// current_offset for locality scheduling.
type TaskDone struct {
	BlockID block.Id
	Offset  uint64
	Kind    DoneKind
}

// Interpreter performs the I/O a performer-issued task describes. Submit
// must accept the task and return promptly with an opaque acceptance token;
// the actual I/O may complete asynchronously and is reported on
// Completions(), in submission order, matching the performer's "at most one
// task in flight" invariant from the driver's perspective.
type Interpreter interface {
	Submit(offset uint64, t task.Task) (acceptance any, err error)
	Completions() <-chan TaskDone
	Close() error
}
