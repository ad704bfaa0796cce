package performer

import "github.com/behrlich/blockwheel/internal/task"

// Op is the sum type every Step (and every continuation method) returns.
// Exactly one of Idle/EventOp/PollRequest/PollRequestAndInterpreter/
// InterpretTask is produced per call.
type Op interface{ isOp() }

// Idle means there's no pending work to signal; the caller should call
// Step again (typically after supplying new input, if any is available).
type Idle struct{}

// EventOp carries a client-visible reply. The caller must deliver Event to
// whoever is waiting on it, then call Step again.
type EventOp struct {
	Event Event
}

// PollRequest means no background work exists; the caller must supply the
// next external request via Next.IncomingRequest.
type PollRequest struct {
	Next *PollRequestToken
}

// PollRequestAndInterpreter means a task is in flight; the caller must
// supply whichever of (next request | interpreter completion) arrives
// first via the corresponding method on Next.
type PollRequestAndInterpreter struct {
	InterpContext any
	Next          *PollRequestAndInterpreterToken
}

// InterpretTask means the caller must hand this task to the interpreter
// and, once it has been accepted, call Next.TaskAccepted to resume.
type InterpretTask struct {
	Offset uint64
	Task   task.Task
	Next   *InterpretTaskToken
}

func (Idle) isOp()                      {}
func (EventOp) isOp()                   {}
func (*PollRequest) isOp()              {}
func (*PollRequestAndInterpreter) isOp() {}
func (*InterpretTask) isOp()            {}

// PollRequestToken is the only valid continuation after a PollRequest Op:
// the performer will not accept anything except the next request.
type PollRequestToken struct {
	p *Performer
}

// IncomingRequest resumes the step function with the next client request.
func (t *PollRequestToken) IncomingRequest(req Request) Op {
	return t.p.incomingRequest(req)
}

// PollRequestAndInterpreterToken is the only valid continuation after a
// PollRequestAndInterpreter Op: the caller may resume with either whichever
// input arrives first.
type PollRequestAndInterpreterToken struct {
	p *Performer
}

// IncomingRequest resumes the step function with a client request that
// arrived before the in-flight task completed.
func (t *PollRequestAndInterpreterToken) IncomingRequest(req Request) Op {
	return t.p.incomingRequest(req)
}

// IncomingInterpreter resumes the step function with the in-flight task's
// completion.
func (t *PollRequestAndInterpreterToken) IncomingInterpreter(done completion) Op {
	return t.p.incomingInterpreter(done)
}

// InterpretTaskToken is the only valid continuation after an InterpretTask
// Op: the caller must confirm handoff before anything else can happen.
type InterpretTaskToken struct {
	p *Performer
}

// TaskAccepted confirms the interpreter has accepted the handed-off task;
// interpCtx is the acceptance token the driver got back and must return
// with the interpreter's eventual completion.
func (t *InterpretTaskToken) TaskAccepted(interpCtx any) Op {
	return t.p.taskAccepted(interpCtx)
}
