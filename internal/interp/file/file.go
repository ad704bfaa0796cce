// Package file is the real interpreter: it performs the tasks the performer
// issues against a single backing *os.File using pread/pwrite/fdatasync,
// the same golang.org/x/sys/unix family the teacher uses for its
// queue/uring plumbing, applied here to plain positioned I/O instead of
// io_uring submission queues.
package file

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/task"
)

// Interp is a single-file, synchronous-per-call Interpreter. Calls to
// Submit block for the duration of the syscall (pread/pwrite/fdatasync are
// already blocking in Go's runtime-integrated poller), which is sufficient
// since the performer never has more than one task in flight at a time.
type Interp struct {
	f           *os.File
	completions chan interp.TaskDone

	mu        sync.Mutex
	closed    bool
	nextToken uint64
}

// Open opens (creating if necessary) path as the backing file for an
// Interp.
func Open(path string) (*Interp, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file interpreter: open %s: %w", path, err)
	}
	return &Interp{
		f:           f,
		completions: make(chan interp.TaskDone, 256),
	}, nil
}

func (i *Interp) Submit(offset uint64, t task.Task) (any, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil, fmt.Errorf("file interpreter: closed")
	}
	i.nextToken++
	token := i.nextToken
	i.mu.Unlock()

	done := interp.TaskDone{BlockID: t.BlockID}
	fd := int(i.f.Fd())

	switch kind := t.Kind.(type) {
	case task.WriteBlock:
		payload := kind.Bytes.Bytes()
		if _, err := unix.Pwrite(fd, payload, int64(offset)); err != nil {
			return nil, fmt.Errorf("file interpreter: pwrite at %d: %w", offset, err)
		}
		if kind.Commit == task.CommitAndEof {
			if err := unix.Fdatasync(fd); err != nil {
				return nil, fmt.Errorf("file interpreter: fdatasync: %w", err)
			}
		}
		done.Offset = offset + uint64(len(payload))
		done.Kind = interp.WriteDone{}

	case task.ReadBlock:
		buf := kind.Bytes.Bytes()
		n, err := unix.Pread(fd, buf, int64(offset))
		if err != nil {
			return nil, fmt.Errorf("file interpreter: pread at %d: %w", offset, err)
		}
		if n < len(buf) {
			return nil, fmt.Errorf("file interpreter: short read at %d: got %d want %d", offset, n, len(buf))
		}
		done.Offset = offset + uint64(len(buf))
		done.Kind = interp.ReadDone{Bytes: kind.Bytes}

	case task.DeleteBlock:
		zeros := make([]byte, kind.Length)
		if _, err := unix.Pwrite(fd, zeros, int64(offset)); err != nil {
			return nil, fmt.Errorf("file interpreter: zero-delete at %d: %w", offset, err)
		}
		done.Offset = offset + kind.Length
		done.Kind = interp.DeleteDone{}

	case task.Flush:
		if err := unix.Fdatasync(fd); err != nil {
			return nil, fmt.Errorf("file interpreter: fdatasync: %w", err)
		}
		done.Offset = offset
		done.Kind = interp.FlushDone{}

	default:
		return nil, fmt.Errorf("file interpreter: unknown task kind %T", kind)
	}

	i.completions <- done
	return token, nil
}

// Flush forces an fdatasync independent of any submitted task. A client
// Flush request does not come through here: the performer dispatches it as
// a task.Flush through Submit.
func (i *Interp) Flush() error {
	return unix.Fdatasync(int(i.f.Fd()))
}

func (i *Interp) Completions() <-chan interp.TaskDone {
	return i.completions
}

func (i *Interp) Close() error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return i.f.Close()
}
