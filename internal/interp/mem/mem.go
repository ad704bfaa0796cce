// Package mem is a sharded in-memory interpreter, adapted from go-ublk's
// backend.Memory, used by unit and integration tests that want the
// performer exercised end-to-end without touching a real file.
package mem

import (
	"fmt"
	"sync"

	"github.com/behrlich/blockwheel/internal/interp"
	"github.com/behrlich/blockwheel/internal/task"
)

// ShardSize bounds the lock granularity; kept identical to the teacher's
// backend so an operator used to reading those numbers doesn't have to
// relearn them here.
const ShardSize = 64 * 1024

// Interp is a sharded-lock, RAM-backed Interpreter.
type Interp struct {
	data   []byte
	shards []sync.RWMutex

	completions chan interp.TaskDone
	closed      bool
	mu          sync.Mutex
	nextToken   uint64
}

// New creates an interpreter over a zeroed in-memory region of the given
// size in bytes.
func New(size int64) *Interp {
	numShards := (size + ShardSize - 1) / ShardSize
	if numShards == 0 {
		numShards = 1
	}
	return &Interp{
		data:        make([]byte, size),
		shards:      make([]sync.RWMutex, numShards),
		completions: make(chan interp.TaskDone, 256),
	}
}

func (m *Interp) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

func (m *Interp) Submit(offset uint64, t task.Task) (any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mem interpreter: closed")
	}
	m.nextToken++
	token := m.nextToken
	m.mu.Unlock()

	done := interp.TaskDone{BlockID: t.BlockID}

	switch kind := t.Kind.(type) {
	case task.WriteBlock:
		payload := kind.Bytes.Bytes()
		m.writeAt(payload, int64(offset))
		done.Offset = offset + uint64(len(payload))
		done.Kind = interp.WriteDone{}

	case task.ReadBlock:
		buf := kind.Bytes.Bytes()
		m.readAt(buf, int64(offset))
		done.Offset = offset + uint64(len(buf))
		done.Kind = interp.ReadDone{Bytes: kind.Bytes}

	case task.DeleteBlock:
		m.zeroAt(int64(offset), int64(kind.Length))
		done.Offset = offset + kind.Length
		done.Kind = interp.DeleteDone{}

	case task.Flush:
		done.Offset = offset
		done.Kind = interp.FlushDone{}

	default:
		return nil, fmt.Errorf("mem interpreter: unknown task kind %T", kind)
	}

	m.completions <- done
	return token, nil
}

func (m *Interp) Completions() <-chan interp.TaskDone {
	return m.completions
}

func (m *Interp) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Interp) writeAt(p []byte, off int64) {
	if off >= int64(len(m.data)) {
		return
	}
	available := int64(len(m.data)) - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
}

func (m *Interp) readAt(p []byte, off int64) {
	if off >= int64(len(m.data)) {
		return
	}
	available := int64(len(m.data)) - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
}

func (m *Interp) zeroAt(off, length int64) {
	if off >= int64(len(m.data)) || length <= 0 {
		return
	}
	end := off + length
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	start, endShard := m.shardRange(off, end-off)
	for i := start; i <= endShard; i++ {
		m.shards[i].Lock()
	}
	for i := off; i < end; i++ {
		m.data[i] = 0
	}
	for i := start; i <= endShard; i++ {
		m.shards[i].Unlock()
	}
}
