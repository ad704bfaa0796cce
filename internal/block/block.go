// Package block defines the basic addressing and byte-ownership types
// shared by the schema, task queue, and performer.
package block

import "fmt"

// Id is an opaque, totally-ordered, cheaply-cloneable block identifier.
// Blocks are identified by monotonically increasing sequence numbers
// assigned by the schema at write time.
type Id uint64

// Less orders ids for locality / FIFO tie-breaking purposes.
func (id Id) Less(other Id) bool { return id < other }

func (id Id) String() string { return fmt.Sprintf("block#%d", uint64(id)) }

// Header is the metadata co-located with a block's payload on disk.
type Header struct {
	BlockID    Id
	PayloadLen uint64
	// Checksum is an xxhash64 digest of the payload, written as part of the
	// block's trailer and verified on read. The schema computes it when it
	// places the block, before the write task runs.
	Checksum uint64
}

// Bytes is an immutable, shareable view of a block payload. Safe to clone
// cheaply (it is backed by a slice that nothing else mutates once frozen)
// and to hand to multiple readers/cache entries at once.
type Bytes struct {
	data []byte
}

// BytesMut is a mutable, uniquely-owned buffer lent from the block pool.
// Callers fill it in place; Freeze converts it to an immutable Bytes without
// copying.
type BytesMut struct {
	data []byte
}

// NewBytesMut wraps a freshly lent buffer.
func NewBytesMut(data []byte) BytesMut { return BytesMut{data: data} }

// Bytes exposes the mutable buffer for in-place writes.
func (b BytesMut) Bytes() []byte { return b.data }

// Len reports the buffer length.
func (b BytesMut) Len() int { return len(b.data) }

// Freeze converts a mutable buffer into an immutable one without copying.
// The caller must not retain or mutate the BytesMut after this call.
func (b BytesMut) Freeze() Bytes { return Bytes{data: b.data} }

// Unfreeze hands the backing slice back for repayment to the pool. Callers
// must treat the Bytes as consumed afterward.
func (b Bytes) Unfreeze() BytesMut { return BytesMut{data: b.data} }

// Bytes exposes the read-only payload.
func (b Bytes) Bytes() []byte { return b.data }

// Len reports the payload length.
func (b Bytes) Len() int { return len(b.data) }

// Clone returns a Bytes sharing the same backing array; both are read-only,
// so this is a cheap reference copy, not a deep copy.
func (b Bytes) Clone() Bytes { return b }

// NewBytes wraps an existing read-only slice, e.g. a literal in tests.
func NewBytes(data []byte) Bytes { return Bytes{data: data} }
