// Package pool provides pooled mutable block buffers to avoid hot-path
// allocations on the write/read paths.
//
// Uses size-bucketed pools with power-of-2 sizes (4KB up to 1MB) to balance
// memory efficiency with allocation reduction, the same bucketing strategy
// go-ublk's internal/queue uses for its overflow buffers. Buffers larger
// than the top bucket are allocated directly and not pooled.
package pool

import (
	"sync"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/constants"
)

var bucketSizes = [...]int{
	constants.PoolBucket4K,
	constants.PoolBucket16K,
	constants.PoolBucket64K,
	constants.PoolBucket256K,
	constants.PoolBucket1M,
}

// Blocks lends and reclaims mutable byte buffers for block payloads.
type Blocks struct {
	buckets [len(bucketSizes)]sync.Pool
}

// New creates an empty, ready-to-use buffer pool.
func New() *Blocks {
	p := &Blocks{}
	for i, size := range bucketSizes {
		size := size
		p.buckets[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// Lend returns a mutable buffer of at least the requested size. The caller
// owns the buffer until it is repaid (via Repay) or frozen and cached.
func (p *Blocks) Lend(size int) block.BytesMut {
	for i, bucket := range bucketSizes {
		if size <= bucket {
			buf := *(p.buckets[i].Get().(*[]byte))
			return block.NewBytesMut(buf[:size])
		}
	}
	return block.NewBytesMut(make([]byte, size))
}

// Repay returns a buffer's backing storage to the pool. Buffers whose
// capacity doesn't match a bucket exactly (oversized allocations) are
// dropped rather than pooled.
func (p *Blocks) Repay(bytes block.BytesMut) {
	buf := bytes.Bytes()
	c := cap(buf)
	for i, bucket := range bucketSizes {
		if c == bucket {
			full := buf[:c]
			p.buckets[i].Put(&full)
			return
		}
	}
}
