package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/behrlich/blockwheel/internal/constants"
)

func TestLendReturnsRequestedLength(t *testing.T) {
	p := New()
	buf := p.Lend(100)
	assert.Equal(t, 100, buf.Len())
}

func TestLendOversizedFallsBackToDirectAllocation(t *testing.T) {
	p := New()
	buf := p.Lend(constants.PoolBucket1M + 1)
	assert.Equal(t, constants.PoolBucket1M+1, buf.Len())
}

func TestRepayThenLendReusesBucket(t *testing.T) {
	p := New()
	buf := p.Lend(constants.PoolBucket4K)
	p.Repay(buf)

	again := p.Lend(constants.PoolBucket4K)
	assert.Equal(t, constants.PoolBucket4K, again.Len())
}
