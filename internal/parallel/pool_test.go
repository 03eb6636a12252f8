package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCoversRangeOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 8, 64} {
		p := NewPool(workers)
		hits := make([]int32, 1000)

		p.For(len(hits), func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})

		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}

func TestForEmpty(t *testing.T) {
	called := false
	Default().For(0, func(int, int) { called = true })
	assert.False(t, called)
}

func TestExecuteAll(t *testing.T) {
	var n atomic.Int64
	work := make([]func(), 17)
	for i := range work {
		work[i] = func() { n.Add(int64(i)) }
	}

	NewPool(4).ExecuteAll(work)
	assert.Equal(t, int64(17*16/2), n.Load())
}

func TestNewPoolDefaultsToGOMAXPROCS(t *testing.T) {
	assert.Positive(t, NewPool(0).Workers())
	assert.Equal(t, 5, NewPool(5).Workers())
}
