package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParallelizeCoversEveryItem(t *testing.T) {
	const n = 1037
	seen := make([]int32, n)
	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, c := range seen {
		require.Equal(t, int32(1), c, "item %d", i)
	}

	called := false
	Parallelize(0, func(int, int) { called = true })
	assert.False(t, called)
}

func TestParallelizeWithThresholdRunsInline(t *testing.T) {
	var mu sync.Mutex
	var ranges [][2]int
	ParallelizeWithThreshold(5, 10, func(start, end int) {
		mu.Lock()
		ranges = append(ranges, [2]int{start, end})
		mu.Unlock()
	})
	assert.Equal(t, [][2]int{{0, 5}}, ranges)
}

func TestForEach(t *testing.T) {
	defer goleak.VerifyNone(t)

	var sum int64
	err := ForEach(context.Background(), 100, 4, func(_ context.Context, i int) error {
		atomic.AddInt64(&sum, int64(i))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4950), sum)
}

func TestForEachLimitsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inFlight, peak int32
	err := ForEach(context.Background(), 50, 3, func(_ context.Context, _ int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestForEachReturnsFirstError(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	err := ForEach(context.Background(), 20, 2, func(_ context.Context, i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEachCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := ForEach(ctx, 10, 2, func(_ context.Context, _ int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
