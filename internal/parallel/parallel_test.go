package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(0))
	assert.Equal(t, runtime.GOMAXPROCS(0), Workers(-3))
	assert.Equal(t, 5, Workers(5))
}

func TestRange_VisitsEveryIndexOnce(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 100, 10000} {
		for _, workers := range []int{0, 1, 4} {
			hits := make([]int32, n)
			require.NoError(t, Range(context.Background(), n, workers, func(i int) {
				atomic.AddInt32(&hits[i], 1)
			}))
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("n=%d workers=%d: index %d visited %d times", n, workers, i, h)
				}
			}
		}
	}
}

func TestFor_ReturnsFirstError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	for _, workers := range []int{1, 8} {
		err := For(context.Background(), 5000, workers, func(i int) error {
			if i == 4321 {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom, "workers=%d", workers)
	}
}

func TestFor_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 8} {
		var calls atomic.Int64
		err := For(ctx, 5000, workers, func(int) error {
			calls.Add(1)
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled, "workers=%d", workers)
		assert.Zero(t, calls.Load(), "workers=%d", workers)
	}
}
