package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesOrder(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		results, err := Map(context.Background(), 100, workers, func(_ context.Context, i int) (int, error) {
			return i * i, nil
		})
		require.NoError(t, err)
		require.Len(t, results, 100)
		for i, v := range results {
			assert.Equal(t, i*i, v)
		}
	}
}

func TestMap_Empty(t *testing.T) {
	results, err := Map(context.Background(), 0, 4, func(_ context.Context, i int) (string, error) {
		t.Fatal("fn must not be called")
		return "", nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMap_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int64

	results, err := Map(context.Background(), 1000, 4, func(_ context.Context, i int) (int, error) {
		calls.Add(1)
		if i == 10 {
			return 0, boom
		}
		return i, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results)
	assert.LessOrEqual(t, calls.Load(), int64(1000))
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 10, 1, func(_ context.Context, i int) (int, error) {
		return i, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
