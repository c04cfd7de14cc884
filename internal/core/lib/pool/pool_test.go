package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdered_PreservesInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	var got []int
	for i, r := range Ordered(context.Background(), 4, items, func(_ context.Context, n int) int {
		// 先提交的任务更晚完成
		time.Sleep(time.Duration(n) * 5 * time.Millisecond)
		return n * 10
	}) {
		assert.Equal(t, items[i]*10, r)
		got = append(got, r)
	}
	assert.Equal(t, []int{50, 10, 40, 20, 30}, got)
}

func TestOrdered_EarlyStop(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	var calls atomic.Int32
	count := 0
	for range Ordered(context.Background(), 2, items, func(ctx context.Context, n int) int {
		calls.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
		return n
	}) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
	assert.Less(t, int(calls.Load()), len(items))
}

func TestOrdered_Empty(t *testing.T) {
	for range Ordered(context.Background(), 1, []string{}, func(context.Context, string) int { return 0 }) {
		t.Fatal("no results expected")
	}
}

func TestMap(t *testing.T) {
	results, err := Map(context.Background(), 0, []string{"a", "bb", "ccc"}, func(_ context.Context, s string) int {
		return len(s)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)
}

func TestMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 1, []int{1, 2, 3}, func(_ context.Context, n int) int { return n })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSize(t *testing.T) {
	assert.Equal(t, 7, Size(7))
	assert.Positive(t, Size(0))
}
