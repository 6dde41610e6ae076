package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

func TestTryPublishDropsWhenFull(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TryPublish(1))
	assert.ErrorIs(t, q.TryPublish(2), exception.ErrFeedQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue[int](1)
	q.Close()
	assert.ErrorIs(t, q.TryPublish(1), exception.ErrFeedQueueClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), 1), exception.ErrFeedQueueClosed)
}

func TestRunConsumesInOrder(t *testing.T) {
	q := NewQueue[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryPublish(i))
	}
	q.Close()

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(context.Background(), func(v int) { got = append(got, v) })
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not drain")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(int) {})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
