package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_PopIsFIFORegardlessOfPriority(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	// A higher Priority must not jump the queue: the task queue is a
	// transport, not a scheduler. Priority is only acted on upstream, in
	// the Orchestrator's ready-set dispatch.
	require.NoError(t, q.Push(ctx, NewPayload("g1", "low", nil, 1)))
	require.NoError(t, q.Push(ctx, NewPayload("g1", "high", nil, 10)))

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "low", first.NodeID)

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "high", second.NodeID)
}

func TestMemoryQueue_PopTimesOutWhenEmpty(t *testing.T) {
	q := NewMemoryQueue(0)
	p, err := q.Pop(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryQueue_CompleteRemovesFromProcessing(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewPayload("g1", "n1", nil, 0)))

	p, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, p)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, q.Complete(ctx, *p))

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryQueue_PushRejectsWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewPayload("g1", "n1", nil, 0)))
	err := q.Push(ctx, NewPayload("g1", "n2", nil, 0))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryQueue_SizeReflectsPendingOnly(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, NewPayload("g1", "n1", nil, 0)))
	require.NoError(t, q.Push(ctx, NewPayload("g1", "n2", nil, 0)))

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)

	n, err = q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
