package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/handlerruntime"
	"github.com/r3e/taskgraph/pkg/security"
	"github.com/r3e/taskgraph/pkg/taskqueue"
)

func echoHandler(_ context.Context, node *graph.TaskNode, _ *security.Context) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestWorker(t *testing.T) (*Worker, *eventbus.Bus, *taskqueue.MemoryQueue) {
	t.Helper()
	bus := eventbus.New(eventbus.Config{})
	t.Cleanup(bus.Close)
	queue := taskqueue.NewMemoryQueue(10)
	rt := handlerruntime.New(bus, handlerruntime.NewMetrics(prometheus.NewRegistry()))
	identity := &security.Context{IsAuthenticated: true, AllowedScopes: []string{"READ", "EXECUTE"}}
	w := New(queue, bus, rt, map[string]handlerruntime.HandlerFunc{"echo": echoHandler}, identity)
	w.PopTimeout = 50 * time.Millisecond
	return w, bus, queue
}

func TestWorker_ProcessesPayloadAndPublishesCompleted(t *testing.T) {
	w, bus, queue := newTestWorker(t)

	node := graph.NewTaskNode("n1", "echo")
	wire, err := json.Marshal(node)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), taskqueue.NewPayload("g1", "n1", wire, 5)))

	received := make(chan eventbus.Event, 1)
	bus.Subscribe("task.completed", "test", func(e eventbus.Event) error {
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case e := <-received:
		assert.Equal(t, "g1", e.Payload["graph_id"])
		assert.Equal(t, "n1", e.Payload["node_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task.completed")
	}
}

func TestWorker_PublishesFailedForUnknownHandler(t *testing.T) {
	w, bus, queue := newTestWorker(t)

	node := graph.NewTaskNode("n2", "nonexistent")
	wire, err := json.Marshal(node)
	require.NoError(t, err)
	require.NoError(t, queue.Push(context.Background(), taskqueue.NewPayload("g1", "n2", wire, 5)))

	received := make(chan eventbus.Event, 1)
	bus.Subscribe("task.failed", "test", func(e eventbus.Event) error {
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case e := <-received:
		assert.Equal(t, "n2", e.Payload["node_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task.failed")
	}
}
