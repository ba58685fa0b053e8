package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met within timeout")
}

func TestPublish_ExactMatchDelivers(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	var got atomic.Value
	b.Subscribe("task.completed", "watcher", func(e Event) error {
		got.Store(e.EventID)
		return nil
	})

	id, err := b.Publish(New("task.completed", "worker-1", nil))
	require.NoError(t, err)

	waitUntil(t, time.Second, func() bool {
		v, ok := got.Load().(string)
		return ok && v == id
	})
}

func TestPublish_WildcardMatchDelivers(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	var count int32
	b.Subscribe("task.*", "watcher", func(e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	b.Publish(New("task.completed", "worker-1", nil))
	b.Publish(New("task.failed", "worker-1", nil))
	b.Publish(New("graph.completed", "orchestrator", nil))

	waitUntil(t, time.Second, func() bool { return atomic.LoadInt32(&count) == 2 })
}

func TestPublish_PriorityOrderDeliveredFirst(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 3)
	first := true
	b.Subscribe("ping", "watcher", func(e Event) error {
		mu.Lock()
		blockFirst := first
		first = false
		mu.Unlock()
		if blockFirst {
			<-gate // hold the processor until both events are enqueued
		}
		p, _ := e.Payload["seq"].(int)
		mu.Lock()
		order = append(order, p)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	b.Publish(New("ping", "x", map[string]any{"seq": 0}))

	time.Sleep(20 * time.Millisecond) // let the processor pick up the blocker and block on gate

	low := New("ping", "x", map[string]any{"seq": 1})
	low.Priority = 1
	b.Publish(low)

	high := New("ping", "x", map[string]any{"seq": 2})
	high.Priority = 10
	b.Publish(high)

	time.Sleep(20 * time.Millisecond) // let "high" land ahead of "low" in the queue
	close(gate)

	<-done
	<-done
	<-done
	assert.Equal(t, []int{0, 2, 1}, order)
}

func TestExpiredEvent_IsDeadLettered(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	e := New("stale", "x", nil)
	e.TTLSeconds = 1
	e.Timestamp = time.Now().Add(-time.Hour)

	b.Publish(e)

	waitUntil(t, time.Second, func() bool { return len(b.DeadLetterQueue()) == 1 })
}

func TestFailingHandler_RetriesThenDeadLetters(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	var calls int32
	e := New("risky", "x", nil)
	e.MaxRetries = 2
	b.Subscribe("risky", "flaky", func(e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})

	b.Publish(e)

	waitUntil(t, time.Second, func() bool { return len(b.DeadLetterQueue()) == 1 })
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls)) // initial + 2 retries
}

func TestPublishAndWait_ReceivesCorrelatedReply(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	b.Subscribe("ask", "responder", func(e Event) error {
		reply := New("ask.reply", "responder", map[string]any{"answer": 42})
		reply.CorrelationID = e.CorrelationID
		_, err := b.Publish(reply)
		return err
	})

	reply, err := b.PublishAndWait(New("ask", "asker", nil), time.Second)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, 42, reply.Payload["answer"])
}

func TestPublishAndWait_TimesOutWithoutReply(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	reply, err := b.PublishAndWait(New("ask", "asker", nil), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHistory_BoundedAndFilterable(t *testing.T) {
	b := New(Config{MaxEventHistory: 3})
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish(New("counted", "x", map[string]any{"i": i}))
	}
	waitUntil(t, time.Second, func() bool { return len(b.History("", 10)) == 3 })

	hist := b.History("counted", 10)
	assert.Len(t, hist, 3)
}

func TestRetryDeadLetters_Republishes(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	var calls int32
	b.Subscribe("flaky-once", "h", func(e Event) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})

	e := New("flaky-once", "x", nil)
	e.MaxRetries = 0
	b.Publish(e)

	waitUntil(t, time.Second, func() bool { return len(b.DeadLetterQueue()) == 1 })

	ids := []string{b.DeadLetterQueue()[0].EventID}
	require.NoError(t, b.RetryDeadLetters(ids))

	waitUntil(t, time.Second, func() bool { return len(b.DeadLetterQueue()) == 0 })
}
