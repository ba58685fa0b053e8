package eventbus

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultMaxHistory = 10000

type subscription struct {
	pattern string
	handler Handler
	name    string // registered handler name, matched against Event.Destination
}

// Config configures a Bus (spec.md §6: max_event_history, distributed).
type Config struct {
	MaxEventHistory int
	Backend         Backend // optional durable backend
}

// Bus is an in-process priority pub/sub bus with optional durable backing.
type Bus struct {
	mu           sync.Mutex
	subs         map[string][]*subscription
	queue        *priorityQueue
	notify       chan struct{}
	history      []Event
	maxHistory   int
	deadLetters  []Event
	processed    map[string]time.Time // durable-mode dedup set, event_id -> seen-at
	interceptors []Interceptor
	filters      []Filter
	backend      Backend
	closeOnce    sync.Once
	done         chan struct{}
	wg           sync.WaitGroup
}

// New creates a Bus and starts its dispatch processor (and, if a Backend is
// configured, its puller).
func New(cfg Config) *Bus {
	maxHistory := cfg.MaxEventHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	b := &Bus{
		subs:       make(map[string][]*subscription),
		queue:      newPriorityQueue(),
		notify:     make(chan struct{}, 1),
		maxHistory: maxHistory,
		processed:  make(map[string]time.Time),
		backend:    cfg.Backend,
		done:       make(chan struct{}),
	}
	b.wg.Add(1)
	go b.processLoop()
	if b.backend != nil {
		b.wg.Add(1)
		go b.pullLoop()
	}
	return b
}

// Use registers an interceptor that may mutate events before enqueue.
func (b *Bus) Use(i Interceptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interceptors = append(b.interceptors, i)
}

// Filter registers a filter that may veto delivery of a validated event.
func (b *Bus) Filter(f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, f)
}

// Subscribe registers handler for eventType, which is either a literal
// name, "prefix.*" (prefix match), or "*" (universal). name is matched
// against an event's Destination when set, and used by Unsubscribe.
func (b *Bus) Subscribe(eventType string, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], &subscription{
		pattern: eventType,
		handler: handler,
		name:    name,
	})
}

// Unsubscribe removes every subscription registered under eventType with
// the given name. No-op if absent.
func (b *Bus) Unsubscribe(eventType string, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	filtered := subs[:0]
	for _, s := range subs {
		if s.name != name {
			filtered = append(filtered, s)
		}
	}
	b.subs[eventType] = filtered
}

func matches(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, ".*"))
	}
	return pattern == eventType
}

func (b *Bus) matchingSubscribers(e Event) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*subscription
	for pattern, subs := range b.subs {
		if !matches(pattern, e.EventType) {
			continue
		}
		for _, s := range subs {
			if e.Destination != "" && s.name != "" && s.name != e.Destination {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

// Publish validates TTL, runs interceptors then filters, and enqueues the
// event for priority-ordered dispatch. Returns the event id.
func (b *Bus) Publish(e Event) (string, error) {
	if e.EventID == "" {
		e = New(e.EventType, e.Source, e.Payload)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Expired() {
		b.recordDeadLetter(e)
		return e.EventID, fmt.Errorf("event %s expired before publish", e.EventID)
	}

	for _, ic := range b.interceptors {
		if err := ic(&e); err != nil {
			return e.EventID, fmt.Errorf("interceptor rejected event: %w", err)
		}
	}
	for _, f := range b.filters {
		if !f(e) {
			return e.EventID, nil // silently dropped by filter
		}
	}

	if b.backend != nil {
		if err := b.backend.Append(e); err != nil {
			slog.Warn("eventbus: durable append failed, falling back to local queue", "error", err, "event_id", e.EventID)
			b.enqueue(e)
		}
		return e.EventID, nil
	}

	b.enqueue(e)
	return e.EventID, nil
}

func (b *Bus) enqueue(e Event) {
	b.mu.Lock()
	b.queue.push(e)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// PublishAndWait publishes e with a fresh correlation id, subscribes a
// single-shot handler on "<event_type>.reply" matching that id, and blocks
// up to timeout for the reply.
func (b *Bus) PublishAndWait(e Event, timeout time.Duration) (*Event, error) {
	if e.CorrelationID == "" {
		e.CorrelationID = New("", "", nil).EventID
	}
	replyType := e.EventType + ".reply"
	replyCh := make(chan Event, 1)
	subName := "publish-and-wait-" + e.CorrelationID

	b.Subscribe(replyType, subName, func(reply Event) error {
		if reply.CorrelationID == e.CorrelationID {
			select {
			case replyCh <- reply:
			default:
			}
		}
		return nil
	})
	defer b.Unsubscribe(replyType, subName)

	if _, err := b.Publish(e); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return &reply, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// WaitForEvent blocks until an event of eventType satisfying predicate (or
// any event of that type, if predicate is nil) arrives, or timeout elapses.
func (b *Bus) WaitForEvent(eventType string, predicate func(Event) bool, timeout time.Duration) (*Event, error) {
	ch := make(chan Event, 1)
	subName := fmt.Sprintf("wait-for-event-%p", ch)
	b.Subscribe(eventType, subName, func(e Event) error {
		if predicate == nil || predicate(e) {
			select {
			case ch <- e:
			default:
			}
		}
		return nil
	})
	defer b.Unsubscribe(eventType, subName)

	select {
	case e := <-ch:
		return &e, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// History returns up to limit of the most recent events, optionally
// filtered by eventType, from the bounded ring buffer.
func (b *Bus) History(eventType string, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType == "" || b.history[i].EventType == eventType {
			out = append(out, b.history[i])
		}
	}
	return out
}

// ReplayEvents republishes historical events matching ids, in original order.
func (b *Bus) ReplayEvents(ids []string) error {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	b.mu.Lock()
	var toReplay []Event
	for _, e := range b.history {
		if wanted[e.EventID] {
			toReplay = append(toReplay, e)
		}
	}
	for _, e := range b.deadLetters {
		if wanted[e.EventID] {
			toReplay = append(toReplay, e)
		}
	}
	b.mu.Unlock()

	for _, e := range toReplay {
		if _, err := b.Publish(e); err != nil {
			return err
		}
	}
	return nil
}

// DeadLetterQueue returns a snapshot of events that exhausted retries.
func (b *Bus) DeadLetterQueue() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.deadLetters...)
}

// RetryDeadLetters republishes the named dead-lettered events (or all, if
// ids is empty) with RetryCount reset to 0.
func (b *Bus) RetryDeadLetters(ids []string) error {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	b.mu.Lock()
	var remaining []Event
	var toRetry []Event
	for _, e := range b.deadLetters {
		if len(ids) == 0 || wanted[e.EventID] {
			e.RetryCount = 0
			toRetry = append(toRetry, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	b.deadLetters = remaining
	b.mu.Unlock()

	for _, e := range toRetry {
		if _, err := b.Publish(e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) recordHistory(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, e)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
}

func (b *Bus) recordDeadLetter(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, e)
}

// processLoop is the single dispatcher task: it pulls the highest-priority
// event, collects matching subscribers, invokes them concurrently, and
// retries-with-demotion or dead-letters on failure (spec.md §4.1).
func (b *Bus) processLoop() {
	defer b.wg.Done()
	for {
		e, ok := b.dequeue()
		if !ok {
			select {
			case <-b.notify:
				continue
			case <-b.done:
				return
			}
		}

		if e.Expired() {
			b.recordDeadLetter(e)
			b.ackIfDurable(e)
			continue
		}

		subs := b.matchingSubscribers(e)
		failed := b.dispatchToAll(e, subs)

		if failed && e.RetryCount < e.MaxRetries {
			e.RetryCount++
			e.Priority--
			b.mu.Lock()
			b.queue.pushFront(e)
			b.mu.Unlock()
			select {
			case b.notify <- struct{}{}:
			default:
			}
			continue
		}
		if failed {
			b.recordDeadLetter(e)
		}
		b.recordHistory(e)
		b.ackIfDurable(e)
	}
}

func (b *Bus) dequeue() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.pop()
}

// dispatchToAll invokes every subscriber concurrently, catching each
// handler's error independently, and reports whether any handler failed.
func (b *Bus) dispatchToAll(e Event, subs []*subscription) bool {
	if len(subs) == 0 {
		return false
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	anyFailed := false
	for _, s := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("eventbus: recovered from panic in handler", "panic", r, "event_type", e.EventType)
					mu.Lock()
					anyFailed = true
					mu.Unlock()
				}
			}()
			if err := s.handler(e); err != nil {
				slog.Warn("eventbus: handler error", "error", err, "event_type", e.EventType)
				mu.Lock()
				anyFailed = true
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return anyFailed
}

func (b *Bus) ackIfDurable(e Event) {
	if b.backend != nil && e.AckID != "" {
		if err := b.backend.Ack(e.AckID); err != nil {
			slog.Warn("eventbus: durable ack failed", "error", err, "event_id", e.EventID)
		}
	}
}

// pullLoop polls the durable backend, deduplicates by event_id against a
// TTL'd processed set, and feeds the local priority queue.
func (b *Bus) pullLoop() {
	defer b.wg.Done()
	const dedupeTTL = time.Hour
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			events, err := b.backend.Poll()
			if err != nil {
				slog.Warn("eventbus: durable poll failed", "error", err)
				continue
			}
			now := time.Now()
			b.mu.Lock()
			for id, seenAt := range b.processed {
				if now.Sub(seenAt) > dedupeTTL {
					delete(b.processed, id)
				}
			}
			for _, e := range events {
				if _, seen := b.processed[e.EventID]; seen {
					continue
				}
				b.processed[e.EventID] = now
				b.queue.push(e)
			}
			b.mu.Unlock()
			select {
			case b.notify <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops the dispatch processor and (if configured) the durable
// puller, then waits for both to exit.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
