package eventbus

import "container/heap"

// queueItem wraps an Event with a monotonically increasing sequence number
// so that equal priorities preserve publish order (spec.md §4.1: keyed by
// (-priority, sequence)).
type queueItem struct {
	event Event
	seq   uint64
}

type priorityHeap []queueItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].event.Priority != h[j].event.Priority {
		return h[i].event.Priority > h[j].event.Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// priorityQueue is a concurrency-unsafe priority queue of events; callers
// serialize access with their own mutex (see bus.go).
type priorityQueue struct {
	h       priorityHeap
	nextSeq uint64
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{}
	heap.Init(&pq.h)
	return pq
}

func (pq *priorityQueue) push(e Event) {
	heap.Push(&pq.h, queueItem{event: e, seq: pq.nextSeq})
	pq.nextSeq++
}

// pushFront re-enqueues an event preserving its relative priority order
// against items already queued; used for retry-with-demotion.
func (pq *priorityQueue) pushFront(e Event) {
	pq.push(e)
}

func (pq *priorityQueue) pop() (Event, bool) {
	if pq.h.Len() == 0 {
		return Event{}, false
	}
	item := heap.Pop(&pq.h).(queueItem)
	return item.event, true
}

func (pq *priorityQueue) len() int {
	return pq.h.Len()
}
