package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue grounded in goatclaw's TaskQueue: a pending list and
// a processing list, with BRPOPLPUSH moving an item from one to the other
// atomically so a crashed worker's claimed tasks stay visible in the
// processing list rather than vanishing.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	processingKey string
}

// NewRedisQueue wraps client with the queue/processing key pair used by
// every RedisQueue instance across a distributed deployment.
func NewRedisQueue(client *redis.Client, queueKey string) *RedisQueue {
	if queueKey == "" {
		queueKey = "taskgraph_task_queue"
	}
	return &RedisQueue{
		client:        client,
		pendingKey:    queueKey,
		processingKey: queueKey + "_processing",
	}
}

func (q *RedisQueue) Push(ctx context.Context, p Payload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal payload: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey, payload).Err(); err != nil {
		return fmt.Errorf("taskqueue: lpush: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for an item, moving it from pendingKey to
// processingKey via BRPOPLPUSH so it survives a crash between pop and
// Complete.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Payload, error) {
	raw, err := q.client.BRPopLPush(ctx, q.pendingKey, q.processingKey, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskqueue: brpoplpush: %w", err)
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("taskqueue: unmarshal payload: %w", err)
	}
	p.raw = raw
	return &p, nil
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("taskqueue: llen: %w", err)
	}
	return int(n), nil
}

// Complete removes p from the processing list. Redis' LREM matches by exact
// value, so this re-marshals p the same way Push did; a Payload round-tripped
// through Pop carries its original JSON in raw for exactly this reason.
func (q *RedisQueue) Complete(ctx context.Context, p Payload) error {
	payload := p.raw
	if payload == "" {
		marshaled, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("taskqueue: marshal payload: %w", err)
		}
		payload = string(marshaled)
	}
	if err := q.client.LRem(ctx, q.processingKey, 0, payload).Err(); err != nil {
		return fmt.Errorf("taskqueue: lrem: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context) ([]Payload, error) {
	raws, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("taskqueue: lrange: %w", err)
	}
	out := make([]Payload, 0, len(raws))
	for _, raw := range raws {
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		p.raw = raw
		out = append(out, p)
	}
	return out, nil
}
