package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Backend grounded in goatclaw's MessageBroker: a Redis
// Stream plus a consumer group gives every event at-least-once delivery
// across process restarts, and XACK marks it consumed. A processed:<id>
// key with a one-hour TTL guards against the duplicate delivery a crashed
// consumer's pending entries can cause on group redelivery.
type RedisBackend struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewRedisBackend creates the consumer group (tolerating BUSYGROUP if it
// already exists from a prior run) and returns a Backend ready to Append
// and Poll against stream.
func NewRedisBackend(ctx context.Context, client *redis.Client, stream, group string) (*RedisBackend, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("eventbus: create consumer group: %w", err)
	}
	return &RedisBackend{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: fmt.Sprintf("consumer-%d-%s", os.Getpid(), uuid.NewString()[:8]),
	}, nil
}

func (r *RedisBackend) Append(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	ctx := context.Background()
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"event_id": e.EventID, "payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("eventbus: xadd: %w", err)
	}
	return nil
}

// Poll reads up to 100 unseen entries for this backend's consumer, via
// XREADGROUP, and filters out anything a processed:<event_id> key already
// marks delivered (goatclaw's is_duplicate dedup key, exact same 3600s TTL).
func (r *RedisBackend) Poll() ([]Event, error) {
	ctx := context.Background()
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    100,
		Block:    100 * time.Millisecond,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventbus: xreadgroup: %w", err)
	}

	var events []Event
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values["payload"].(string)
			var e Event
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				continue
			}
			e.AckID = msg.ID

			isNew, err := r.client.SetNX(ctx, dedupeKey(e.EventID), "1", time.Hour).Result()
			if err != nil {
				return nil, fmt.Errorf("eventbus: dedupe check: %w", err)
			}
			if !isNew {
				r.client.XAck(ctx, r.stream, r.group, msg.ID)
				continue
			}
			events = append(events, e)
		}
	}
	return events, nil
}

func (r *RedisBackend) Ack(ackID string) error {
	if err := r.client.XAck(context.Background(), r.stream, r.group, ackID).Err(); err != nil {
		return fmt.Errorf("eventbus: xack %s: %w", ackID, err)
	}
	return nil
}

func dedupeKey(eventID string) string {
	return "processed:" + eventID
}

// Close releases the underlying Redis client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
