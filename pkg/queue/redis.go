package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalFuse/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when nothing arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// RedisQueue is a FIFO list: LPUSH on enqueue, BRPOP on dequeue.
type RedisQueue struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
	logger    *logger.Logger
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithMaxLen trims the list to the newest n messages after each push. Zero disables trimming.
func WithMaxLen(n int64) RedisQueueOption {
	return func(r *RedisQueue) { r.maxLen = n }
}

func WithLogger(l *logger.Logger) RedisQueueOption {
	return func(r *RedisQueue) { r.logger = l }
}

func withClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) { r.now = now }
}

func NewRedisQueue(client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		client:    client,
		keyPrefix: "signalfuse:queue",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logger.OrNop(q.logger).With(logger.Component("queue"))
	return q
}

// Enqueue wraps payload in a Message and pushes it.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	}
	return r.push(ctx, r.QueueKey(), msg)
}

func (r *RedisQueue) push(ctx context.Context, key string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if r.maxLen <= 0 {
		if err := r.client.LPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("lpush %s: %w", key, err)
		}
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest message.
func (r *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Message, error) {
	res, err := r.client.BRPop(ctx, timeout, r.QueueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Message{}, ErrEmpty
		}
		return Message{}, fmt.Errorf("brpop: %w", err)
	}
	if len(res) < 2 {
		return Message{}, ErrEmpty
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}

// DeadLetter parks a message the consumer gave up on.
func (r *RedisQueue) DeadLetter(ctx context.Context, msg Message, cause error) error {
	msg.Attempts++
	r.logger.Warn("message dead-lettered",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempts", msg.Attempts),
		logger.Error(cause))
	return r.push(ctx, r.DeadLetterKey(), msg)
}

func (r *RedisQueue) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.QueueKey()).Result()
}

func (r *RedisQueue) QueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) DeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

var _ Publisher = (*RedisQueue)(nil)
