package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// ErrNoJob is returned by Dequeue when the wait timed out.
var ErrNoJob = errors.New("no job available")

// Commands is the subset of the go-redis client used by this package.
type Commands interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisQueue is a FIFO job queue on a Redis list: producers LPUSH, workers
// BRPOP.
type RedisQueue struct {
	client Commands
	key    string
}

// NewRedisQueue builds a queue stored under key.
func NewRedisQueue(client Commands, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Enqueue appends msg to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, msg domain.JobMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", msg.JobID, err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job. It returns ErrNoJob when
// nothing arrived in time.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (domain.JobMessage, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.JobMessage{}, ErrNoJob
	}
	if err != nil {
		return domain.JobMessage{}, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) != 2 {
		return domain.JobMessage{}, fmt.Errorf("dequeue: unexpected reply %v", res)
	}
	var msg domain.JobMessage
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return domain.JobMessage{}, fmt.Errorf("decode job: %w", err)
	}
	if msg.JobID == "" {
		return domain.JobMessage{}, errors.New("decode job: missing job id")
	}
	return msg, nil
}

// Len returns the number of waiting jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
