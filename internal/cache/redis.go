// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samyarj/polyhoot/internal/models"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "polyhoot_actions"

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActionQueue is the Redis list sessions push their actions to and the
// historian drains.
type ActionQueue struct {
	Rdb   *redis.Client
	Queue string
}

func NewActionQueue(rdb *redis.Client, queue string) *ActionQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &ActionQueue{Rdb: rdb, Queue: queue}
}

// LogAction serializes the given action to JSON, then pushes it to the Redis queue.
func (q *ActionQueue) LogAction(ctx context.Context, action models.GameAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal GameAction: %w", err)
	}
	if err := q.Rdb.RPush(ctx, q.Queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.Queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next action. It returns (nil, nil) when
// the queue stayed empty.
func (q *ActionQueue) Pop(ctx context.Context, timeout time.Duration) (*models.GameAction, error) {
	res, err := q.Rdb.BLPop(ctx, timeout, q.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.Queue, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	var action models.GameAction
	if err := json.Unmarshal([]byte(res[1]), &action); err != nil {
		return nil, fmt.Errorf("invalid action record: %w", err)
	}
	return &action, nil
}

// Len returns the number of queued actions.
func (q *ActionQueue) Len(ctx context.Context) (int64, error) {
	return q.Rdb.LLen(ctx, q.Queue).Result()
}
