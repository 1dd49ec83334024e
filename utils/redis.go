// utils/redis.go
package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"argufight-arena/services"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects and pings Redis.
func InitRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// StreamPublisher appends domain events to a Redis stream for downstream consumers.
type StreamPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: 10000}
}

func (p *StreamPublisher) Publish(ctx context.Context, event services.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      event.Type,
			"entity_id": event.EntityID,
			"data":      data,
		},
		MaxLen: p.maxLen,
		Approx: true,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// RedisAppealQuota counts appeals per user per calendar month.
type RedisAppealQuota struct {
	rdb     *redis.Client
	monthly int
	now     func() time.Time
}

func NewRedisAppealQuota(rdb *redis.Client, monthly int) *RedisAppealQuota {
	return &RedisAppealQuota{rdb: rdb, monthly: monthly, now: time.Now}
}

func (q *RedisAppealQuota) key(userID string) string {
	return fmt.Sprintf("appeals:%s:%s", userID, q.now().UTC().Format("2006-01"))
}

func (q *RedisAppealQuota) Remaining(ctx context.Context, userID string) (int, error) {
	used, err := q.rdb.Get(ctx, q.key(userID)).Int()
	if err == redis.Nil {
		return q.monthly, nil
	}
	if err != nil {
		return 0, err
	}
	if used >= q.monthly {
		return 0, nil
	}
	return q.monthly - used, nil
}

func (q *RedisAppealQuota) Consume(ctx context.Context, userID string) error {
	key := q.key(userID)
	pipe := q.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 32*24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
