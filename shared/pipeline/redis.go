package pipeline

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisQueue publishes to Redis Streams, one stream per topic. Consumers read
// with XREADGROUP and acknowledge, which gives at-least-once delivery.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Publish(ctx context.Context, topic string, key string, payload []byte) (string, error) {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"id":   uuid.New().String(),
			"key":  key,
			"data": string(payload),
		},
	}).Result()
}
