package tracing

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream per topic. The stream
// entry carries the correlation key alongside the encoded event so readers
// can filter without decoding.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":   key,
			"event": value,
		},
	}).Err()
}
