package notify

import (
	"context"
	"encoding/json"

	"student-bulk-import/internal/model"

	"github.com/go-redis/redis/v8"
)

// RedisPublisher fans push events out over Redis pub/sub, one channel per
// user, so any API instance holding the user's socket can forward them.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + userID
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string, event model.PushEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.Channel(userID), data).Err()
}

// Subscribe opens a subscription to the user's channel. Callers must close it.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return p.client.Subscribe(ctx, p.Channel(userID))
}
