package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/paychat/internal/model"
)

// Redis is the Redis Pub/Sub bus. Pub/Sub keeps no backlog, so a recipient
// only sees messages published while its instance is subscribed.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func (r *Redis) Publish(ctx context.Context, msg model.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.client.Publish(ctx, RedisChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to [%s]: %w", RedisChannel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, out chan<- model.ChatMessage) error {
	pubsub := r.client.Subscribe(ctx, RedisChannel)

	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to [%s]: %w", RedisChannel, err)
	}

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var payload model.ChatMessage
				if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
					r.log.Error("could not decode payload", slog.Any("error", err))
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Close is a no-op; the client is shared with the session store and closed
// by its owner.
func (r *Redis) Close() error {
	return nil
}
