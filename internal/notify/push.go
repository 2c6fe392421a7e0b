package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher emits an event to every subscriber of channelKey.
type Publisher interface {
	Publish(ctx context.Context, channelKey, event string, payload any) error
}

// Envelope is the message body published on a Redis channel.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPublisher publishes envelopes with PUBLISH on <prefix><channelKey>.
// Delivery is fire-and-forget: offline subscribers miss the event.
type RedisPublisher struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

func NewRedisPublisher(client redis.Cmdable, prefix string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Channel is the Redis channel name for an owner.
func (p *RedisPublisher) Channel(channelKey string) string {
	return p.prefix + channelKey
}

func (p *RedisPublisher) Publish(ctx context.Context, channelKey, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendError{Channel: "push", Err: fmt.Errorf("marshal payload: %w", err)}
	}
	msg, err := json.Marshal(Envelope{Event: event, Payload: body})
	if err != nil {
		return &SendError{Channel: "push", Err: fmt.Errorf("marshal envelope: %w", err)}
	}
	channel := p.Channel(channelKey)
	receivers, err := p.client.Publish(ctx, channel, msg).Result()
	if err != nil {
		return &SendError{Channel: "push", Err: err}
	}
	p.logger.Debug("push published", "channel", channel, "event", event, "receivers", receivers)
	return nil
}
