package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/jsonwire/ingress"
)

// RedisSink mirrors ingress items to a Redis pub/sub channel. Each item is
// published as a JSON document; subscribers that are not listening simply
// miss it (pub/sub keeps nothing), which matches the best-effort contract.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// payload is the published wire form of an ingress item.
type payload struct {
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	Peer       string         `json:"peer"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NewRedisSink creates a Sink that publishes every item to the given
// channel using the provided Redis client. The caller retains ownership of
// the client; Close does not close it.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	sink := mirror.NewRedisSink(client, "jsonwire.ingress")
//
// Parameters:
//   - client: Connected Redis client
//   - channel: Pub/sub channel name to publish to
//
// Returns:
//   - A new RedisSink
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
	}
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, item *ingress.Item) error {
	body, err := json.Marshal(payload{
		Type:       item.Message.Type,
		Data:       item.Message.Data,
		Peer:       item.Peer.String(),
		ReceivedAt: item.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode ingress item: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.channel, err)
	}

	return nil
}

// Close implements Sink. The underlying client belongs to the caller, so
// there is nothing to release.
func (s *RedisSink) Close() error {
	return nil
}
