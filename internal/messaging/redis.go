package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// SystemMessage is the payload broadcast to chat subscribers of an escrow
// channel. The chat service persists and fans it out; we only publish.
type SystemMessage struct {
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	System    bool      `json:"system"`
	SentAt    time.Time `json:"sent_at"`
}

// RedisMessenger publishes system messages on the per-channel Redis topic the
// chat transport subscribes to.
type RedisMessenger struct {
	client *redis.Client
}

func NewRedisMessenger(client *redis.Client) *RedisMessenger {
	return &RedisMessenger{client: client}
}

func (m *RedisMessenger) SendSystemMessage(channelID, text string) error {
	payload, err := json.Marshal(SystemMessage{
		ChannelID: channelID,
		Text:      text,
		System:    true,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return m.client.Publish(context.Background(), "channel:"+channelID, payload).Err()
}
