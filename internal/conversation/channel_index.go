package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelBinding is the record stored per channel so webhook handlers can
// build a complete reply job without loading conversation state.
type ChannelBinding struct {
	ConversationID string `json:"conversationId"`
	OrgID          string `json:"orgId"`
}

// ChannelIndex maps an inbound chat channel to its active conversation so
// webhook handlers can correlate replies. One conversation per channel at a
// time; a new initiate on the same channel overwrites the mapping.
type ChannelIndex struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewChannelIndex creates a channel index with the given TTL (0 means
// DefaultStateTTL, matching the state store).
func NewChannelIndex(redisClient *redis.Client, ttl time.Duration) *ChannelIndex {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &ChannelIndex{redis: redisClient, ttl: ttl}
}

func channelKey(platform, channelID string) string {
	return fmt.Sprintf("conversation_channel:%s:%s", platform, channelID)
}

// Bind points the channel at the conversation.
func (i *ChannelIndex) Bind(ctx context.Context, state *State) error {
	data, err := json.Marshal(ChannelBinding{
		ConversationID: state.ConversationID,
		OrgID:          state.OrgID,
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to encode channel binding: %w", err)
	}
	if err := i.redis.Set(ctx, channelKey(state.Platform, state.ChannelID), data, i.ttl).Err(); err != nil {
		return fmt.Errorf("conversation: failed to bind channel: %w", err)
	}
	return nil
}

// Lookup returns the binding for the channel, or nil when none is active.
func (i *ChannelIndex) Lookup(ctx context.Context, platform, channelID string) (*ChannelBinding, error) {
	val, err := i.redis.Get(ctx, channelKey(platform, channelID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to look up channel: %w", err)
	}

	var binding ChannelBinding
	if err := json.Unmarshal([]byte(val), &binding); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode channel binding: %w", err)
	}
	return &binding, nil
}

// Unbind clears the mapping once the conversation closes.
func (i *ChannelIndex) Unbind(ctx context.Context, state *State) error {
	if err := i.redis.Del(ctx, channelKey(state.Platform, state.ChannelID)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to unbind channel: %w", err)
	}
	return nil
}
