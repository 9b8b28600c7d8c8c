package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStateTTL is the sole cleanup mechanism for abandoned conversations:
// if the reviewer never replies, the entry silently expires and any later
// stray reply becomes a no-op.
const DefaultStateTTL = 24 * time.Hour

// StateStore keeps in-flight conversation state in Redis. It provides no
// locking; callers must serialize access per conversation (see Lock).
type StateStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStateStore creates a state store with the given TTL (0 means DefaultStateTTL).
func NewStateStore(redisClient *redis.Client, ttl time.Duration) *StateStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("pulsekit.internal.conversation.state"),
	}
}

// Get loads a conversation state. A missing or expired conversation returns
// (nil, nil): absence is not an error.
func (s *StateStore) Get(ctx context.Context, conversationID string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	return &state, nil
}

// Set persists a conversation state, resetting the TTL.
func (s *StateStore) Set(ctx context.Context, state *State) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

// Delete removes a conversation state. Deleting an absent key is not an error.
func (s *StateStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_state")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete state: %w", err)
	}
	return nil
}

func stateKey(id string) string {
	return fmt.Sprintf("conversation_state:%s", id)
}
