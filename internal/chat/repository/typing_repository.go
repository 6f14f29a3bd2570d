package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"travel_chat_service/internal/chat/domain"

	"github.com/go-redis/redis/v8"
)

// TypingRepository definition ephemeral typing state per (room, user).
// States are upserted, never deleted — expiry is a read-side policy applied
// by the broadcaster, not here.
type TypingRepository interface {
	Upsert(ctx context.Context, state domain.TypingState) error
	ListByRoom(ctx context.Context, roomID string) ([]domain.TypingState, error)
}

type typingRepository struct {
	client *redis.Client
}

// NewRedisTypingRepository create typing repository backed by redis
func NewRedisTypingRepository(client *redis.Client) TypingRepository {
	return &typingRepository{client: client}
}

func typingKey(roomID string) string {
	return "chat:typing:" + roomID
}

func (r *typingRepository) Upsert(ctx context.Context, state domain.TypingState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, typingKey(state.RoomID), state.UserID, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *typingRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.TypingState, error) {
	entries, err := r.client.HGetAll(ctx, typingKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	states := make([]domain.TypingState, 0, len(entries))
	for _, raw := range entries {
		var state domain.TypingState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}
