package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// EventBus is the push capability of the store: publish a chat event to a
// channel, or subscribe and receive every event published there until ctx
// is cancelled. Subscriptions hold store-side resources and must be torn
// down by cancelling ctx.
type EventBus interface {
	Publish(ctx context.Context, channel string, event domain.ChatEvent) error
	Subscribe(ctx context.Context, channel string, handler func(event domain.ChatEvent)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 將 event 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event domain.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Subscribe 訂閱指定 channel，收到事件後呼叫 handler 處理。
// 當 ctx 被取消時退出循環並關閉訂閱。
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(event domain.ChatEvent)) error {
	sub := r.client.Subscribe(ctx, channel)
	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var event domain.ChatEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Errorf("event unmarshal error:", err)
					continue
				}
				handler(event)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
