package app

import (
	"context"
	"sync"

	"travel_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// CreateRoom mock create room
func (m *MockRoomRepository) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

// FindByID mock find room by room id
func (m *MockRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindPrivateRoom mock find one private room by pair
func (m *MockRoomRepository) FindPrivateRoom(ctx context.Context, userA, userB string) (*domain.ChatRoom, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByParticipant mock list rooms by member
func (m *MockRoomRepository) FindByParticipant(ctx context.Context, userID string) ([]domain.ChatRoom, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateLastMessage mock refresh last message cache
func (m *MockRoomRepository) UpdateLastMessage(ctx context.Context, roomID string, last *domain.MessageSummary) error {
	args := m.Called(ctx, roomID, last)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID mock find message
func (m *MockMessageRepository) FindByID(ctx context.Context, roomID, messageID string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByRoom mock list room messages
func (m *MockMessageRepository) ListByRoom(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateContent mock edit message content
func (m *MockMessageRepository) UpdateContent(ctx context.Context, roomID, messageID, content string) error {
	args := m.Called(ctx, roomID, messageID, content)
	return args.Error(0)
}

// SoftDelete mock tombstone message
func (m *MockMessageRepository) SoftDelete(ctx context.Context, roomID, messageID string, deletedAt int64) error {
	args := m.Called(ctx, roomID, messageID, deletedAt)
	return args.Error(0)
}

// MarkRoomRead mock batch read mark
func (m *MockMessageRepository) MarkRoomRead(ctx context.Context, roomID, readerID string) (int64, error) {
	args := m.Called(ctx, roomID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

// CountUnread mock unread total
func (m *MockMessageRepository) CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error) {
	args := m.Called(ctx, userID, roomIDs)
	return args.Get(0).(int64), args.Error(1)
}

// CountUnreadByRoom mock unread per room
func (m *MockMessageRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) ([]domain.RoomUnreadInfo, error) {
	args := m.Called(ctx, userID, roomIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.RoomUnreadInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTypingRepository Mock TypingRepository
type MockTypingRepository struct {
	mock.Mock
}

// Upsert mock typing upsert
func (m *MockTypingRepository) Upsert(ctx context.Context, state domain.TypingState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// ListByRoom mock typing states by room
func (m *MockTypingRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.TypingState, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.TypingState), args.Error(1)
	}
	return nil, args.Error(1)
}

// memoryBus is an in-process EventBus with synchronous delivery, so tests
// observe subscription effects without sleeping.
type memoryBus struct {
	mu        sync.Mutex
	subs      map[string][]func(domain.ChatEvent)
	published map[string][]domain.ChatEvent
}

func newMemoryBus() *memoryBus {
	return &memoryBus{
		subs:      map[string][]func(domain.ChatEvent){},
		published: map[string][]domain.ChatEvent{},
	}
}

func (b *memoryBus) Publish(ctx context.Context, channel string, event domain.ChatEvent) error {
	b.mu.Lock()
	b.published[channel] = append(b.published[channel], event)
	handlers := make([]func(domain.ChatEvent), len(b.subs[channel]))
	copy(handlers, b.subs[channel])
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string, handler func(event domain.ChatEvent)) error {
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], handler)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) events(channel string) []domain.ChatEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ChatEvent, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}
