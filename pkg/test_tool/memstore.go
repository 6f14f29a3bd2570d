package testtool

import (
	"context"
	"sort"
	"sync"

	"travel_chat_service/internal/chat/domain"
)

// In-memory store and bus for tests that need a whole conversation to run
// without mongo or redis. The repos honor the repository contracts; the bus
// delivers synchronously in the publisher's goroutine, which makes event
// ordering deterministic in tests.

// MemRoomRepository 記憶體版 room store
type MemRoomRepository struct {
	mu    sync.Mutex
	rooms map[string]*domain.ChatRoom
}

// NewMemRoomRepository init memory room repository
func NewMemRoomRepository() *MemRoomRepository {
	return &MemRoomRepository{rooms: map[string]*domain.ChatRoom{}}
}

// CreateRoom stores a copy of room.
func (m *MemRoomRepository) CreateRoom(_ context.Context, room *domain.ChatRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

// FindByID returns the room or domain.ErrNotFound.
func (m *MemRoomRepository) FindByID(_ context.Context, roomID string) (*domain.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

// FindPrivateRoom matches the unordered participant pair.
func (m *MemRoomRepository) FindPrivateRoom(_ context.Context, userA, userB string) (*domain.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.rooms {
		if room.RoomType == domain.ChatRoomTypePrivate &&
			len(room.Participants) == 2 &&
			room.HasParticipant(userA) && room.HasParticipant(userB) {
			cp := *room
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByParticipant lists every room the user belongs to.
func (m *MemRoomRepository) FindByParticipant(_ context.Context, userID string) ([]domain.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatRoom
	for _, room := range m.rooms {
		if room.HasParticipant(userID) {
			out = append(out, *room)
		}
	}
	return out, nil
}

// UpdateLastMessage caches the room's newest message summary.
func (m *MemRoomRepository) UpdateLastMessage(_ context.Context, roomID string, last *domain.MessageSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		room.LastMessage = last
	}
	return nil
}

// MemMessageRepository 記憶體版 message store
type MemMessageRepository struct {
	mu   sync.Mutex
	msgs map[string]*domain.ChatMessage
}

// NewMemMessageRepository init memory message repository
func NewMemMessageRepository() *MemMessageRepository {
	return &MemMessageRepository{msgs: map[string]*domain.ChatMessage{}}
}

// Insert stores a copy of msg.
func (m *MemMessageRepository) Insert(_ context.Context, msg *domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.msgs[msg.ID] = &cp
	return nil
}

// FindByID returns the message or domain.ErrNotFound.
func (m *MemMessageRepository) FindByID(_ context.Context, roomID, messageID string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[messageID]
	if !ok || msg.RoomID != roomID {
		return nil, domain.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// ListByRoom returns the room's history newest first.
func (m *MemMessageRepository) ListByRoom(_ context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatMessage
	for _, msg := range m.msgs {
		if msg.RoomID == roomID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateContent rewrites the text and flags the message edited.
func (m *MemMessageRepository) UpdateContent(_ context.Context, roomID, messageID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[messageID]
	if !ok || msg.RoomID != roomID {
		return domain.ErrNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	return nil
}

// SoftDelete sets the tombstone, content untouched.
func (m *MemMessageRepository) SoftDelete(_ context.Context, roomID, messageID string, deletedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[messageID]
	if !ok || msg.RoomID != roomID {
		return domain.ErrNotFound
	}
	msg.DeletedAt = &deletedAt
	return nil
}

// MarkRoomRead flips every unread peer message in the room.
func (m *MemMessageRepository) MarkRoomRead(_ context.Context, roomID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.msgs {
		if msg.RoomID == roomID && msg.SenderID != readerID && !msg.ReadStatus {
			msg.ReadStatus = true
			n++
		}
	}
	return n, nil
}

// CountUnread counts unread peer messages across roomIDs.
func (m *MemMessageRepository) CountUnread(_ context.Context, userID string, roomIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inScope := map[string]bool{}
	for _, id := range roomIDs {
		inScope[id] = true
	}
	var n int64
	for _, msg := range m.msgs {
		if inScope[msg.RoomID] && msg.SenderID != userID && !msg.ReadStatus {
			n++
		}
	}
	return n, nil
}

// CountUnreadByRoom groups the unread count per room, zero-count rooms omitted.
func (m *MemMessageRepository) CountUnreadByRoom(_ context.Context, userID string, roomIDs []string) ([]domain.RoomUnreadInfo, error) {
	m.mu.Lock()
	counts := map[string]int{}
	for _, msg := range m.msgs {
		if msg.SenderID != userID && !msg.ReadStatus {
			counts[msg.RoomID]++
		}
	}
	m.mu.Unlock()
	var out []domain.RoomUnreadInfo
	for _, id := range roomIDs {
		if counts[id] > 0 {
			out = append(out, domain.RoomUnreadInfo{RoomID: id, UnreadCount: counts[id]})
		}
	}
	return out, nil
}

// MemTypingRepository 記憶體版 typing store
type MemTypingRepository struct {
	mu     sync.Mutex
	states map[string]map[string]domain.TypingState
}

// NewMemTypingRepository init memory typing repository
func NewMemTypingRepository() *MemTypingRepository {
	return &MemTypingRepository{states: map[string]map[string]domain.TypingState{}}
}

// Upsert stores the state keyed by (room, user).
func (m *MemTypingRepository) Upsert(_ context.Context, state domain.TypingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[state.RoomID] == nil {
		m.states[state.RoomID] = map[string]domain.TypingState{}
	}
	m.states[state.RoomID][state.UserID] = state
	return nil
}

// ListByRoom returns every stored state for the room, stale ones included.
func (m *MemTypingRepository) ListByRoom(_ context.Context, roomID string) ([]domain.TypingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TypingState
	for _, s := range m.states[roomID] {
		out = append(out, s)
	}
	return out, nil
}

// MemBus delivers events synchronously to every handler subscribed to the
// channel at publish time. Subscriptions honor ctx cancellation.
type MemBus struct {
	mu       sync.Mutex
	handlers map[string][]*memSub
}

type memSub struct {
	ctx     context.Context
	handler func(domain.ChatEvent)
}

// NewMemBus init memory bus
func NewMemBus() *MemBus {
	return &MemBus{handlers: map[string][]*memSub{}}
}

// Publish runs the channel's live handlers in the caller's goroutine.
func (b *MemBus) Publish(_ context.Context, channel string, event domain.ChatEvent) error {
	b.mu.Lock()
	subs := make([]*memSub, len(b.handlers[channel]))
	copy(subs, b.handlers[channel])
	b.mu.Unlock()
	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		sub.handler(event)
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled.
func (b *MemBus) Subscribe(ctx context.Context, channel string, handler func(event domain.ChatEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], &memSub{ctx: ctx, handler: handler})
	return nil
}
