package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"travel_chat_service/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func watchedBroadcaster(t *testing.T, userID, roomID string, repo *MockTypingRepository, bus *memoryBus) *TypingBroadcaster {
	t.Helper()
	repo.On("ListByRoom", mock.Anything, roomID).Return([]domain.TypingState(nil), nil).Once()
	b := NewTypingBroadcaster(userID, "Alice", repo, bus)
	assert.NoError(t, b.Watch(context.Background(), roomID))
	return b
}

// 連續輸入在 debounce 視窗內只發一次 upsert
func TestTypingBroadcaster_DebounceCoalesces(t *testing.T) {
	roomID := uuid.New().String()
	repo := new(MockTypingRepository)

	var mu sync.Mutex
	upserts := 0
	repo.On("Upsert", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		mu.Lock()
		upserts++
		mu.Unlock()
	}).Return(nil)

	b := watchedBroadcaster(t, "user-a", roomID, repo, newMemoryBus())
	b.debounce = 50 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		assert.NoError(t, b.SetTyping(ctx, true))
	}

	// first call goes straight out, the rest coalesce into one trailing send
	mu.Lock()
	assert.Equal(t, 1, upserts)
	mu.Unlock()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return upserts == 2
	}, time.Second, 10*time.Millisecond)
}

// 停止輸入不做 debounce，立刻送出
func TestTypingBroadcaster_StopIsImmediate(t *testing.T) {
	roomID := uuid.New().String()
	repo := new(MockTypingRepository)

	var mu sync.Mutex
	var states []domain.TypingState
	repo.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		states = append(states, args.Get(1).(domain.TypingState))
		mu.Unlock()
	}).Return(nil)

	b := watchedBroadcaster(t, "user-a", roomID, repo, newMemoryBus())
	b.debounce = 50 * time.Millisecond

	ctx := context.Background()
	assert.NoError(t, b.SetTyping(ctx, true))
	assert.NoError(t, b.SetTyping(ctx, true)) // coalesced, pending
	assert.NoError(t, b.SetTyping(ctx, false))

	mu.Lock()
	assert.Len(t, states, 2)
	assert.True(t, states[0].IsTyping)
	assert.False(t, states[1].IsTyping)
	mu.Unlock()

	// the pending true was cancelled by the stop
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Len(t, states, 2)
	mu.Unlock()
}

// 過期的 typing state 讀取時視為 false，不寫回儲存
func TestTypingBroadcaster_StalenessFilter(t *testing.T) {
	roomID := uuid.New().String()
	repo := new(MockTypingRepository)
	bus := newMemoryBus()
	b := watchedBroadcaster(t, "user-a", roomID, repo, bus)

	base := time.Now()
	b.now = func() time.Time { return base }

	fresh := domain.TypingState{RoomID: roomID, UserID: "user-b", DisplayName: "Bob", IsTyping: true, UpdatedAt: base.UnixMilli()}
	err := bus.Publish(context.Background(), domain.RoomChannel(roomID),
		domain.ChatEvent{Type: domain.EventTyping, RoomID: roomID, Typing: &fresh})
	assert.NoError(t, err)

	peers := b.TypingPeers()
	assert.Contains(t, peers, "user-b")

	// six seconds pass with no further write from user-b
	b.now = func() time.Time { return base.Add(6 * time.Second) }
	assert.Empty(t, b.TypingPeers())
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// 自己的 typing 事件不進 peers
func TestTypingBroadcaster_IgnoresOwnEvents(t *testing.T) {
	roomID := uuid.New().String()
	bus := newMemoryBus()
	b := watchedBroadcaster(t, "user-a", roomID, new(MockTypingRepository), bus)

	own := domain.TypingState{RoomID: roomID, UserID: "user-a", IsTyping: true, UpdatedAt: time.Now().UnixMilli()}
	err := bus.Publish(context.Background(), domain.RoomChannel(roomID),
		domain.ChatEvent{Type: domain.EventTyping, RoomID: roomID, Typing: &own})
	assert.NoError(t, err)
	assert.Empty(t, b.TypingPeers())
}

// 離開房間立刻清掉自己的 indicator
func TestTypingBroadcaster_LeaveClearsOwnState(t *testing.T) {
	roomID := uuid.New().String()
	repo := new(MockTypingRepository)

	var last domain.TypingState
	var mu sync.Mutex
	repo.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		last = args.Get(1).(domain.TypingState)
		mu.Unlock()
	}).Return(nil)

	bus := newMemoryBus()
	b := watchedBroadcaster(t, "user-a", roomID, repo, bus)

	assert.NoError(t, b.SetTyping(context.Background(), true))
	b.Leave(context.Background())

	mu.Lock()
	assert.False(t, last.IsTyping)
	mu.Unlock()
	assert.Empty(t, b.TypingPeers())

	// typing after leave is a no-op
	repoCalls := len(repo.Calls)
	assert.NoError(t, b.SetTyping(context.Background(), true))
	assert.Len(t, repo.Calls, repoCalls)
}

// leave 之後不得殘留 peer 的 expiry timer
func TestTypingBroadcaster_LeaveStopsExpiryTimers(t *testing.T) {
	roomID := uuid.New().String()
	repo := new(MockTypingRepository)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	bus := newMemoryBus()
	b := watchedBroadcaster(t, "user-a", roomID, repo, bus)

	peer := domain.TypingState{RoomID: roomID, UserID: "user-b", IsTyping: true, UpdatedAt: time.Now().UnixMilli()}
	err := bus.Publish(context.Background(), domain.RoomChannel(roomID),
		domain.ChatEvent{Type: domain.EventTyping, RoomID: roomID, Typing: &peer})
	assert.NoError(t, err)

	b.mu.Lock()
	assert.Len(t, b.expiry, 1)
	b.mu.Unlock()

	b.Leave(context.Background())

	b.mu.Lock()
	assert.Empty(t, b.expiry)
	b.mu.Unlock()
}
