package app

import (
	"context"
	"sync"
	"time"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"
	"travel_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// TypingBroadcaster publishes the current user's typing state for one room
// and aggregates the peers' states. Outbound true updates are debounced;
// an explicit false goes out immediately. Inbound states pass the staleness
// window at read time — a crashed peer's indicator self-heals with no
// cleanup write.
type TypingBroadcaster struct {
	userID      string
	displayName string
	repo        repository.TypingRepository
	bus         repository.EventBus

	debounce   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	roomID   string
	cancel   context.CancelFunc
	peers    map[string]domain.TypingState
	expiry   map[string]*time.Timer
	pending  *time.Timer
	lastSent time.Time

	updates chan struct{}
}

// NewTypingBroadcaster init typing broadcaster for one signed-in user
func NewTypingBroadcaster(
	userID, displayName string,
	repo repository.TypingRepository,
	bus repository.EventBus,
) *TypingBroadcaster {
	return &TypingBroadcaster{
		userID:      userID,
		displayName: displayName,
		repo:        repo,
		bus:         bus,
		debounce:    domain.TypingDebounce,
		staleAfter:  domain.TypingStaleAfter,
		now:         time.Now,
		peers:       map[string]domain.TypingState{},
		expiry:      map[string]*time.Timer{},
		updates:     make(chan struct{}, 1),
	}
}

// Configure overrides the debounce and staleness windows. Zero values keep
// the defaults.
func (b *TypingBroadcaster) Configure(debounce, staleAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if debounce > 0 {
		b.debounce = debounce
	}
	if staleAfter > 0 {
		b.staleAfter = staleAfter
	}
}

// Watch subscribes to roomID's typing feed and seeds the peer map from the
// store. Any prior room's subscription is torn down first.
func (b *TypingBroadcaster) Watch(ctx context.Context, roomID string) error {
	b.mu.Lock()
	b.stopLocked()
	b.roomID = roomID
	subCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	if err := b.bus.Subscribe(subCtx, domain.RoomChannel(roomID), b.handleEvent); err != nil {
		cancel()
		return err
	}

	states, err := b.repo.ListByRoom(ctx, roomID)
	if err != nil {
		b.mu.Lock()
		b.stopLocked()
		b.mu.Unlock()
		return err
	}
	b.mu.Lock()
	for _, s := range states {
		if s.UserID == b.userID {
			continue
		}
		b.peers[s.UserID] = s
		b.scheduleExpiryLocked(s)
	}
	b.mu.Unlock()
	b.notify()
	return nil
}

// SetTyping records the user's composer state. Rapid true toggles coalesce
// to at most one upsert per debounce window; false bypasses the debounce so
// clearing is prompt.
func (b *TypingBroadcaster) SetTyping(ctx context.Context, isTyping bool) error {
	b.mu.Lock()
	roomID := b.roomID
	if roomID == "" {
		b.mu.Unlock()
		return nil
	}

	if !isTyping {
		if b.pending != nil {
			b.pending.Stop()
			b.pending = nil
		}
		b.mu.Unlock()
		return b.publish(ctx, roomID, false)
	}

	now := b.now()
	if now.Sub(b.lastSent) >= b.debounce {
		b.lastSent = now
		b.mu.Unlock()
		return b.publish(ctx, roomID, true)
	}

	if b.pending == nil {
		wait := b.debounce - now.Sub(b.lastSent)
		b.pending = time.AfterFunc(wait, func() {
			b.mu.Lock()
			b.pending = nil
			if b.roomID != roomID {
				b.mu.Unlock()
				return
			}
			b.lastSent = b.now()
			b.mu.Unlock()
			if err := b.publish(context.Background(), roomID, true); err != nil {
				logger.Log.Warn("debounced typing publish failed",
					zap.String("roomID", roomID), zap.Error(err))
			}
		})
	}
	b.mu.Unlock()
	return nil
}

// TypingPeers aggregates active peers, staleness already applied. The map
// key is the peer user id.
func (b *TypingBroadcaster) TypingPeers() map[string]domain.TypingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := map[string]domain.TypingState{}
	for id, s := range b.peers {
		if s.ActiveWithin(now, b.staleAfter) {
			out[id] = s
		}
	}
	return out
}

// Updates signals peer changes, including expiries; receivers re-read
// TypingPeers().
func (b *TypingBroadcaster) Updates() <-chan struct{} {
	return b.updates
}

// Leave clears the user's own indicator and tears down the subscription.
func (b *TypingBroadcaster) Leave(ctx context.Context) {
	b.mu.Lock()
	roomID := b.roomID
	b.mu.Unlock()
	if roomID == "" {
		return
	}
	if err := b.publish(ctx, roomID, false); err != nil {
		logger.Log.Warn("typing clear on leave failed",
			zap.String("roomID", roomID), zap.Error(err))
	}
	b.mu.Lock()
	b.stopLocked()
	b.mu.Unlock()
	b.notify()
}

func (b *TypingBroadcaster) publish(ctx context.Context, roomID string, isTyping bool) error {
	state := domain.TypingState{
		RoomID:      roomID,
		UserID:      b.userID,
		DisplayName: b.displayName,
		IsTyping:    isTyping,
		UpdatedAt:   b.now().UnixMilli(),
	}
	if err := b.repo.Upsert(ctx, state); err != nil {
		return err
	}
	return b.bus.Publish(ctx, domain.RoomChannel(roomID),
		domain.ChatEvent{Type: domain.EventTyping, RoomID: roomID, Typing: &state})
}

func (b *TypingBroadcaster) handleEvent(event domain.ChatEvent) {
	if event.Type != domain.EventTyping || event.Typing == nil {
		return
	}
	if event.Typing.UserID == b.userID {
		return
	}
	b.mu.Lock()
	if event.RoomID != b.roomID {
		b.mu.Unlock()
		return
	}
	b.peers[event.Typing.UserID] = *event.Typing
	b.scheduleExpiryLocked(*event.Typing)
	b.mu.Unlock()
	b.notify()
}

// scheduleExpiryLocked re-notifies observers when a true state crosses the
// staleness window, so indicators clear without any further peer write.
func (b *TypingBroadcaster) scheduleExpiryLocked(s domain.TypingState) {
	if !s.IsTyping {
		return
	}
	expiresIn := time.Duration(s.UpdatedAt)*time.Millisecond + b.staleAfter - time.Duration(b.now().UnixMilli())*time.Millisecond
	if expiresIn <= 0 {
		return
	}
	roomID := b.roomID
	if prev := b.expiry[s.UserID]; prev != nil {
		prev.Stop()
	}
	b.expiry[s.UserID] = time.AfterFunc(expiresIn, func() {
		b.mu.Lock()
		sameRoom := b.roomID == roomID
		b.mu.Unlock()
		if sameRoom {
			b.notify()
		}
	})
}

func (b *TypingBroadcaster) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	for _, t := range b.expiry {
		t.Stop()
	}
	b.expiry = map[string]*time.Timer{}
	b.roomID = ""
	b.peers = map[string]domain.TypingState{}
	b.lastSent = time.Time{}
}

func (b *TypingBroadcaster) notify() {
	select {
	case b.updates <- struct{}{}:
	default:
	}
}
