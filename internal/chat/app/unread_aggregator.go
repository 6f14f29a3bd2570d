package app

import (
	"context"
	"sync"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"
	"travel_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// UnreadAggregator maintains the cross-room unread count for one user:
// messages not sent by them and not yet read, over every room they belong
// to. Recomputation is reactive — any event on the user's channel triggers
// a recount; it never polls.
type UnreadAggregator struct {
	userID   string
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	bus      repository.EventBus

	mu     sync.Mutex
	count  int64
	cancel context.CancelFunc

	updates chan struct{}
}

// NewUnreadAggregator init unread aggregator for one signed-in user
func NewUnreadAggregator(
	userID string,
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	bus repository.EventBus,
) *UnreadAggregator {
	return &UnreadAggregator{
		userID:   userID,
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		bus:      bus,
		updates:  make(chan struct{}, 1),
	}
}

// Start subscribes to the user's event channel and computes the initial
// count. Runs until Stop.
func (a *UnreadAggregator) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.bus.Subscribe(subCtx, domain.UserChannel(a.userID), a.handleEvent); err != nil {
		cancel()
		return err
	}
	return a.recount(ctx)
}

// Count the current unread total
func (a *UnreadAggregator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// PerRoom breaks the total down by room, for the chat list badges.
func (a *UnreadAggregator) PerRoom(ctx context.Context) ([]domain.RoomUnreadInfo, error) {
	ids, err := a.roomIDs(ctx)
	if err != nil {
		return nil, err
	}
	return a.msgRepo.CountUnreadByRoom(ctx, a.userID, ids)
}

// Updates signals count changes; receivers re-read Count().
func (a *UnreadAggregator) Updates() <-chan struct{} {
	return a.updates
}

// Stop tears down the subscription.
func (a *UnreadAggregator) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()
}

func (a *UnreadAggregator) handleEvent(event domain.ChatEvent) {
	switch event.Type {
	case domain.EventMessageNew, domain.EventMessagesRead, domain.EventMessageDeleted, domain.EventRoomCreated:
		if err := a.recount(context.Background()); err != nil {
			logger.Log.Error("unread recount failed",
				zap.String("userID", a.userID), zap.Error(err))
		}
	}
}

func (a *UnreadAggregator) recount(ctx context.Context) error {
	ids, err := a.roomIDs(ctx)
	if err != nil {
		return err
	}
	n, err := a.msgRepo.CountUnread(ctx, a.userID, ids)
	if err != nil {
		return err
	}

	a.mu.Lock()
	changed := a.count != n
	a.count = n
	a.mu.Unlock()
	if changed {
		a.notify()
	}
	return nil
}

func (a *UnreadAggregator) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

func (a *UnreadAggregator) roomIDs(ctx context.Context) ([]string, error) {
	rooms, err := a.roomRepo.FindByParticipant(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
