package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"
	"travel_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChannelState message channel lifecycle state
type ChannelState string

const (
	// ChannelClosed no room open, no subscription held
	ChannelClosed ChannelState = "closed"
	// ChannelJoining subscription up, read-mark batch in flight
	ChannelJoining ChannelState = "joining"
	// ChannelActive live feed delivering
	ChannelActive ChannelState = "active"
)

// MessageChannel is one user's live view of one room at a time: it owns the
// room subscription, keeps an in-memory createdAt-desc message list, and
// exposes send/edit/delete. The subscription's order is authoritative — a
// locally inserted message is replaced in place when its write-back arrives.
type MessageChannel struct {
	userID   string
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	bus      repository.EventBus

	mu       sync.Mutex
	state    ChannelState
	room     *domain.ChatRoom
	messages []domain.ChatMessage // newest first
	cancel   context.CancelFunc

	updates chan struct{}
}

// NewMessageChannel init message channel for one signed-in user
func NewMessageChannel(
	userID string,
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	bus repository.EventBus,
) *MessageChannel {
	return &MessageChannel{
		userID:   userID,
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		bus:      bus,
		state:    ChannelClosed,
		updates:  make(chan struct{}, 1),
	}
}

// Join opens roomID: tears down any prior room, subscribes to the live
// feed, loads history, then batch-marks every peer message read in a single
// write before going Active.
func (c *MessageChannel) Join(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", domain.ErrInvalidArgument)
	}

	room, err := c.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(c.userID) {
		return fmt.Errorf("%w: not a participant of room %s", domain.ErrUnauthorized, roomID)
	}

	c.mu.Lock()
	c.teardownLocked()
	c.state = ChannelJoining
	c.room = room

	subCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.bus.Subscribe(subCtx, domain.RoomChannel(roomID), c.handleEvent); err != nil {
		cancel()
		c.closeOnError()
		return err
	}

	history, err := c.msgRepo.ListByRoom(ctx, roomID, 0)
	if err != nil {
		cancel()
		c.closeOnError()
		return err
	}

	marked, err := c.msgRepo.MarkRoomRead(ctx, roomID, c.userID)
	if err != nil {
		cancel()
		c.closeOnError()
		return err
	}

	c.mu.Lock()
	// merge rather than assign: events delivered while history loaded are
	// already in the view and are strictly newer than the snapshot, so the
	// snapshot never overwrites an id that is already present
	for _, m := range history {
		if !c.containsLocked(m.ID) {
			c.upsertLocked(m)
		}
	}
	for i := range c.messages {
		if c.messages[i].SenderID != c.userID {
			c.messages[i].ReadStatus = true
		}
	}
	c.state = ChannelActive
	c.mu.Unlock()
	c.notify()

	if marked > 0 {
		event := domain.ChatEvent{Type: domain.EventMessagesRead, RoomID: roomID, ReaderID: c.userID}
		c.fanOut(ctx, room, event)
	}
	return nil
}

// Send appends a message. Whitespace-only content is a silent no-op. The
// returned message carries the service-assigned timestamp.
func (c *MessageChannel) Send(ctx context.Context, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	c.mu.Lock()
	if c.state != ChannelActive {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no active room", domain.ErrInvalidArgument)
	}
	room := c.room
	c.mu.Unlock()

	msg := &domain.ChatMessage{
		ID:         uuid.New().String(),
		RoomID:     room.ID,
		SenderID:   c.userID,
		Content:    content,
		CreatedAt:  time.Now().UnixMilli(),
		ReadStatus: false,
		IsEdited:   false,
	}

	if err := c.msgRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	// eventually consistent cache; the message itself is already durable
	if err := c.roomRepo.UpdateLastMessage(ctx, room.ID, msg.Summary()); err != nil {
		logger.Log.Warn("last message cache refresh failed",
			zap.String("roomID", room.ID), zap.Error(err))
	}

	c.mu.Lock()
	c.upsertLocked(*msg)
	c.mu.Unlock()
	c.notify()

	c.fanOut(ctx, room, domain.ChatEvent{Type: domain.EventMessageNew, RoomID: room.ID, Message: msg})
	return msg, nil
}

// Edit replaces content on an own message and flags it edited. ID and
// createdAt never change.
func (c *MessageChannel) Edit(ctx context.Context, messageID, newContent string) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return fmt.Errorf("%w: empty content", domain.ErrInvalidArgument)
	}

	c.mu.Lock()
	if c.state != ChannelActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active room", domain.ErrInvalidArgument)
	}
	room := c.room
	c.mu.Unlock()

	msg, err := c.msgRepo.FindByID(ctx, room.ID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != c.userID {
		return fmt.Errorf("%w: not the sender of %s", domain.ErrUnauthorized, messageID)
	}
	if msg.Deleted() {
		return fmt.Errorf("%w: message %s is deleted", domain.ErrInvalidArgument, messageID)
	}

	if err := c.msgRepo.UpdateContent(ctx, room.ID, messageID, newContent); err != nil {
		return err
	}

	msg.Content = newContent
	msg.IsEdited = true

	c.mu.Lock()
	c.upsertLocked(*msg)
	c.mu.Unlock()
	c.notify()

	c.fanOut(ctx, room, domain.ChatEvent{Type: domain.EventMessageEdited, RoomID: room.ID, Message: msg})
	return nil
}

// Delete tombstones an own message. Content stays in storage but must no
// longer be shown by any consumer.
func (c *MessageChannel) Delete(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if c.state != ChannelActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active room", domain.ErrInvalidArgument)
	}
	room := c.room
	c.mu.Unlock()

	msg, err := c.msgRepo.FindByID(ctx, room.ID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != c.userID {
		return fmt.Errorf("%w: not the sender of %s", domain.ErrUnauthorized, messageID)
	}

	deletedAt := time.Now().UnixMilli()
	if err := c.msgRepo.SoftDelete(ctx, room.ID, messageID, deletedAt); err != nil {
		return err
	}

	msg.DeletedAt = &deletedAt

	c.mu.Lock()
	c.upsertLocked(*msg)
	c.mu.Unlock()
	c.notify()

	c.fanOut(ctx, room, domain.ChatEvent{Type: domain.EventMessageDeleted, RoomID: room.ID, Message: msg})
	return nil
}

// Leave cancels the subscription, clears the view, transitions to Closed.
// An in-flight send completing after this is still accepted by the store;
// the local view just won't observe it until a rejoin.
func (c *MessageChannel) Leave() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	c.notify()
}

// Messages snapshot of the current view, newest first.
func (c *MessageChannel) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// State current lifecycle state
func (c *MessageChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RoomID the open room, empty when Closed
func (c *MessageChannel) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return ""
	}
	return c.room.ID
}

// Updates signals view changes; receivers re-read Messages().
func (c *MessageChannel) Updates() <-chan struct{} {
	return c.updates
}

func (c *MessageChannel) handleEvent(event domain.ChatEvent) {
	c.mu.Lock()
	if c.room == nil || event.RoomID != c.room.ID {
		c.mu.Unlock()
		return
	}
	switch event.Type {
	case domain.EventMessageNew, domain.EventMessageEdited, domain.EventMessageDeleted:
		if event.Message != nil {
			c.upsertLocked(*event.Message)
		}
	case domain.EventMessagesRead:
		if event.ReaderID != "" {
			for i := range c.messages {
				if c.messages[i].SenderID != event.ReaderID {
					c.messages[i].ReadStatus = true
				}
			}
		}
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notify()
}

func (c *MessageChannel) containsLocked(messageID string) bool {
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			return true
		}
	}
	return false
}

// upsertLocked replaces the entry with the same id or inserts a new one,
// then restores createdAt-desc order. The store's order always wins over
// whatever position an optimistic insert had.
func (c *MessageChannel) upsertLocked(msg domain.ChatMessage) {
	replaced := false
	for i := range c.messages {
		if c.messages[i].ID == msg.ID {
			c.messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		c.messages = append(c.messages, msg)
	}
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt > c.messages[j].CreatedAt
	})
}

func (c *MessageChannel) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.messages = nil
	c.room = nil
	c.state = ChannelClosed
}

func (c *MessageChannel) closeOnError() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
}

// fanOut publishes to the room channel and to every participant's user
// channel so unread aggregators and room lists converge.
func (c *MessageChannel) fanOut(ctx context.Context, room *domain.ChatRoom, event domain.ChatEvent) {
	if err := c.bus.Publish(ctx, domain.RoomChannel(room.ID), event); err != nil {
		logger.Log.Error("room fan-out failed", zap.String("roomID", room.ID), zap.Error(err))
	}
	for _, p := range room.Participants {
		if err := c.bus.Publish(ctx, domain.UserChannel(p), event); err != nil {
			logger.Log.Error("user fan-out failed", zap.String("userID", p), zap.Error(err))
		}
	}
}

func (c *MessageChannel) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
