package app

import (
	"context"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"
)

// ChatSession is the per-signed-in-user root object. It owns the directory,
// the single open message channel, the typing broadcaster and the unread
// aggregator, and tears all of their subscriptions down together on
// sign-out. There is deliberately no package-level session state.
type ChatSession struct {
	User      domain.User
	Directory *RoomDirectory
	Channel   *MessageChannel
	Typing    *TypingBroadcaster
	Unread    *UnreadAggregator
}

// NewChatSession wires a session for the signed-in user.
func NewChatSession(
	user domain.User,
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	typingRepo repository.TypingRepository,
	bus repository.EventBus,
) *ChatSession {
	return &ChatSession{
		User:      user,
		Directory: NewRoomDirectory(roomRepo, bus),
		Channel:   NewMessageChannel(user.ID, roomRepo, msgRepo, bus),
		Typing:    NewTypingBroadcaster(user.ID, user.DisplayName, typingRepo, bus),
		Unread:    NewUnreadAggregator(user.ID, roomRepo, msgRepo, bus),
	}
}

// Start brings up the cross-room unread feed.
func (s *ChatSession) Start(ctx context.Context) error {
	return s.Unread.Start(ctx)
}

// JoinRoom opens the room on the channel and watches its typing feed. A
// failed watch closes the channel again so the session never reports a
// failed join while holding the room open.
func (s *ChatSession) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.Channel.Join(ctx, roomID); err != nil {
		return err
	}
	if err := s.Typing.Watch(ctx, roomID); err != nil {
		s.Channel.Leave()
		return err
	}
	return nil
}

// LeaveRoom clears typing state and closes the channel.
func (s *ChatSession) LeaveRoom(ctx context.Context) {
	s.Typing.Leave(ctx)
	s.Channel.Leave()
}

// Close tears down every subscription the session owns. Called on sign-out
// or connection loss.
func (s *ChatSession) Close(ctx context.Context) {
	s.LeaveRoom(ctx)
	s.Unread.Stop()
}
