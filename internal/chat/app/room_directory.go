package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"

	"github.com/google/uuid"
)

// RoomDirectory resolves a pair of users to their canonical private room,
// creating it on first contact.
type RoomDirectory struct {
	roomRepo repository.RoomRepository
	bus      repository.EventBus
}

// NewRoomDirectory init room directory
func NewRoomDirectory(roomRepo repository.RoomRepository, bus repository.EventBus) *RoomDirectory {
	return &RoomDirectory{
		roomRepo: roomRepo,
		bus:      bus,
	}
}

// GetOrCreate returns the private room for {currentUserID, otherUserID},
// creating one if absent. Check-then-create is not atomic: two devices
// racing on first contact can create near-duplicate rooms. Known edge
// case; callers see whichever room their lookup lands on.
func (d *RoomDirectory) GetOrCreate(ctx context.Context, currentUserID, otherUserID string) (*domain.ChatRoom, error) {
	if currentUserID == "" || otherUserID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}
	if currentUserID == otherUserID {
		return nil, fmt.Errorf("%w: cannot open a room with yourself", domain.ErrInvalidArgument)
	}

	room, err := d.roomRepo.FindPrivateRoom(ctx, currentUserID, otherUserID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	room = &domain.ChatRoom{
		ID:           uuid.New().String(),
		RoomType:     domain.ChatRoomTypePrivate,
		Participants: []string{currentUserID, otherUserID},
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := d.roomRepo.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	event := domain.ChatEvent{Type: domain.EventRoomCreated, RoomID: room.ID, Room: room}
	for _, p := range room.Participants {
		if err := d.bus.Publish(ctx, domain.UserChannel(p), event); err != nil {
			// the room exists; the peer's list converges on next refresh
			continue
		}
	}
	return room, nil
}

// RoomsFor lists every room the user participates in, for the chat list.
func (d *RoomDirectory) RoomsFor(ctx context.Context, userID string) ([]domain.ChatRoom, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidArgument)
	}
	return d.roomRepo.FindByParticipant(ctx, userID)
}
