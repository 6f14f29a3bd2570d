package repository

import (
	"context"
	"errors"
	"fmt"

	"travel_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// RoomRepository definition chat room persistence
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error
	FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	// FindPrivateRoom resolves the one private room whose participant set is
	// exactly {userA, userB}. ErrNotFound when no such room exists.
	FindPrivateRoom(ctx context.Context, userA, userB string) (*domain.ChatRoom, error)
	FindByParticipant(ctx context.Context, userID string) ([]domain.ChatRoom, error)
	UpdateLastMessage(ctx context.Context, roomID string, last *domain.MessageSummary) error
}

type roomRepository struct {
	coll *mongo.Collection
}

// NewMongoRoomRepository create room repository backed by mongo
func NewMongoRoomRepository(db *mongo.Database) RoomRepository {
	return &roomRepository{
		coll: db.Collection("rooms"),
	}
}

// mapStoreErr folds driver failures into the core taxonomy
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// CreateRoom create room
func (r *roomRepository) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	_, err := r.coll.InsertOne(ctx, room)
	return mapStoreErr(err)
}

// FindByID find room by id
func (r *roomRepository) FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	err := r.coll.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &room, nil
}

// FindPrivateRoom find the private room holding exactly this pair. $size
// keeps group rooms that happen to contain both users from matching.
func (r *roomRepository) FindPrivateRoom(ctx context.Context, userA, userB string) (*domain.ChatRoom, error) {
	filter := bson.M{
		"room_type": domain.ChatRoomTypePrivate,
		"participants": bson.M{
			"$all":  []string{userA, userB},
			"$size": 2,
		},
	}
	var room domain.ChatRoom
	err := r.coll.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &room, nil
}

// FindByParticipant list every room the user belongs to
func (r *roomRepository) FindByParticipant(ctx context.Context, userID string) ([]domain.ChatRoom, error) {
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	var rooms []domain.ChatRoom
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, mapStoreErr(err)
	}
	return rooms, nil
}

// UpdateLastMessage refresh the denormalized last-message cache
func (r *roomRepository) UpdateLastMessage(ctx context.Context, roomID string, last *domain.MessageSummary) error {
	filter := bson.M{"_id": roomID}
	update := bson.M{"$set": bson.M{"last_message": last}}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return mapStoreErr(err)
}
