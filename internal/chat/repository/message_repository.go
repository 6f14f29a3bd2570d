package repository

import (
	"context"

	"travel_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition message log persistence. One document per
// message; edits and tombstones are in-place single-document updates.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.ChatMessage) error
	FindByID(ctx context.Context, roomID, messageID string) (*domain.ChatMessage, error)
	// ListByRoom returns the room's messages newest first. limit <= 0 means
	// no limit.
	ListByRoom(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error)
	UpdateContent(ctx context.Context, roomID, messageID, content string) error
	SoftDelete(ctx context.Context, roomID, messageID string, deletedAt int64) error
	// MarkRoomRead flips read_status on every unread message in the room not
	// sent by readerID, as one batch write. Returns the number marked.
	MarkRoomRead(ctx context.Context, roomID, readerID string) (int64, error)
	CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error)
	CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) ([]domain.RoomUnreadInfo, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("messages"),
	}
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return mapStoreErr(err)
}

func (r *messageRepository) FindByID(ctx context.Context, roomID, messageID string) (*domain.ChatMessage, error) {
	filter := bson.M{"_id": messageID, "room_id": roomID}
	var msg domain.ChatMessage
	if err := r.coll.FindOne(ctx, filter).Decode(&msg); err != nil {
		return nil, mapStoreErr(err)
	}
	return &msg, nil
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	var msgs []domain.ChatMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, mapStoreErr(err)
	}
	return msgs, nil
}

// UpdateContent replaces content and sets is_edited. ID and created_at are
// never touched.
func (r *messageRepository) UpdateContent(ctx context.Context, roomID, messageID, content string) error {
	filter := bson.M{"_id": messageID, "room_id": roomID}
	update := bson.M{"$set": bson.M{"content": content, "is_edited": true}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapStoreErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDelete sets the tombstone only; the row and its content stay.
func (r *messageRepository) SoftDelete(ctx context.Context, roomID, messageID string, deletedAt int64) error {
	filter := bson.M{"_id": messageID, "room_id": roomID}
	update := bson.M{"$set": bson.M{"deleted_at": deletedAt}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapStoreErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageRepository) MarkRoomRead(ctx context.Context, roomID, readerID string) (int64, error) {
	filter := bson.M{
		"room_id":     roomID,
		"sender_id":   bson.M{"$ne": readerID},
		"read_status": false,
	}
	update := bson.M{"$set": bson.M{"read_status": true}}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return res.ModifiedCount, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"room_id":     bson.M{"$in": roomIDs},
		"sender_id":   bson.M{"$ne": userID},
		"read_status": false,
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return n, nil
}

func (r *messageRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) ([]domain.RoomUnreadInfo, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "room_id", Value: bson.D{{Key: "$in", Value: roomIDs}}},
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
			{Key: "read_status", Value: false},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	var results []domain.RoomUnreadInfo
	if err := cur.All(ctx, &results); err != nil {
		return nil, mapStoreErr(err)
	}
	return results, nil
}
