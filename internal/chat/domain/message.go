package domain

// ChatMessage 表示一則聊天訊息。CreatedAt is assigned by the service at write
// time, never by the sending device, so ordering within a room survives
// client clock skew.
type ChatMessage struct {
	ID         string `bson:"_id,omitempty" json:"id"`
	RoomID     string `bson:"room_id" json:"room_id"`
	SenderID   string `bson:"sender_id" json:"sender_id"`
	Content    string `bson:"content" json:"content"`
	CreatedAt  int64  `bson:"created_at" json:"created_at"` // unix milli
	ReadStatus bool   `bson:"read_status" json:"read_status"`
	IsEdited   bool   `bson:"is_edited" json:"is_edited"`
	DeletedAt  *int64 `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// Deleted reports whether the message carries a tombstone. Once true the
// stored Content must not be shown to anyone.
func (m *ChatMessage) Deleted() bool {
	return m.DeletedAt != nil
}

// Summary builds the last-message cache entry for the owning room.
func (m *ChatMessage) Summary() *MessageSummary {
	return &MessageSummary{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// RoomUnreadInfo definition unread by room
type RoomUnreadInfo struct {
	RoomID      string `bson:"_id" json:"room_id"`
	UnreadCount int    `bson:"unread_count" json:"unread_count"`
}
