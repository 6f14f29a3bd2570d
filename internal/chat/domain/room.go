package domain

// ChatRoomType definition chat room type
type ChatRoomType string

const (
	//ChatRoomTypePrivate definition chat room 1 on 1
	ChatRoomTypePrivate ChatRoomType = "private"
	//ChatRoomTypeGroup definition chat room group
	ChatRoomTypeGroup ChatRoomType = "group"
)

// MessageSummary is the denormalized last-message cache stored on a room.
// It is refreshed after every append and may lag by one write; readers must
// treat it as a hint, never as the message log.
type MessageSummary struct {
	MessageID string `bson:"message_id" json:"message_id"`
	SenderID  string `bson:"sender_id" json:"sender_id"`
	Content   string `bson:"content" json:"content"`
	CreatedAt int64  `bson:"created_at" json:"created_at"`
}

// ChatRoom definition chat room
type ChatRoom struct {
	ID           string          `bson:"_id,omitempty" json:"id"`
	RoomType     ChatRoomType    `bson:"room_type" json:"room_type"`
	Participants []string        `bson:"participants" json:"participants"`
	CreatedAt    int64           `bson:"created_at" json:"created_at"` // unix milli, assigned at write time
	LastMessage  *MessageSummary `bson:"last_message,omitempty" json:"last_message,omitempty"`
}

// HasParticipant reports whether userID is a member of the room.
func (r *ChatRoom) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
