package domain

// EventType chat event kind carried over pub/sub
type EventType string

const (
	// EventRoomCreated a new room was created for the user
	EventRoomCreated EventType = "room_created"
	// EventMessageNew a message was appended to a room
	EventMessageNew EventType = "message_new"
	// EventMessageEdited a message content was replaced
	EventMessageEdited EventType = "message_edited"
	// EventMessageDeleted a message was tombstoned
	EventMessageDeleted EventType = "message_deleted"
	// EventMessagesRead a reader marked a room's messages read
	EventMessagesRead EventType = "messages_read"
	// EventTyping a typing state was upserted
	EventTyping EventType = "typing"
)

// ChatEvent is the payload pushed to room and user channels. Exactly one of
// Message, Typing, Room is set depending on Type.
type ChatEvent struct {
	Type     EventType    `json:"type"`
	RoomID   string       `json:"room_id"`
	ReaderID string       `json:"reader_id,omitempty"`
	Message  *ChatMessage `json:"message,omitempty"`
	Typing   *TypingState `json:"typing,omitempty"`
	Room     *ChatRoom    `json:"room,omitempty"`
}

// RoomChannel pub/sub channel carrying a room's live feed
func RoomChannel(roomID string) string { return "chat:room:" + roomID }

// UserChannel pub/sub channel driving a user's unread and room list
func UserChannel(userID string) string { return "chat:user:" + userID }
