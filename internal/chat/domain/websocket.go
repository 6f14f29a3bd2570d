package domain

// Action websocket request action
type Action string

const (
	// GetOrCreateRoom websocket action get_or_create_room
	GetOrCreateRoom Action = "get_or_create_room"
	// ListRooms websocket action list_rooms
	ListRooms Action = "list_rooms"

	// JoinRoom websocket action join_room
	JoinRoom Action = "join_room"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"

	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// EditMessage websocket action edit_message
	EditMessage Action = "edit_message"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"

	// SetTyping websocket action set_typing
	SetTyping Action = "set_typing"

	// GetUnread websocket action get_unread
	GetUnread Action = "get_unread"

	// NotifyMessage push action notify_message
	NotifyMessage Action = "notify_message"
	// NotifyTyping push action notify_typing
	NotifyTyping Action = "notify_typing"
	// NotifyUnread push action notify_unread
	NotifyUnread Action = "notify_unread"
)

// WSRequest websocket Request
type WSRequest struct {
	Action      string `json:"action"`
	OtherUserID string `json:"other_user_id"`
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id"`
	Content     string `json:"content"`
	IsTyping    bool   `json:"is_typing"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
