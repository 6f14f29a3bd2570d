package domain

import "time"

const (
	// TypingStaleAfter 超過此時間未更新的 typing state 視為過期。
	// No "stopped typing" write is guaranteed to arrive (process kill,
	// network loss), so expiry is the only cleanup mechanism.
	TypingStaleAfter = 5 * time.Second

	// TypingDebounce is the minimum interval between typing upserts while
	// the composer stays active. An explicit stop is never debounced.
	TypingDebounce = 500 * time.Millisecond
)

// TypingState ephemeral typing indicator, keyed by (RoomID, UserID).
// Never part of durable history and never explicitly deleted.
type TypingState struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
	UpdatedAt   int64  `json:"updated_at"` // unix milli
}

// ActiveAt applies the default staleness window: a stored true older than
// TypingStaleAfter reads as not typing, without touching the store.
func (t TypingState) ActiveAt(now time.Time) bool {
	return t.ActiveWithin(now, TypingStaleAfter)
}

// ActiveWithin applies a caller-supplied staleness window.
func (t TypingState) ActiveWithin(now time.Time, window time.Duration) bool {
	if !t.IsTyping {
		return false
	}
	return now.UnixMilli()-t.UpdatedAt < window.Milliseconds()
}
