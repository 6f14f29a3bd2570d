package app

import (
	"context"
	"testing"

	"travel_chat_service/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func activeChannel(t *testing.T, userID string, room *domain.ChatRoom, history []domain.ChatMessage) (*MessageChannel, *MockRoomRepository, *MockMessageRepository, *memoryBus) {
	t.Helper()
	ctx := context.Background()

	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	bus := newMemoryBus()

	mockRoomRepo.On("FindByID", ctx, room.ID).Return(room, nil)
	mockMsgRepo.On("ListByRoom", ctx, room.ID, int64(0)).Return(history, nil)
	mockMsgRepo.On("MarkRoomRead", ctx, room.ID, userID).Return(int64(0), nil)

	c := NewMessageChannel(userID, mockRoomRepo, mockMsgRepo, bus)
	assert.NoError(t, c.Join(ctx, room.ID))
	assert.Equal(t, ChannelActive, c.State())
	return c, mockRoomRepo, mockMsgRepo, bus
}

// join 會以單一批次把對方的未讀訊息標記為已讀
func TestMessageChannel_Join_MarksPeerMessagesRead(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	userB := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), RoomType: domain.ChatRoomTypePrivate, Participants: []string{userA, userB}}

	history := []domain.ChatMessage{
		{ID: "m2", RoomID: room.ID, SenderID: userB, Content: "second", CreatedAt: 2000},
		{ID: "m1", RoomID: room.ID, SenderID: userB, Content: "first", CreatedAt: 1000},
	}

	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	bus := newMemoryBus()

	mockRoomRepo.On("FindByID", ctx, room.ID).Return(room, nil)
	mockMsgRepo.On("ListByRoom", ctx, room.ID, int64(0)).Return(history, nil)
	mockMsgRepo.On("MarkRoomRead", ctx, room.ID, userA).Return(int64(2), nil)

	c := NewMessageChannel(userA, mockRoomRepo, mockMsgRepo, bus)
	assert.NoError(t, c.Join(ctx, room.ID))

	for _, m := range c.Messages() {
		assert.True(t, m.ReadStatus, "message %s should be read after join", m.ID)
	}

	// the batch ran once, the peers were told
	mockMsgRepo.AssertNumberOfCalls(t, "MarkRoomRead", 1)
	roomEvents := bus.events(domain.RoomChannel(room.ID))
	assert.Len(t, roomEvents, 1)
	assert.Equal(t, domain.EventMessagesRead, roomEvents[0].Type)
	assert.Equal(t, userA, roomEvents[0].ReaderID)
}

func TestMessageChannel_Join_NotParticipant(t *testing.T) {
	ctx := context.Background()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{"a", "b"}}

	mockRoomRepo := new(MockRoomRepository)
	mockRoomRepo.On("FindByID", ctx, room.ID).Return(room, nil)

	c := NewMessageChannel("intruder", mockRoomRepo, new(MockMessageRepository), newMemoryBus())
	err := c.Join(ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, ChannelClosed, c.State())
}

func TestMessageChannel_Join_EmptyRoomID(t *testing.T) {
	c := NewMessageChannel("a", new(MockRoomRepository), new(MockMessageRepository), newMemoryBus())
	err := c.Join(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// 空白訊息不是錯誤，也不寫入
func TestMessageChannel_Send_EmptyContentNoOp(t *testing.T) {
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}
	c, _, mockMsgRepo, _ := activeChannel(t, userA, room, nil)

	msg, err := c.Send(context.Background(), "   \n\t ")
	assert.NoError(t, err)
	assert.Nil(t, msg)
	mockMsgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestMessageChannel_Send_AppendsAndCachesLastMessage(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	userB := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, userB}}
	c, mockRoomRepo, mockMsgRepo, bus := activeChannel(t, userA, room, nil)

	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	mockRoomRepo.On("UpdateLastMessage", ctx, room.ID, mock.Anything).Return(nil)

	msg, err := c.Send(ctx, "  hi  ")
	assert.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, userA, msg.SenderID)
	assert.False(t, msg.ReadStatus)
	assert.False(t, msg.IsEdited)
	assert.NotZero(t, msg.CreatedAt)

	view := c.Messages()
	assert.Len(t, view, 1)
	assert.Equal(t, msg.ID, view[0].ID)

	// fan-out reaches the room feed and both user channels
	assert.NotEmpty(t, bus.events(domain.RoomChannel(room.ID)))
	assert.NotEmpty(t, bus.events(domain.UserChannel(userB)))

	mockRoomRepo.AssertCalled(t, "UpdateLastMessage", ctx, room.ID, mock.Anything)
}

func TestMessageChannel_Send_ClosedChannel(t *testing.T) {
	c := NewMessageChannel("a", new(MockRoomRepository), new(MockMessageRepository), newMemoryBus())
	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// edit 不改 id 與 createdAt，只換內容並標記 edited
func TestMessageChannel_Edit_PreservesIdentity(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}

	original := domain.ChatMessage{ID: "m1", RoomID: room.ID, SenderID: userA, Content: "tpyo", CreatedAt: 1234}
	c, _, mockMsgRepo, _ := activeChannel(t, userA, room, []domain.ChatMessage{original})

	mockMsgRepo.On("FindByID", ctx, room.ID, "m1").Return(&original, nil)
	mockMsgRepo.On("UpdateContent", ctx, room.ID, "m1", "typo").Return(nil)

	assert.NoError(t, c.Edit(ctx, "m1", "typo"))

	view := c.Messages()
	assert.Equal(t, "m1", view[0].ID)
	assert.Equal(t, int64(1234), view[0].CreatedAt)
	assert.Equal(t, "typo", view[0].Content)
	assert.True(t, view[0].IsEdited)
}

func TestMessageChannel_Edit_NotOwner(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}

	theirs := domain.ChatMessage{ID: "m1", RoomID: room.ID, SenderID: "b", Content: "hello", CreatedAt: 1}
	c, _, mockMsgRepo, _ := activeChannel(t, userA, room, []domain.ChatMessage{theirs})

	mockMsgRepo.On("FindByID", ctx, room.ID, "m1").Return(&theirs, nil)

	err := c.Edit(ctx, "m1", "hijacked")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	mockMsgRepo.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageChannel_Edit_UnknownMessage(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}
	c, _, mockMsgRepo, _ := activeChannel(t, userA, room, nil)

	mockMsgRepo.On("FindByID", ctx, room.ID, "ghost").Return(nil, domain.ErrNotFound)

	err := c.Edit(ctx, "ghost", "anything")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// delete 只放墓碑，內容留在儲存裡但視圖標記已刪除
func TestMessageChannel_Delete_Tombstones(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}

	mine := domain.ChatMessage{ID: "m1", RoomID: room.ID, SenderID: userA, Content: "oops", CreatedAt: 1}
	c, _, mockMsgRepo, bus := activeChannel(t, userA, room, []domain.ChatMessage{mine})

	mockMsgRepo.On("FindByID", ctx, room.ID, "m1").Return(&mine, nil)
	mockMsgRepo.On("SoftDelete", ctx, room.ID, "m1", mock.Anything).Return(nil)

	assert.NoError(t, c.Delete(ctx, "m1"))

	view := c.Messages()
	assert.Len(t, view, 1, "tombstoned message stays in the view")
	assert.True(t, view[0].Deleted())
	assert.Equal(t, "oops", view[0].Content, "content is not erased, only untrusted")

	events := bus.events(domain.RoomChannel(room.ID))
	assert.Equal(t, domain.EventMessageDeleted, events[len(events)-1].Type)
}

// 訂閱回傳的權威順序覆蓋樂觀插入
func TestMessageChannel_AuthoritativeOrderWins(t *testing.T) {
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}

	history := []domain.ChatMessage{
		{ID: "m2", RoomID: room.ID, SenderID: "b", Content: "late", CreatedAt: 2000},
		{ID: "m1", RoomID: room.ID, SenderID: "b", Content: "early", CreatedAt: 1000},
	}
	c, _, _, bus := activeChannel(t, userA, room, history)

	// the store reassigns m1 a newer timestamp; the write-back reorders it
	reassigned := domain.ChatMessage{ID: "m1", RoomID: room.ID, SenderID: "b", Content: "early", CreatedAt: 3000}
	err := bus.Publish(context.Background(), domain.RoomChannel(room.ID),
		domain.ChatEvent{Type: domain.EventMessageNew, RoomID: room.ID, Message: &reassigned})
	assert.NoError(t, err)

	view := c.Messages()
	assert.Len(t, view, 2, "write-back replaces, never duplicates")
	assert.Equal(t, "m1", view[0].ID)
	assert.Equal(t, "m2", view[1].ID)
}

func TestMessageChannel_Leave_TearsDown(t *testing.T) {
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: uuid.New().String(), Participants: []string{userA, "b"}}
	c, _, _, _ := activeChannel(t, userA, room, []domain.ChatMessage{
		{ID: "m1", RoomID: room.ID, SenderID: "b", CreatedAt: 1},
	})

	c.Leave()
	assert.Equal(t, ChannelClosed, c.State())
	assert.Empty(t, c.Messages())
	assert.Empty(t, c.RoomID())
}

// 換房間時舊訂閱先拆掉，一次只有一間房在記憶體裡
func TestMessageChannel_Join_SwitchesRoom(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room1 := &domain.ChatRoom{ID: "room-1", Participants: []string{userA, "b"}}
	room2 := &domain.ChatRoom{ID: "room-2", Participants: []string{userA, "c"}}

	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	bus := newMemoryBus()

	mockRoomRepo.On("FindByID", ctx, room1.ID).Return(room1, nil)
	mockRoomRepo.On("FindByID", ctx, room2.ID).Return(room2, nil)
	mockMsgRepo.On("ListByRoom", ctx, room1.ID, int64(0)).Return([]domain.ChatMessage{
		{ID: "old", RoomID: room1.ID, SenderID: "b", CreatedAt: 1},
	}, nil)
	mockMsgRepo.On("ListByRoom", ctx, room2.ID, int64(0)).Return([]domain.ChatMessage(nil), nil)
	mockMsgRepo.On("MarkRoomRead", ctx, mock.Anything, userA).Return(int64(0), nil)

	c := NewMessageChannel(userA, mockRoomRepo, mockMsgRepo, bus)
	assert.NoError(t, c.Join(ctx, room1.ID))
	assert.NoError(t, c.Join(ctx, room2.ID))

	assert.Equal(t, room2.ID, c.RoomID())
	assert.Empty(t, c.Messages(), "previous room's messages are gone")

	// events for the old room no longer touch the view
	err := bus.Publish(ctx, domain.RoomChannel(room1.ID), domain.ChatEvent{
		Type: domain.EventMessageNew, RoomID: room1.ID,
		Message: &domain.ChatMessage{ID: "stray", RoomID: room1.ID, SenderID: "b", CreatedAt: 9},
	})
	assert.NoError(t, err)
	assert.Empty(t, c.Messages())
}

// join 合併歷史時，訂閱已送達的較新版本不被快照覆蓋
func TestMessageChannel_Join_SnapshotDoesNotClobberNewerEvents(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New().String()
	room := &domain.ChatRoom{ID: "room-1", RoomType: domain.ChatRoomTypePrivate, Participants: []string{userA, "b"}}

	snapshot := domain.ChatMessage{ID: "m1", RoomID: room.ID, SenderID: "b", Content: "old", CreatedAt: 1000}
	edited := snapshot
	edited.Content = "new"
	edited.IsEdited = true

	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	bus := newMemoryBus()

	mockRoomRepo.On("FindByID", ctx, room.ID).Return(room, nil)
	// an edit commits and is delivered over the already-open subscription
	// while the history snapshot is still in flight
	mockMsgRepo.On("ListByRoom", ctx, room.ID, int64(0)).Run(func(mock.Arguments) {
		err := bus.Publish(ctx, domain.RoomChannel(room.ID),
			domain.ChatEvent{Type: domain.EventMessageEdited, RoomID: room.ID, Message: &edited})
		assert.NoError(t, err)
	}).Return([]domain.ChatMessage{snapshot}, nil)
	mockMsgRepo.On("MarkRoomRead", ctx, room.ID, userA).Return(int64(0), nil)

	c := NewMessageChannel(userA, mockRoomRepo, mockMsgRepo, bus)
	assert.NoError(t, c.Join(ctx, room.ID))

	view := c.Messages()
	assert.Len(t, view, 1)
	assert.Equal(t, "new", view[0].Content, "the stale snapshot must not win over the event")
	assert.True(t, view[0].IsEdited)
}
