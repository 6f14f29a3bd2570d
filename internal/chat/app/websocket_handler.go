package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"travel_chat_service/internal/chat/domain"
	"travel_chat_service/internal/chat/repository"
	"travel_chat_service/pkg/logger"
	"travel_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler builds one ChatSession per connection and bridges it
// to the websocket: requests dispatch to session operations, session update
// streams push notify_* frames back.
type ChatWebsocketHandler struct {
	roomRepo   repository.RoomRepository
	msgRepo    repository.MessageRepository
	typingRepo repository.TypingRepository
	bus        repository.EventBus

	typingDebounce time.Duration
	typingStale    time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	typingRepo repository.TypingRepository,
	bus repository.EventBus,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		typingRepo: typingRepo,
		bus:        bus,
	}
}

// SetTypingWindows applies configured typing windows to every new session.
func (h *ChatWebsocketHandler) SetTypingWindows(debounce, staleAfter time.Duration) {
	h.typingDebounce = debounce
	h.typingStale = staleAfter
}

// wsConn serializes writes; responses and push frames come from different
// goroutines.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Errorf("marshal response error:", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	user := domain.User{
		ID:          localString(conn, middlewares.TokenUserID),
		DisplayName: localString(conn, middlewares.TokenDisplayName),
		AvatarURL:   localString(conn, middlewares.TokenAvatarURL),
	}
	logger.Log.Info("websocket connected", zap.String("userID", user.ID))

	w := &wsConn{conn: conn}
	sess := NewChatSession(user, h.roomRepo, h.msgRepo, h.typingRepo, h.bus)
	sess.Typing.Configure(h.typingDebounce, h.typingStale)

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		sess.Close(context.Background())
		logger.Log.Info("websocket close", zap.String("userID", user.ID))
		conn.Close()
		cancel()
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	if err := sess.Start(ctx); err != nil {
		logger.Log.Errorf("session start error:", err)
		return
	}

	// push session streams to the client
	go func() {
		for {
			select {
			case <-sess.Channel.Updates():
				w.send(domain.WSResponse{
					Action:  string(domain.NotifyMessage),
					Success: true,
					Payload: map[string]interface{}{
						"room_id":  sess.Channel.RoomID(),
						"messages": sess.Channel.Messages(),
					},
				})
			case <-sess.Typing.Updates():
				w.send(domain.WSResponse{
					Action:  string(domain.NotifyTyping),
					Success: true,
					Payload: map[string]interface{}{
						"typing": sess.Typing.TypingPeers(),
					},
				})
			case <-sess.Unread.Updates():
				w.send(domain.WSResponse{
					Action:  string(domain.NotifyUnread),
					Success: true,
					Payload: map[string]interface{}{
						"unread": sess.Unread.Count(),
					},
				})
			case <-ctxClose.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ticker.C:
				w.mu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
				w.mu.Unlock()
				if err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			w.send(errResponse("unknown message type"))
			continue
		}
		h.textMessageAction(ctx, w, sess, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, w *wsConn, sess *ChatSession, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch req.Action {
	case string(domain.GetOrCreateRoom):
		room, err := sess.Directory.GetOrCreate(ctx, sess.User.ID, req.OtherUserID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["room"] = room
		}

	case string(domain.ListRooms):
		rooms, err := sess.Directory.RoomsFor(ctx, sess.User.ID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["rooms"] = rooms
		}

	case string(domain.JoinRoom):
		if err := sess.JoinRoom(ctx, req.RoomID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["room_id"] = req.RoomID
			resp.Payload["messages"] = sess.Channel.Messages()
		}

	case string(domain.LeaveRoom):
		roomID := sess.Channel.RoomID()
		sess.LeaveRoom(ctx)
		resp.Success = true
		resp.Payload["leave_room"] = roomID

	case string(domain.SendMessage):
		m, err := sess.Channel.Send(ctx, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			if m != nil {
				resp.Payload["message_id"] = m.ID
			}
		}

	case string(domain.EditMessage):
		if err := sess.Channel.Edit(ctx, req.MessageID, req.Content); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = req.MessageID
		}

	case string(domain.DeleteMessage):
		if err := sess.Channel.Delete(ctx, req.MessageID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = req.MessageID
		}

	case string(domain.SetTyping):
		if err := sess.Typing.SetTyping(ctx, req.IsTyping); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.GetUnread):
		perRoom, err := sess.Unread.PerRoom(ctx)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["unread"] = sess.Unread.Count()
			for _, info := range perRoom {
				resp.Payload[info.RoomID] = info.UnreadCount
			}
		}

	default:
		w.send(errResponse("unknown action"))
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket action error",
			zap.String("userID", sess.User.ID),
			zap.String("action", req.Action),
			zap.String("err", resp.Error))
	}
	w.send(resp)
}

func errResponse(errorMsg string) domain.WSResponse {
	return domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	}
}

func localString(conn *websocket.Conn, key string) string {
	if v, ok := conn.Locals(key).(string); ok {
		return v
	}
	return ""
}
