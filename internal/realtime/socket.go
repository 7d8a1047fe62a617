package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

const (
	maxFrameBytes   = 64 << 10
	inflightTimeout = 10 * time.Second
)

// Client to server event names.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "sendMessage"
)

// SocketHandler serves GET /ws. A token, from the query string or the
// Authorization header, is optional: anonymous sockets post under the
// senderId label they provide.
type SocketHandler struct {
	hub      *Hub
	chats    *core.ChatService
	users    *core.UserService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewSocketHandler(hub *Hub, chats *core.ChatService, users *core.UserService, origins []string, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		hub:   hub,
		chats: chats,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger.Named("socket"),
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowAll || origin == "" || allowed[origin]
	}
}

// chatID accepts both 12 and "12".
type chatID int64

func (c *chatID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return errChatID
	}
	*c = chatID(id)
	return nil
}

var errChatID = errors.New("chatId must be a positive integer")

type chatScoped interface {
	chat() chatID
}

// decode unmarshals a frame payload that must name a chat.
func decode(data json.RawMessage, v chatScoped) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if v.chat() <= 0 {
		return errChatID
	}
	return nil
}

type roomData struct {
	ChatID chatID `json:"chatId"`
}

type typingData struct {
	ChatID chatID          `json:"chatId"`
	UserID json.RawMessage `json:"userId"`
}

type sendData struct {
	ChatID   chatID `json:"chatId"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
}

func (d *roomData) chat() chatID   { return d.ChatID }
func (d *typingData) chat() chatID { return d.ChatID }
func (d *sendData) chat() chatID   { return d.ChatID }

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if token := socketToken(r); token != "" {
		id, err := h.users.Authenticate(r.Context(), token)
		if err != nil {
			http.Error(w, core.PublicMessage(err), http.StatusUnauthorized)
			return
		}
		userID = id.User.ID
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(userID, ws)
	h.hub.Attach(conn)
	h.logger.Debug("socket connected", zap.String("conn_id", conn.ID), zap.Int64("user_id", userID))
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("socket read ended", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.replyError(conn, "invalid frame")
			continue
		}
		h.dispatch(r.Context(), conn, frame)
	}
}

func (h *SocketHandler) dispatch(parent context.Context, conn *Connection, frame Frame) {
	ctx, cancel := context.WithTimeout(parent, inflightTimeout)
	defer cancel()

	switch frame.Event {
	case EventJoin:
		var d roomData
		if err := decode(frame.Data, &d); err != nil {
			h.replyError(conn, err.Error())
			return
		}
		if conn.Authenticated() {
			if _, err := h.chats.Authorize(ctx, conn.UserID, int64(d.ChatID)); err != nil {
				h.replyError(conn, core.PublicMessage(err))
				return
			}
		}
		h.hub.Join(int64(d.ChatID), conn)

	case EventLeave:
		var d roomData
		if err := decode(frame.Data, &d); err != nil {
			h.replyError(conn, err.Error())
			return
		}
		h.hub.Leave(int64(d.ChatID), conn)

	case EventTyping:
		var d typingData
		if err := decode(frame.Data, &d); err != nil {
			h.replyError(conn, err.Error())
			return
		}
		if !h.hub.InRoom(int64(d.ChatID), conn) {
			return
		}
		if conn.Authenticated() {
			d.UserID = json.RawMessage(strconv.FormatInt(conn.UserID, 10))
		}
		h.hub.Typing(int64(d.ChatID), conn, d.UserID)

	case EventSendMessage:
		var d sendData
		if err := decode(frame.Data, &d); err != nil {
			h.replyError(conn, err.Error())
			return
		}
		in := core.NewMessageInput{ChatID: int64(d.ChatID), Text: d.Text, Type: d.Type, SenderLabel: d.SenderID}
		if conn.Authenticated() {
			in.ActorID = &conn.UserID
		}
		if _, err := h.chats.CreateMessage(ctx, in); err != nil {
			if core.KindOf(err) == core.KindInternal {
				h.logger.Error("socket message not persisted", zap.Int64("chat_id", int64(d.ChatID)), zap.Error(err))
			}
			h.replyError(conn, core.PublicMessage(err))
		}

	default:
		h.replyError(conn, "unknown event "+strconv.Quote(frame.Event))
	}
}

func (h *SocketHandler) replyError(conn *Connection, msg string) {
	h.hub.Reply(conn, EventError, map[string]string{"message": msg})
}

func socketToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
