package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

// Server to client event names.
const (
	EventNewMessage      = "newMessage"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventChatListChanged = "chatListChanged"
	EventPresenceUpdate  = "presenceUpdate"
	EventTyping          = "typing"
	EventError           = "error"
)

const publishTimeout = 5 * time.Second

// Frame is the wire shape of every socket message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub tracks sockets and chat rooms. It implements core.Notifier.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	rooms     map[int64]map[string]*Connection
	connRooms map[string]map[int64]struct{}

	broker Broker
	logger *zap.Logger
}

var _ core.Notifier = (*Hub)(nil)

func NewHub(broker Broker, logger *zap.Logger) *Hub {
	h := &Hub{
		conns:     make(map[string]*Connection),
		rooms:     make(map[int64]map[string]*Connection),
		connRooms: make(map[string]map[int64]struct{}),
		broker:    broker,
		logger:    logger.Named("hub"),
	}
	broker.Subscribe(h.deliver)
	return h
}

// Attach registers conn and starts its writer.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.connRooms[conn.ID] = make(map[int64]struct{})
	h.mu.Unlock()
	conn.Start()
}

// Detach drops conn from every room and refreshes those rooms' presence.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	left := make([]int64, 0, len(h.connRooms[conn.ID]))
	for chatID := range h.connRooms[conn.ID] {
		left = append(left, chatID)
	}
	for _, chatID := range left {
		h.leaveLocked(chatID, conn.ID)
	}
	delete(h.connRooms, conn.ID)
	delete(h.conns, conn.ID)
	h.mu.Unlock()

	for _, chatID := range left {
		h.presence(chatID)
	}
}

func (h *Hub) Join(chatID int64, conn *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	room := h.rooms[chatID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[chatID] = room
	}
	room[conn.ID] = conn
	h.connRooms[conn.ID][chatID] = struct{}{}
	h.mu.Unlock()

	h.presence(chatID)
}

func (h *Hub) Leave(chatID int64, conn *Connection) {
	h.mu.Lock()
	h.leaveLocked(chatID, conn.ID)
	h.mu.Unlock()

	h.presence(chatID)
}

func (h *Hub) leaveLocked(chatID int64, connID string) {
	if room := h.rooms[chatID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
	if rooms := h.connRooms[connID]; rooms != nil {
		delete(rooms, chatID)
	}
}

// Presence returns the number of sockets in the room on this node.
func (h *Hub) Presence(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// InRoom reports whether conn has joined the chat.
func (h *Hub) InRoom(chatID int64, conn *Connection) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[chatID][conn.ID]
	return ok
}

// presence is a per-node count, so it is delivered locally only.
func (h *Hub) presence(chatID int64) {
	payload, err := encode(EventPresenceUpdate, map[string]interface{}{"chatId": chatID, "count": h.Presence(chatID)})
	if err != nil {
		h.logger.Error("failed to encode presence", zap.Error(err))
		return
	}
	h.deliver(Envelope{Room: chatID, Payload: payload})
}

// Typing relays to everyone else in the room.
func (h *Hub) Typing(chatID int64, from *Connection, userID json.RawMessage) {
	h.publish(Envelope{Room: chatID, Exclude: from.ID}, EventTyping, map[string]interface{}{
		"chatId": chatID,
		"userId": userID,
	})
}

// Reply sends an event to a single connection.
func (h *Hub) Reply(conn *Connection, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.String("event", event), zap.Error(err))
		return
	}
	_ = conn.Send(payload)
}

func (h *Hub) MessageCreated(msg core.MessageView) {
	h.publish(Envelope{Room: msg.ChatID}, EventNewMessage, msg)
}

func (h *Hub) MessageUpdated(msg core.MessageView) {
	h.publish(Envelope{Room: msg.ChatID}, EventMessageUpdated, msg)
}

func (h *Hub) MessageDeleted(chatID, messageID int64) {
	h.publish(Envelope{Room: chatID}, EventMessageDeleted, map[string]int64{"chatId": chatID, "id": messageID})
}

func (h *Hub) ChatListChanged(chatID int64) {
	h.publish(Envelope{All: true}, EventChatListChanged, map[string]int64{"chatId": chatID})
}

func (h *Hub) publish(env Envelope, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	env.Payload = payload

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, env); err != nil {
		h.logger.Error("failed to publish event", zap.String("event", event), zap.Error(err))
	}
}

func (h *Hub) deliver(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.conns
	if !env.All {
		targets = h.rooms[env.Room]
	}
	for id, conn := range targets {
		if id == env.Exclude {
			continue
		}
		if err := conn.Send(env.Payload); err != nil {
			h.logger.Debug("dropped frame", zap.String("conn_id", id), zap.Error(err))
		}
	}
}

// CloseAll disconnects every socket, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
