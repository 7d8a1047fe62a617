package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/core"
)

func recv(t *testing.T, c *Connection) (string, map[string]interface{}) {
	t.Helper()
	select {
	case payload := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(payload, &f))
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal(f.Data, &data))
		return f.Event, data
	case <-time.After(time.Second):
		t.Fatalf("no frame for connection %s", c.ID)
		return "", nil
	}
}

func assertSilent(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame %s", payload)
	default:
	}
}

func TestHubRoomsAndPresence(t *testing.T) {
	hub := NewHub(NewLocalBroker(), zap.NewNop())
	a, b, c := NewConnection(1, nil), NewConnection(2, nil), NewConnection(0, nil)
	for _, conn := range []*Connection{a, b, c} {
		hub.Attach(conn)
	}

	hub.Join(7, a)
	event, data := recv(t, a)
	assert.Equal(t, EventPresenceUpdate, event)
	assert.EqualValues(t, 1, data["count"])

	hub.Join(7, b)
	for _, conn := range []*Connection{a, b} {
		_, data = recv(t, conn)
		assert.EqualValues(t, 2, data["count"])
	}
	assertSilent(t, c)

	hub.Typing(7, a, json.RawMessage(`1`))
	event, data = recv(t, b)
	assert.Equal(t, EventTyping, event)
	assert.EqualValues(t, 1, data["userId"])
	assertSilent(t, a)

	hub.MessageCreated(core.MessageView{ID: 3, ChatID: 7, Text: "hello", SenderID: "1"})
	for _, conn := range []*Connection{a, b} {
		event, data = recv(t, conn)
		assert.Equal(t, EventNewMessage, event)
		assert.Equal(t, "hello", data["text"])
	}
	assertSilent(t, c)

	hub.ChatListChanged(7)
	for _, conn := range []*Connection{a, b, c} {
		event, data = recv(t, conn)
		assert.Equal(t, EventChatListChanged, event)
		assert.EqualValues(t, 7, data["chatId"])
	}

	hub.Detach(a)
	event, data = recv(t, b)
	assert.Equal(t, EventPresenceUpdate, event)
	assert.EqualValues(t, 1, data["count"])
	assert.Equal(t, 1, hub.Presence(7))
	assert.False(t, hub.InRoom(7, a))

	hub.Leave(7, b)
	assert.Zero(t, hub.Presence(7))
}

func TestDetachRecountsEveryRoom(t *testing.T) {
	hub := NewHub(NewLocalBroker(), zap.NewNop())
	a, b, c := NewConnection(1, nil), NewConnection(2, nil), NewConnection(3, nil)
	for _, conn := range []*Connection{a, b, c} {
		hub.Attach(conn)
	}
	hub.Join(7, a)
	hub.Join(8, a)
	hub.Join(7, b)
	hub.Join(8, c)
	for len(b.send) > 0 {
		<-b.send
	}
	for len(c.send) > 0 {
		<-c.send
	}

	hub.Detach(a)

	for _, tc := range []struct {
		conn *Connection
		room int64
	}{{b, 7}, {c, 8}} {
		event, data := recv(t, tc.conn)
		assert.Equal(t, EventPresenceUpdate, event)
		assert.EqualValues(t, tc.room, data["chatId"])
		assert.EqualValues(t, 1, data["count"])
		assertSilent(t, tc.conn)
	}
	assert.Equal(t, 1, hub.Presence(7))
	assert.Equal(t, 1, hub.Presence(8))
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub(NewLocalBroker(), zap.NewNop())
	conn := NewConnection(1, nil)
	hub.Attach(conn)

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, conn.Send([]byte("{}")))
	}
	assert.Error(t, conn.Send([]byte("{}")))
	assert.ErrorIs(t, conn.Send([]byte("{}")), ErrConnectionClosed)
}

func TestChatIDAcceptsStringsAndNumbers(t *testing.T) {
	var d roomData
	require.NoError(t, decode(json.RawMessage(`{"chatId":"12"}`), &d))
	assert.EqualValues(t, 12, d.ChatID)
	require.NoError(t, decode(json.RawMessage(`{"chatId":13}`), &d))
	assert.EqualValues(t, 13, d.ChatID)

	assert.Error(t, decode(json.RawMessage(`{"chatId":"abc"}`), &d))
	assert.ErrorIs(t, decode(json.RawMessage(`{}`), &roomData{}), errChatID)
}
