package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/auth"
	"github.com/chatterbox/chatterbox-api/internal/core"
	"github.com/chatterbox/chatterbox-api/internal/store/storetest"
)

type socketFixture struct {
	server *httptest.Server
	chats  *core.ChatService
	users  *core.UserService
}

func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()
	st := storetest.New(t)
	hub := NewHub(NewLocalBroker(), zap.NewNop())
	tokens := auth.NewTokenIssuer("socket-test-secret-42", time.Hour)
	chats := core.NewChatService(st, hub, zap.NewNop())
	users := core.NewUserService(st, tokens, hub, zap.NewNop())

	srv := httptest.NewServer(NewSocketHandler(hub, chats, users, []string{"*"}, zap.NewNop()))
	t.Cleanup(srv.Close)
	return &socketFixture{server: srv, chats: chats, users: users}
}

func (f *socketFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func emit(t *testing.T, ws *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Frame{Event: event, Data: raw}))
}

func expect(t *testing.T, ws *websocket.Conn, event string) map[string]interface{} {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, ws.ReadJSON(&f))
	require.Equal(t, event, f.Event, "data: %s", f.Data)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data
}

func TestSocketRoundTrip(t *testing.T) {
	f := newSocketFixture(t)
	ctx := testContext(t)

	alice, err := f.users.Signup(ctx, core.SignupInput{Username: "alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	chat, err := f.chats.CreateChat(ctx, alice.User.ID, core.CreateChatInput{ParticipantIDs: []int64{alice.User.ID}})
	require.NoError(t, err)

	member := f.dial(t, alice.Token)
	guest := f.dial(t, "")

	emit(t, member, EventJoin, map[string]interface{}{"chatId": chat.ID})
	assert.EqualValues(t, 1, expect(t, member, EventPresenceUpdate)["count"])

	emit(t, guest, EventJoin, map[string]interface{}{"chatId": "1"})
	assert.EqualValues(t, 2, expect(t, member, EventPresenceUpdate)["count"])
	assert.EqualValues(t, 2, expect(t, guest, EventPresenceUpdate)["count"])

	emit(t, member, EventTyping, map[string]interface{}{"chatId": chat.ID, "userId": 999})
	assert.EqualValues(t, alice.User.ID, expect(t, guest, EventTyping)["userId"])

	emit(t, member, EventSendMessage, map[string]interface{}{"chatId": chat.ID, "text": "hello room", "senderId": "someone else"})
	for _, ws := range []*websocket.Conn{member, guest} {
		msg := expect(t, ws, EventNewMessage)
		assert.Equal(t, "hello room", msg["text"])
		assert.Equal(t, "1", msg["senderId"])
		assert.NotZero(t, msg["id"])
		assert.NotEmpty(t, msg["createdAt"])
		expect(t, ws, EventChatListChanged)
	}

	emit(t, guest, EventSendMessage, map[string]interface{}{"chatId": chat.ID, "text": "who am i"})
	assert.Equal(t, "senderId is required", expect(t, guest, EventError)["message"])

	emit(t, guest, EventSendMessage, map[string]interface{}{"chatId": chat.ID, "text": "hi", "senderId": "guest"})
	for _, ws := range []*websocket.Conn{member, guest} {
		assert.Equal(t, "guest", expect(t, ws, EventNewMessage)["senderId"])
		expect(t, ws, EventChatListChanged)
	}

	require.NoError(t, guest.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "invalid frame", expect(t, guest, EventError)["message"])

	require.NoError(t, guest.Close())
	assert.EqualValues(t, 1, expect(t, member, EventPresenceUpdate)["count"])
}

func TestSocketJoinRequiresAccess(t *testing.T) {
	f := newSocketFixture(t)
	ctx := testContext(t)

	owner, err := f.users.Signup(ctx, core.SignupInput{Username: "owner", Email: "owner@example.com", Password: "secret1"})
	require.NoError(t, err)
	stranger, err := f.users.Signup(ctx, core.SignupInput{Username: "stranger", Email: "stranger@example.com", Password: "secret1"})
	require.NoError(t, err)
	chat, err := f.chats.CreateChat(ctx, owner.User.ID, core.CreateChatInput{ParticipantIDs: []int64{owner.User.ID}})
	require.NoError(t, err)

	ws := f.dial(t, stranger.Token)
	emit(t, ws, EventJoin, map[string]interface{}{"chatId": chat.ID})
	assert.Equal(t, "You do not have access to this chat", expect(t, ws, EventError)["message"])
}

func TestSocketRejectsBadToken(t *testing.T) {
	f := newSocketFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
