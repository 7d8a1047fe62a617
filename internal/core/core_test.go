package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/auth"
	"github.com/chatterbox/chatterbox-api/internal/store"
	"github.com/chatterbox/chatterbox-api/internal/store/storetest"
)

type recordingNotifier struct {
	mu      sync.Mutex
	events  []string
	created []MessageView
}

func (n *recordingNotifier) MessageCreated(m MessageView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, m)
	n.events = append(n.events, fmt.Sprintf("created:%d", m.ID))
}

func (n *recordingNotifier) MessageUpdated(m MessageView) {
	n.record(fmt.Sprintf("updated:%d", m.ID))
}

func (n *recordingNotifier) MessageDeleted(chatID, messageID int64) {
	n.record(fmt.Sprintf("deleted:%d", messageID))
}

func (n *recordingNotifier) ChatListChanged(chatID int64) {
	n.record(fmt.Sprintf("chats:%d", chatID))
}

func (n *recordingNotifier) record(e string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	store    *store.Store
	notifier *recordingNotifier
	chats    *ChatService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.New(t)
	n := &recordingNotifier{}
	tokens := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	return &fixture{
		store:    st,
		notifier: n,
		chats:    NewChatService(st, n, zap.NewNop()),
		users:    NewUserService(st, tokens, n, zap.NewNop()),
	}
}

// chat creates a chat owned by owner with the given members.
func (f *fixture) chat(t *testing.T, owner *store.User, members ...*store.User) *ChatDetail {
	t.Helper()
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		ids = append(ids, owner.ID)
	}
	c, err := f.chats.CreateChat(testContext(t), owner.ID, CreateChatInput{ParticipantIDs: ids})
	require.NoError(t, err)
	return c
}

func (f *fixture) post(t *testing.T, author *store.User, chatID int64, text string) *MessageView {
	t.Helper()
	id := author.ID
	m, err := f.chats.CreateMessage(testContext(t), NewMessageInput{ActorID: &id, ChatID: chatID, Text: text})
	require.NoError(t, err)
	return m
}

func assertKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, KindOf(err), "error: %v", err)
}

func TestErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("Chat not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Chat not found", PublicMessage(err))

	internal := Internal("chats.get", fmt.Errorf("connection reset"))
	assert.Equal(t, KindInternal, KindOf(internal))
	assert.Equal(t, "Internal server error", PublicMessage(internal))
	assert.Contains(t, internal.Error(), "connection reset")

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, "upstream_timeout", KindUpstreamTimeout.String())
}

func TestAccessPredicates(t *testing.T) {
	chat := &store.Chat{ID: 1, OwnerID: 10}
	access := ChatAccess{Chat: chat, ParticipantIDs: []int64{10, 20}}

	assert.True(t, CanAccessChat(10, access))
	assert.True(t, CanAccessChat(20, access))
	assert.False(t, CanAccessChat(30, access))
	assert.False(t, CanAccessChat(10, ChatAccess{}))

	assert.True(t, CanMutateChat(10, chat))
	assert.False(t, CanMutateChat(20, chat))

	author := int64(20)
	msg := &store.Message{ChatID: 1, UserID: &author}
	assert.True(t, CanMutateMessage(20, msg))
	assert.False(t, CanMutateMessage(10, msg), "chat owner is not the author")

	label := "gpt"
	assert.False(t, CanMutateMessage(10, &store.Message{SenderLabel: &label}))
}
