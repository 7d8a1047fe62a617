package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
	"github.com/chatterbox/chatterbox-api/internal/store/storetest"
)

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func echo(calls *int) Completer {
	return completerFunc(func(_ context.Context, prompt string) (string, error) {
		*calls++
		return "echo: " + prompt, nil
	})
}

func TestAIAsk(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := storetest.User(t, f.store, "alice")
	carol := storetest.User(t, f.store, "carol")
	chat := f.chat(t, alice)

	calls := 0
	svc := NewAIService(f.chats, map[string]Completer{ProviderGPT: echo(&calls)}, time.Second, zap.NewNop())

	reply, err := svc.Ask(ctx, alice.ID, ProviderGPT, AIRequest{Prompt: " hi "})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply.Assistant)
	assert.Nil(t, reply.Message)

	reply, err = svc.Ask(ctx, alice.ID, ProviderGPT, AIRequest{Prompt: "remember", ChatID: &chat.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.Message)
	assert.Equal(t, store.MessageTypeAI, reply.Message.Type)
	assert.Equal(t, "gpt", reply.Message.SenderID)
	assert.Equal(t, "echo: remember", reply.Message.Text)

	_, err = svc.Ask(ctx, carol.ID, ProviderGPT, AIRequest{Prompt: "sneak", ChatID: &chat.ID})
	assertKind(t, KindAuthorization, err)
	assert.Equal(t, 2, calls, "vendor is not called without chat access")

	_, err = svc.Ask(ctx, alice.ID, "claude", AIRequest{Prompt: "hi"})
	assertKind(t, KindNotFound, err)

	_, err = svc.Ask(ctx, alice.ID, ProviderGPT, AIRequest{Prompt: "  "})
	assertKind(t, KindValidation, err)

	_, err = svc.Ask(ctx, alice.ID, ProviderGemini, AIRequest{Prompt: "hi"})
	assertKind(t, KindUnconfigured, err)
	assert.Equal(t, "Gemini API key not configured", PublicMessage(err))
}

func TestAILongReplyIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := storetest.User(t, f.store, "alice")
	chat := f.chat(t, alice)

	var reply string
	long := completerFunc(func(context.Context, string) (string, error) {
		return reply, nil
	})
	svc := NewAIService(f.chats, map[string]Completer{ProviderGPT: long}, time.Second, zap.NewNop())

	reply = strings.Repeat("a", 12000)
	got, err := svc.Ask(ctx, alice.ID, ProviderGPT, AIRequest{Prompt: "essay", ChatID: &chat.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Message)
	assert.Equal(t, reply, got.Message.Text)

	reply = strings.Repeat("é", maxAIReplyLength+5)
	got, err = svc.Ask(ctx, alice.ID, ProviderGPT, AIRequest{Prompt: "novel", ChatID: &chat.ID})
	require.NoError(t, err)
	assert.Equal(t, reply, got.Assistant)
	require.NotNil(t, got.Message)
	assert.Equal(t, strings.Repeat("é", maxAIReplyLength), got.Message.Text)

	_, err = f.chats.CreateMessage(ctx, NewMessageInput{
		ActorID: &alice.ID,
		ChatID:  chat.ID,
		Text:    strings.Repeat("a", maxMessageLength+1),
		Type:    store.MessageTypeAI,
	})
	assertKind(t, KindValidation, err)
}

func TestAIVendorFailures(t *testing.T) {
	f := newFixture(t)
	alice := storetest.User(t, f.store, "alice")

	slow := completerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	broken := completerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("status 500")
	})
	svc := NewAIService(f.chats, map[string]Completer{
		ProviderDeepSeek: slow,
		ProviderGPT:      broken,
	}, 20*time.Millisecond, zap.NewNop())

	_, err := svc.Ask(testContext(t), alice.ID, ProviderDeepSeek, AIRequest{Prompt: "hi"})
	assertKind(t, KindUpstreamTimeout, err)

	_, err = svc.Ask(testContext(t), alice.ID, ProviderGPT, AIRequest{Prompt: "hi"})
	assertKind(t, KindUpstream, err)
	assert.Equal(t, "OpenAI request failed", PublicMessage(err))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	f := newFixture(t)
	alice := storetest.User(t, f.store, "alice")

	calls := 0
	failing := completerFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	svc := NewAIService(f.chats, map[string]Completer{
		ProviderGemini: WithBreaker("gemini", failing, zap.NewNop()),
	}, time.Second, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := svc.Ask(testContext(t), alice.ID, ProviderGemini, AIRequest{Prompt: "hi"})
		assertKind(t, KindUpstream, err)
	}
	_, err := svc.Ask(testContext(t), alice.ID, ProviderGemini, AIRequest{Prompt: "hi"})
	assertKind(t, KindUpstream, err)
	assert.Equal(t, "Gemini is temporarily unavailable", PublicMessage(err))
	assert.Equal(t, 5, calls)
}
