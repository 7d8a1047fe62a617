package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

const (
	ProviderGPT      = "gpt"
	ProviderGemini   = "gemini"
	ProviderDeepSeek = "deepseek"
)

var providerNames = map[string]string{
	ProviderGPT:      "OpenAI",
	ProviderGemini:   "Gemini",
	ProviderDeepSeek: "DeepSeek",
}

type AIService struct {
	chats      *ChatService
	completers map[string]Completer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAIService wires the given completers by provider key. A provider with no
// completer is reported as unconfigured when called.
func NewAIService(chats *ChatService, completers map[string]Completer, timeout time.Duration, logger *zap.Logger) *AIService {
	return &AIService{
		chats:      chats,
		completers: completers,
		timeout:    timeout,
		logger:     logger.Named("ai"),
	}
}

type AIRequest struct {
	Prompt string `json:"prompt"`
	ChatID *int64 `json:"chatId"`
	Stream bool   `json:"stream"`
}

type AIReply struct {
	Provider  string       `json:"provider"`
	Assistant string       `json:"assistant"`
	Message   *MessageView `json:"message,omitempty"`
}

func (s *AIService) Ask(ctx context.Context, userID int64, provider string, req AIRequest) (*AIReply, error) {
	name, ok := providerNames[provider]
	if !ok {
		return nil, NotFound("Unknown AI provider %q", provider)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, Validation("prompt is required")
	}
	if utf8.RuneCountInString(prompt) > maxMessageLength {
		return nil, Validation("prompt must be at most %d characters", maxMessageLength)
	}
	completer := s.completers[provider]
	if completer == nil {
		return nil, newError(KindUnconfigured, "%s API key not configured", name)
	}
	if req.ChatID != nil {
		if _, err := s.chats.Authorize(ctx, userID, *req.ChatID); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	text, err := completer.Complete(callCtx, prompt)
	if err != nil {
		return nil, s.vendorErr(callCtx, provider, name, err)
	}
	s.logger.Debug("completion received",
		zap.String("provider", provider),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("chars", len(text)))

	reply := &AIReply{Provider: provider, Assistant: text}
	if req.ChatID != nil {
		stored := text
		if runes := []rune(strings.TrimSpace(text)); len(runes) > maxAIReplyLength {
			s.logger.Warn("truncating stored ai reply",
				zap.String("provider", provider),
				zap.Int("runes", len(runes)))
			stored = string(runes[:maxAIReplyLength])
		}
		msg, err := s.chats.CreateMessage(ctx, NewMessageInput{
			ChatID:      *req.ChatID,
			Text:        stored,
			Type:        store.MessageTypeAI,
			SenderLabel: provider,
			maxLength:   maxAIReplyLength,
		})
		if err != nil {
			return nil, err
		}
		reply.Message = msg
	}
	return reply, nil
}

func (s *AIService) vendorErr(callCtx context.Context, provider, name string, err error) error {
	s.logger.Warn("vendor call failed", zap.String("provider", provider), zap.Error(err))
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return upstream(KindUpstreamTimeout, provider, err, "%s did not respond in time", name)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return upstream(KindUpstream, provider, err, "%s is temporarily unavailable", name)
	default:
		return upstream(KindUpstream, provider, err, "%s request failed", name)
	}
}

// Close releases vendor clients that hold connections.
func (s *AIService) Close() {
	for provider, c := range s.completers {
		closer, ok := c.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			s.logger.Warn("failed to close completer", zap.String("provider", provider), zap.Error(err))
		}
	}
}
