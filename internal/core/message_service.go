package core

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

const (
	maxMessageLength = 10000
	maxAIReplyLength = 100000
	maxLabelLength   = 64
	maxTypeLength    = 20
)

// NewMessageInput describes a message to persist. A nil ActorID is the
// unauthenticated path: the message is attributed to SenderLabel.
type NewMessageInput struct {
	ActorID     *int64
	ChatID      int64
	Text        string
	Type        string
	SenderLabel string

	// maxLength overrides maxMessageLength for replies persisted by the AI proxy.
	maxLength int
}

func (s *ChatService) CreateMessage(ctx context.Context, in NewMessageInput) (*MessageView, error) {
	limit := maxMessageLength
	if in.maxLength > 0 {
		limit = in.maxLength
	}
	text, err := messageText(in.Text, limit)
	if err != nil {
		return nil, err
	}
	msgType := strings.TrimSpace(in.Type)
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	if len(msgType) > maxTypeLength {
		return nil, Validation("type must be at most %d characters", maxTypeLength)
	}

	var author store.Author
	if in.ActorID == nil {
		label := strings.TrimSpace(in.SenderLabel)
		if label == "" {
			return nil, Validation("senderId is required")
		}
		if utf8.RuneCountInString(label) > maxLabelLength {
			return nil, Validation("senderId must be at most %d characters", maxLabelLength)
		}
		author = store.ExternalSender{Label: label}
	} else {
		author = store.RegisteredAuthor{UserID: *in.ActorID}
	}

	access, err := s.loadAccess(ctx, in.ChatID)
	if err != nil {
		return nil, err
	}
	if in.ActorID != nil && !CanAccessChat(*in.ActorID, access) {
		return nil, Forbidden("You do not have access to this chat")
	}

	unlock := s.lockChat(in.ChatID)
	defer unlock()

	msg := &store.Message{ChatID: in.ChatID, Text: text, Type: msgType}
	msg.SetAuthor(author)
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, Internal("messages.create", err)
	}
	if err := s.store.TouchChat(ctx, in.ChatID, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to bump chat timestamp", zap.Int64("chat_id", in.ChatID), zap.Error(err))
	}

	view, err := s.view(ctx, msg)
	if err != nil {
		return nil, Internal("messages.create", err)
	}
	s.notifier.MessageCreated(view)
	s.notifier.ChatListChanged(in.ChatID)
	return &view, nil
}

func (s *ChatService) ListMessages(ctx context.Context, userID, chatID int64, p ListParams) (*MessagePage, error) {
	f, page, limit, err := p.filter(messageListDefaults)
	if err != nil {
		return nil, err
	}
	if _, err := s.Authorize(ctx, userID, chatID); err != nil {
		return nil, err
	}

	msgs, total, err := s.store.ListMessages(ctx, chatID, f)
	if err != nil {
		return nil, Internal("messages.list", err)
	}
	views, err := s.views(ctx, msgs)
	if err != nil {
		return nil, Internal("messages.list", err)
	}
	return &MessagePage{Messages: views, Total: total, Page: page, Limit: limit}, nil
}

func (s *ChatService) UpdateMessage(ctx context.Context, userID, messageID int64, text string) (*MessageView, error) {
	text, err := messageText(text, maxMessageLength)
	if err != nil {
		return nil, err
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !CanMutateMessage(userID, msg) {
		return nil, Forbidden("Only the author can edit this message")
	}

	unlock := s.lockChat(msg.ChatID)
	defer unlock()

	msg, err = s.store.UpdateMessageText(ctx, messageID, text)
	if err != nil {
		return nil, s.storeErr("messages.update", err, "Message not found")
	}
	view, err := s.view(ctx, msg)
	if err != nil {
		return nil, Internal("messages.update", err)
	}
	s.notifier.MessageUpdated(view)
	return &view, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID int64) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !CanMutateMessage(userID, msg) {
		return Forbidden("Only the author can delete this message")
	}

	unlock := s.lockChat(msg.ChatID)
	defer unlock()

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return s.storeErr("messages.delete", err, "Message not found")
	}
	s.notifier.MessageDeleted(msg.ChatID, messageID)
	s.notifier.ChatListChanged(msg.ChatID)
	return nil
}

func (s *ChatService) loadMessage(ctx context.Context, messageID int64) (*store.Message, error) {
	if messageID <= 0 {
		return nil, Validation("invalid message id")
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, s.storeErr("messages.get", err, "Message not found")
	}
	return msg, nil
}

func (s *ChatService) view(ctx context.Context, m *store.Message) (MessageView, error) {
	views, err := s.views(ctx, []store.Message{*m})
	if err != nil {
		return MessageView{}, err
	}
	return views[0], nil
}

// views resolves registered authors in one query.
func (s *ChatService) views(ctx context.Context, msgs []store.Message) ([]MessageView, error) {
	var ids []int64
	for _, m := range msgs {
		if m.UserID != nil {
			ids = append(ids, *m.UserID)
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, len(msgs))
	for i := range msgs {
		var author *store.User
		if msgs[i].UserID != nil {
			author = users[*msgs[i].UserID]
		}
		out[i] = newMessageView(&msgs[i], author)
	}
	return out, nil
}

func messageText(raw string, limit int) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", Validation("Message text is required")
	}
	if utf8.RuneCountInString(text) > limit {
		return "", Validation("Message text must be at most %d characters", limit)
	}
	return text, nil
}
