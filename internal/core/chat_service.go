package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

const (
	maxTitleLength = 200
	lockStripes    = 64
)

// Notifier receives chat events after they are persisted.
type Notifier interface {
	MessageCreated(msg MessageView)
	MessageUpdated(msg MessageView)
	MessageDeleted(chatID, messageID int64)
	ChatListChanged(chatID int64)
}

type nopNotifier struct{}

func (nopNotifier) MessageCreated(MessageView)  {}
func (nopNotifier) MessageUpdated(MessageView)  {}
func (nopNotifier) MessageDeleted(int64, int64) {}
func (nopNotifier) ChatListChanged(int64)       {}

type ChatService struct {
	store    *store.Store
	notifier Notifier
	logger   *zap.Logger

	// chatLocks serialise writes per chat so that broadcast order follows
	// persistence order; ownerLocks guard find-or-create.
	chatLocks  [lockStripes]sync.Mutex
	ownerLocks [lockStripes]sync.Mutex
}

func NewChatService(st *store.Store, notifier Notifier, logger *zap.Logger) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ChatService{
		store:    st,
		notifier: notifier,
		logger:   logger.Named("chats"),
	}
}

func (s *ChatService) lockChat(chatID int64) func() {
	mu := &s.chatLocks[uint64(chatID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *ChatService) lockOwner(ownerID int64) func() {
	mu := &s.ownerLocks[uint64(ownerID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

type CreateChatInput struct {
	ParticipantIDs []int64 `json:"participantIds"`
	Title          *string `json:"title"`
}

func (s *ChatService) CreateChat(ctx context.Context, ownerID int64, in CreateChatInput) (*ChatDetail, error) {
	if len(in.ParticipantIDs) == 0 {
		return nil, Validation("participantIds must be a non-empty list")
	}
	ids := make([]int64, 0, len(in.ParticipantIDs))
	seen := map[int64]bool{ownerID: true}
	for _, id := range in.ParticipantIDs {
		if id <= 0 {
			return nil, Validation("participantIds must contain positive integers")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if utf8.RuneCountInString(title) > maxTitleLength {
			return nil, Validation("title must be at most %d characters", maxTitleLength)
		}
	}

	users, err := s.store.GetUsersByIDs(ctx, in.ParticipantIDs)
	if err != nil {
		return nil, Internal("chats.create", err)
	}
	// every referenced user must exist, not only the one the title comes from
	for _, id := range in.ParticipantIDs {
		if users[id] == nil {
			return nil, NotFound("User %d not found", id)
		}
	}
	if title == "" {
		title = users[in.ParticipantIDs[0]].Username
	}

	chat := &store.Chat{Title: title, OwnerID: ownerID}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateChat(ctx, chat); err != nil {
			return err
		}
		if _, err := tx.AddParticipant(ctx, chat.ID, ownerID, store.ParticipantOwner); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.AddParticipant(ctx, chat.ID, id, store.ParticipantMember); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, Internal("chats.create", err)
	}

	s.logger.Debug("chat created", zap.Int64("chat_id", chat.ID), zap.Int64("owner_id", ownerID))
	s.notifier.ChatListChanged(chat.ID)
	return s.detail(ctx, chat)
}

// FindOrCreateChat returns the caller's chat with exactly this title,
// creating it when missing. The bool reports creation.
func (s *ChatService) FindOrCreateChat(ctx context.Context, ownerID int64, title string) (*ChatDetail, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, false, Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, false, Validation("title must be at most %d characters", maxTitleLength)
	}

	unlock := s.lockOwner(ownerID)
	defer unlock()

	chat, err := s.store.FindChatByTitle(ctx, ownerID, title)
	if err == nil {
		d, err := s.detail(ctx, chat)
		return d, false, err
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, Internal("chats.find", err)
	}

	chat = &store.Chat{Title: title, OwnerID: ownerID}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateChat(ctx, chat); err != nil {
			return err
		}
		_, err := tx.AddParticipant(ctx, chat.ID, ownerID, store.ParticipantOwner)
		return err
	})
	if err != nil {
		return nil, false, Internal("chats.find_or_create", err)
	}
	s.notifier.ChatListChanged(chat.ID)
	d, err := s.detail(ctx, chat)
	return d, true, err
}

func (s *ChatService) ListChats(ctx context.Context, userID int64, p ListParams) (*ChatPage, error) {
	f, page, limit, err := p.filter(chatListDefaults)
	if err != nil {
		return nil, err
	}

	chats, total, err := s.store.ListChats(ctx, userID, f)
	if err != nil {
		return nil, Internal("chats.list", err)
	}

	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	rosters, err := s.store.ParticipantIDsByChat(ctx, ids)
	if err != nil {
		return nil, Internal("chats.list", err)
	}
	last, err := s.store.LastMessages(ctx, ids)
	if err != nil {
		return nil, Internal("chats.list", err)
	}
	lastMsgs := make([]store.Message, 0, len(last))
	for _, m := range last {
		lastMsgs = append(lastMsgs, m)
	}
	views, err := s.views(ctx, lastMsgs)
	if err != nil {
		return nil, Internal("chats.list", err)
	}
	byChat := make(map[int64]*MessageView, len(views))
	for i := range views {
		byChat[views[i].ChatID] = &views[i]
	}

	out := &ChatPage{Chats: make([]ChatSummary, 0, len(chats)), Total: total, Page: page, Limit: limit}
	for _, c := range chats {
		roster := rosters[c.ID]
		if roster == nil {
			roster = []int64{}
		}
		out.Chats = append(out.Chats, ChatSummary{Chat: c, ParticipantIDs: roster, LastMessage: byChat[c.ID]})
	}
	return out, nil
}

func (s *ChatService) GetChat(ctx context.Context, userID, chatID int64) (*ChatDetail, error) {
	access, err := s.Authorize(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, access.Chat)
}

func (s *ChatService) UpdateChat(ctx context.Context, userID, chatID int64, title string) (*ChatDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, Validation("title must be at most %d characters", maxTitleLength)
	}

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !CanMutateChat(userID, chat) {
		return nil, Forbidden("Only the chat owner can rename this chat")
	}

	chat, err = s.store.UpdateChatTitle(ctx, chatID, title)
	if err != nil {
		return nil, s.storeErr("chats.update", err, "Chat not found")
	}
	s.notifier.ChatListChanged(chatID)
	return s.detail(ctx, chat)
}

// DeleteChat removes the chat with its messages and roster in one transaction.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID int64) error {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !CanMutateChat(userID, chat) {
		return Forbidden("Only the chat owner can delete this chat")
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.DeleteMessagesByChat(ctx, chatID); err != nil {
			return err
		}
		if _, err := tx.DeleteParticipantsByChat(ctx, chatID); err != nil {
			return err
		}
		return tx.DeleteChat(ctx, chatID)
	})
	if err != nil {
		return s.storeErr("chats.delete", err, "Chat not found")
	}
	s.logger.Info("chat deleted", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
	s.notifier.ChatListChanged(chatID)
	return nil
}

// ClearMessages empties the chat but keeps it and its participants.
func (s *ChatService) ClearMessages(ctx context.Context, userID, chatID int64) (int64, error) {
	if _, err := s.Authorize(ctx, userID, chatID); err != nil {
		return 0, err
	}

	unlock := s.lockChat(chatID)
	defer unlock()

	n, err := s.store.DeleteMessagesByChat(ctx, chatID)
	if err != nil {
		return 0, Internal("chats.clear", err)
	}
	s.notifier.ChatListChanged(chatID)
	return n, nil
}

// Authorize loads the chat and checks that userID may read and post to it.
func (s *ChatService) Authorize(ctx context.Context, userID, chatID int64) (ChatAccess, error) {
	access, err := s.loadAccess(ctx, chatID)
	if err != nil {
		return ChatAccess{}, err
	}
	if !CanAccessChat(userID, access) {
		return ChatAccess{}, Forbidden("You do not have access to this chat")
	}
	return access, nil
}

func (s *ChatService) loadChat(ctx context.Context, chatID int64) (*store.Chat, error) {
	if chatID <= 0 {
		return nil, Validation("invalid chat id")
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, s.storeErr("chats.get", err, "Chat not found")
	}
	return chat, nil
}

func (s *ChatService) loadAccess(ctx context.Context, chatID int64) (ChatAccess, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return ChatAccess{}, err
	}
	ids, err := s.store.ParticipantIDs(ctx, chatID)
	if err != nil {
		return ChatAccess{}, Internal("chats.participants", err)
	}
	return ChatAccess{Chat: chat, ParticipantIDs: ids}, nil
}

func (s *ChatService) detail(ctx context.Context, chat *store.Chat) (*ChatDetail, error) {
	ps, err := s.store.ListParticipants(ctx, chat.ID)
	if err != nil {
		return nil, Internal("chats.detail", err)
	}
	return &ChatDetail{Chat: *chat, Participants: ps}, nil
}

// storeErr maps store.ErrNotFound to a 404 with msg and anything else to an
// internal error.
func (s *ChatService) storeErr(op string, err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("%s", msg)
	}
	return Internal(op, err)
}
