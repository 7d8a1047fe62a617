package core

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

var participantRoles = map[string]bool{store.ParticipantMember: true, "admin": true}

// AddParticipant grants userID access to the chat. Any caller with access to
// the chat may add; adding an existing participant is a no-op.
func (s *ChatService) AddParticipant(ctx context.Context, actorID, chatID, userID int64, role string) (bool, error) {
	if userID <= 0 {
		return false, Validation("userId must be a positive integer")
	}
	if role == "" {
		role = store.ParticipantMember
	}
	if !participantRoles[role] {
		return false, Validation("role must be member or admin")
	}

	access, err := s.Authorize(ctx, actorID, chatID)
	if err != nil {
		return false, err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, NotFound("User %d not found", userID)
		}
		return false, Internal("participants.add", err)
	}
	if userID == access.OwnerID {
		return false, nil
	}

	added, err := s.store.AddParticipant(ctx, chatID, userID, role)
	if err != nil {
		return false, Internal("participants.add", err)
	}
	if added {
		s.logger.Debug("participant added", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
		s.notifier.ChatListChanged(chatID)
	}
	return added, nil
}

// RemoveParticipant lets the owner remove anyone and any participant leave.
// Removing a non-participant is a no-op.
func (s *ChatService) RemoveParticipant(ctx context.Context, actorID, chatID, userID int64) (bool, error) {
	if userID <= 0 {
		return false, Validation("userId must be a positive integer")
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if userID == chat.OwnerID {
		return false, Validation("The chat owner cannot be removed")
	}
	if actorID != userID && !CanMutateChat(actorID, chat) {
		return false, Forbidden("Only the chat owner can remove other participants")
	}

	removed, err := s.store.RemoveParticipant(ctx, chatID, userID)
	if err != nil {
		return false, Internal("participants.remove", err)
	}
	if removed {
		s.notifier.ChatListChanged(chatID)
	}
	return removed, nil
}
