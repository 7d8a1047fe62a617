package core

import "github.com/chatterbox/chatterbox-api/internal/store"

// ChatAccess is a chat together with its participant ids.
type ChatAccess struct {
	*store.Chat
	ParticipantIDs []int64
}

// CanAccessChat: the owner or any participant.
func CanAccessChat(userID int64, chat ChatAccess) bool {
	if chat.Chat == nil {
		return false
	}
	if chat.OwnerID == userID {
		return true
	}
	for _, id := range chat.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanMutateChat: renaming and deleting are reserved to the owner.
func CanMutateChat(userID int64, chat *store.Chat) bool {
	return chat != nil && chat.OwnerID == userID
}

// CanMutateMessage: only the registered author, never the chat owner by virtue of ownership.
func CanMutateMessage(userID int64, msg *store.Message) bool {
	return msg != nil && msg.AuthoredBy(userID)
}
