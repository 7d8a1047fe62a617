package core

import (
	"strconv"
	"time"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

type UserSummary struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	FullName  *string `json:"fullName,omitempty"`
	AvatarURL *string `json:"avatarUrl"`
}

func summarize(u *store.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, AvatarURL: u.AvatarURL}
}

// PublicProfile is what other users may see.
type PublicProfile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  *string   `json:"fullName"`
	Location  *string   `json:"location"`
	Website   *string   `json:"website"`
	AvatarURL *string   `json:"avatarUrl"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageView is the wire shape of a message for HTTP and sockets. SenderID
// is the author's user id as a string, or the external label.
type MessageView struct {
	ID        int64        `json:"id"`
	ChatID    int64        `json:"chatId"`
	Text      string       `json:"text"`
	Type      string       `json:"type"`
	SenderID  string       `json:"senderId"`
	UserID    *int64       `json:"userId"`
	User      *UserSummary `json:"user"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func newMessageView(m *store.Message, author *store.User) MessageView {
	v := MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Text:      m.Text,
		Type:      m.Type,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	switch a := m.Author().(type) {
	case store.RegisteredAuthor:
		v.SenderID = strconv.FormatInt(a.UserID, 10)
		v.User = summarize(author)
	case store.ExternalSender:
		v.SenderID = a.Label
	}
	return v
}

type ChatSummary struct {
	store.Chat
	ParticipantIDs []int64      `json:"participantIds"`
	LastMessage    *MessageView `json:"lastMessage"`
}

type ChatDetail struct {
	store.Chat
	Participants []store.Participant `json:"participants"`
}

type ChatPage struct {
	Chats []ChatSummary `json:"chats"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type MessagePage struct {
	Messages []MessageView `json:"messages"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
}
