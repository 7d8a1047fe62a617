package store

import "time"

const (
	DefaultUserRole = "Member"

	ParticipantOwner  = "owner"
	ParticipantMember = "member"

	MessageTypeText = "text"
	MessageTypeAI   = "ai"
)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"` // Do not expose this in JSON responses
	FullName     *string   `db:"full_name" json:"fullName"`
	Location     *string   `db:"location" json:"location"`
	Website      *string   `db:"website" json:"website"`
	AvatarURL    *string   `db:"avatar_url" json:"avatarUrl"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// UserPatch lists the profile columns that may change; nil means untouched.
type UserPatch struct {
	Username  *string
	FullName  *string
	Location  *string
	Website   *string
	AvatarURL *string
}

func (p UserPatch) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.Location == nil && p.Website == nil && p.AvatarURL == nil
}

type Chat struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	OwnerID   int64     `db:"owner_id" json:"ownerId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Participant struct {
	ChatID    int64     `db:"chat_id" json:"chatId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Username  string    `db:"username" json:"username"`
	AvatarURL *string   `db:"avatar_url" json:"avatarUrl"`
	Role      string    `db:"role" json:"role"`
	JoinedAt  time.Time `db:"joined_at" json:"joinedAt"`
}

// Author is either a RegisteredAuthor or an ExternalSender.
type Author interface {
	isAuthor()
}

type RegisteredAuthor struct {
	UserID int64
}

// ExternalSender labels a sender without an account, such as an AI provider.
type ExternalSender struct {
	Label string
}

func (RegisteredAuthor) isAuthor() {}
func (ExternalSender) isAuthor()   {}

type Message struct {
	ID          int64     `db:"id"`
	ChatID      int64     `db:"chat_id"`
	UserID      *int64    `db:"user_id"`
	SenderLabel *string   `db:"sender_label"`
	Text        string    `db:"text"`
	Type        string    `db:"type"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (m *Message) Author() Author {
	if m.UserID != nil {
		return RegisteredAuthor{UserID: *m.UserID}
	}
	if m.SenderLabel != nil {
		return ExternalSender{Label: *m.SenderLabel}
	}
	return ExternalSender{}
}

func (m *Message) SetAuthor(a Author) {
	m.UserID, m.SenderLabel = nil, nil
	switch a := a.(type) {
	case RegisteredAuthor:
		id := a.UserID
		m.UserID = &id
	case ExternalSender:
		label := a.Label
		m.SenderLabel = &label
	}
}

// AuthoredBy reports whether userID is the registered author.
func (m *Message) AuthoredBy(userID int64) bool {
	a, ok := m.Author().(RegisteredAuthor)
	return ok && a.UserID == userID
}

type Note struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	Day       time.Time `db:"day" json:"-"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Session struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// ListFilter is shared by chat and message listings. SortBy must be one of
// the keys accepted by the listing; Offset and Limit are already clamped.
type ListFilter struct {
	Search string
	From   *time.Time
	To     *time.Time
	SortBy string
	Desc   bool
	Offset int
	Limit  int
}
