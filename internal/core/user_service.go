package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/auth"
	"github.com/chatterbox/chatterbox-api/internal/store"
)

const duplicateUserMessage = "User with this email or username already exists"

type UserService struct {
	store    *store.Store
	tokens   *auth.TokenIssuer
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserService(st *store.Store, tokens *auth.TokenIssuer, notifier Notifier, logger *zap.Logger) *UserService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &UserService{
		store:    st,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger.Named("users"),
		now:      time.Now,
	}
}

type SignupInput struct {
	Username string  `json:"username" validate:"required,min=3,max=30,username"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	FullName *string `json:"fullName" validate:"omitempty,max=100"`
	Location *string `json:"location" validate:"omitempty,max=100"`
	Website  *string `json:"website" validate:"omitempty,max=200"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *store.User `json:"user"`
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	User      *store.User
	SessionID string
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(ctx, in.Email, in.Username)
	if err != nil {
		return nil, Internal("users.signup", err)
	}
	if exists {
		return nil, Conflict(duplicateUserMessage)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, Internal("users.signup", err)
	}
	u := &store.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     trimmed(in.FullName),
		Location:     trimmed(in.Location),
		Website:      trimmed(in.Website),
		Role:         store.DefaultUserRole,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, Conflict(duplicateUserMessage)
		}
		return nil, Internal("users.signup", err)
	}

	s.logger.Info("user signed up", zap.Int64("user_id", u.ID))
	return s.startSession(ctx, u)
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Unauthenticated("Invalid email or password")
		}
		return nil, Internal("users.login", err)
	}
	if !auth.CheckPasswordHash(in.Password, u.PasswordHash) {
		return nil, Unauthenticated("Invalid email or password")
	}
	return s.startSession(ctx, u)
}

func (s *UserService) startSession(ctx context.Context, u *store.User) (*AuthResult, error) {
	sid := uuid.NewString()
	token, expires, err := s.tokens.Issue(u.ID, sid, s.now())
	if err != nil {
		return nil, Internal("users.session", err)
	}
	if err := s.store.CreateSession(ctx, &store.Session{ID: sid, UserID: u.ID, ExpiresAt: expires}); err != nil {
		return nil, Internal("users.session", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expires, User: u}, nil
}

// Authenticate resolves a bearer token to a live session and its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, Unauthenticated("Invalid or expired token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, Unauthenticated("Invalid or expired token")
	}

	sess, err := s.store.GetSession(ctx, claims.SessionID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Unauthenticated("Session is no longer valid")
		}
		return nil, Internal("users.authenticate", err)
	}
	if sess.UserID != userID || !sess.ExpiresAt.After(s.now()) {
		return nil, Unauthenticated("Session is no longer valid")
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Unauthenticated("User not found")
		}
		return nil, Internal("users.authenticate", err)
	}
	return &Identity{User: u, SessionID: sess.ID}, nil
}

func (s *UserService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return Internal("users.logout", err)
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, userID int64) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("User not found")
		}
		return nil, Internal("users.get", err)
	}
	return u, nil
}

func (s *UserService) Profile(ctx context.Context, userID int64) (*PublicProfile, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PublicProfile{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Location:  u.Location,
		Website:   u.Website,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}, nil
}

// ProfileInput is a partial update. Email is accepted only to be rejected.
type ProfileInput struct {
	Username  *string `json:"username" validate:"omitempty,min=3,max=30,username"`
	Email     *string `json:"email"`
	FullName  *string `json:"fullName" validate:"omitempty,max=100"`
	Location  *string `json:"location" validate:"omitempty,max=100"`
	Website   *string `json:"website" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,max=500"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*store.User, error) {
	if in.Email != nil {
		return nil, Validation("Email cannot be changed")
	}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" {
			return nil, Validation("username cannot be empty")
		}
		in.Username = &name
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	patch := store.UserPatch{
		Username:  in.Username,
		FullName:  trimmedOrEmpty(in.FullName),
		Location:  trimmedOrEmpty(in.Location),
		Website:   trimmedOrEmpty(in.Website),
		AvatarURL: trimmedOrEmpty(in.AvatarURL),
	}
	if patch.Empty() {
		return nil, Validation("No fields to update")
	}

	if patch.Username != nil {
		taken, err := s.store.UsernameTaken(ctx, *patch.Username, userID)
		if err != nil {
			return nil, Internal("users.update", err)
		}
		if taken {
			return nil, Conflict("Username is already taken")
		}
	}

	u, err := s.store.UpdateUser(ctx, userID, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, NotFound("User not found")
		case errors.Is(err, store.ErrConflict):
			return nil, Conflict("Username is already taken")
		}
		return nil, Internal("users.update", err)
	}
	return u, nil
}

type PasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

func (s *UserService) ChangePassword(ctx context.Context, userID int64, in PasswordInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(in.OldPassword, u.PasswordHash) {
		return Unauthenticated("Old password is incorrect")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return Internal("users.password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return Internal("users.password", err)
	}
	return nil
}

// DeleteAccount removes the user and everything owned or authored by them in
// a single transaction, children before parents.
func (s *UserService) DeleteAccount(ctx context.Context, userID int64) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	var owned []int64
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if owned, err = tx.ChatIDsOwnedBy(ctx, userID); err != nil {
			return err
		}
		steps := []func(context.Context, int64) (int64, error){
			tx.DeleteMessagesOfOwnedChats,
			tx.DeleteParticipantsOfOwnedChats,
			tx.DeleteChatsOwnedBy,
			tx.DeleteParticipationsOf,
			tx.DeleteMessagesAuthoredBy,
			tx.DeleteActivityOf,
			tx.DeleteNotesOf,
			tx.DeleteSessionsOf,
		}
		for _, step := range steps {
			if _, err := step(ctx, userID); err != nil {
				return err
			}
		}
		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		return Internal("users.delete", err)
	}

	s.logger.Info("account deleted", zap.Int64("user_id", userID), zap.Int("owned_chats", len(owned)))
	for _, id := range owned {
		s.notifier.ChatListChanged(id)
	}
	return nil
}

func (s *UserService) Search(ctx context.Context, callerID int64, query string, limit int) ([]UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Validation("query is required")
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	users, err := s.store.SearchUsers(ctx, query, callerID, limit)
	if err != nil {
		return nil, Internal("users.search", err)
	}
	out := make([]UserSummary, 0, len(users))
	for i := range users {
		out = append(out, *summarize(&users[i]))
	}
	return out, nil
}

// PurgeExpiredSessions drops sessions whose tokens can no longer validate.
func (s *UserService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, Internal("users.purge_sessions", err)
	}
	return n, nil
}

// trimmed returns nil for nil or blank input.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// trimmedOrEmpty keeps an explicit blank so that a field can be cleared.
func trimmedOrEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
