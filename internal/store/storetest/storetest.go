// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
)

// New returns a fresh in-memory SQLite store closed at test cleanup.
func New(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", 1, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// MessageCount returns how many messages the chat holds.
func MessageCount(t testing.TB, s *store.Store, chatID int64) int {
	t.Helper()
	_, total, err := s.ListMessages(context.Background(), chatID, store.ListFilter{Limit: 1})
	require.NoError(t, err)
	return total
}

// Memberships counts the roster rows linking userID to the chat.
func Memberships(t testing.TB, s *store.Store, chatID, userID int64) int {
	t.Helper()
	ids, err := s.ParticipantIDs(context.Background(), chatID)
	require.NoError(t, err)
	n := 0
	for _, id := range ids {
		if id == userID {
			n++
		}
	}
	return n
}

// User inserts a user with a placeholder password hash.
func User(t testing.TB, s *store.Store, username string) *store.User {
	t.Helper()
	u := &store.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}
