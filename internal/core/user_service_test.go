package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatterbox/chatterbox-api/internal/store/storetest"
	"github.com/chatterbox/chatterbox-api/internal/utils"
)

func signup(t *testing.T, f *fixture, username, email, password string) *AuthResult {
	t.Helper()
	res, err := f.users.Signup(testContext(t), SignupInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	res := signup(t, f, "alice", "a@x.com", "secret1")
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Member", res.User.Role)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	_, err := f.users.Signup(ctx, SignupInput{Username: "alice2", Email: "A@x.com", Password: "secret1"})
	assertKind(t, KindConflict, err)
	assert.Equal(t, "User with this email or username already exists", PublicMessage(err))

	_, err = f.users.Signup(ctx, SignupInput{Username: "alice", Email: "other@x.com", Password: "secret1"})
	assertKind(t, KindConflict, err)

	tests := []struct {
		name string
		in   SignupInput
	}{
		{"short username", SignupInput{Username: "al", Email: "b@x.com", Password: "secret1"}},
		{"bad username", SignupInput{Username: "al ice", Email: "b@x.com", Password: "secret1"}},
		{"bad email", SignupInput{Username: "bob", Email: "not-an-email", Password: "secret1"}},
		{"short password", SignupInput{Username: "bob", Email: "b@x.com", Password: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Signup(ctx, tt.in)
			assertKind(t, KindValidation, err)
		})
	}
}

func TestLoginAuthenticateLogout(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	signup(t, f, "alice", "a@x.com", "secret1")

	_, err := f.users.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong"})
	assertKind(t, KindAuthentication, err)
	assert.Equal(t, "Invalid email or password", PublicMessage(err))

	_, err = f.users.Login(ctx, LoginInput{Email: "nobody@x.com", Password: "secret1"})
	assertKind(t, KindAuthentication, err)

	res, err := f.users.Login(ctx, LoginInput{Email: " A@X.com ", Password: "secret1"})
	require.NoError(t, err)

	id, err := f.users.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.User.Username)
	assert.NotEmpty(t, id.SessionID)

	require.NoError(t, f.users.Logout(ctx, id.SessionID))
	_, err = f.users.Authenticate(ctx, res.Token)
	assertKind(t, KindAuthentication, err)

	_, err = f.users.Authenticate(ctx, "garbage")
	assertKind(t, KindAuthentication, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := signup(t, f, "alice", "a@x.com", "secret1").User
	signup(t, f, "bob", "b@x.com", "secret1")

	email := "new@x.com"
	_, err := f.users.UpdateProfile(ctx, alice.ID, ProfileInput{Email: &email})
	assertKind(t, KindValidation, err)
	assert.Equal(t, "Email cannot be changed", PublicMessage(err))

	_, err = f.users.UpdateProfile(ctx, alice.ID, ProfileInput{})
	assert.Equal(t, "No fields to update", PublicMessage(err))

	taken := "bob"
	_, err = f.users.UpdateProfile(ctx, alice.ID, ProfileInput{Username: &taken})
	assertKind(t, KindConflict, err)

	name, city := "Alice L.", "Oxford"
	u, err := f.users.UpdateProfile(ctx, alice.ID, ProfileInput{FullName: &name, Location: &city})
	require.NoError(t, err)
	require.NotNil(t, u.FullName)
	assert.Equal(t, name, *u.FullName)
	assert.Equal(t, "a@x.com", u.Email)

	profile, err := f.users.Profile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	_, err = f.users.Profile(ctx, 999)
	assertKind(t, KindNotFound, err)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := signup(t, f, "alice", "a@x.com", "secret1").User

	err := f.users.ChangePassword(ctx, alice.ID, PasswordInput{OldPassword: "nope", NewPassword: "secret2"})
	assertKind(t, KindAuthentication, err)
	assert.Equal(t, "Old password is incorrect", PublicMessage(err))

	err = f.users.ChangePassword(ctx, alice.ID, PasswordInput{OldPassword: "secret1", NewPassword: "123"})
	assertKind(t, KindValidation, err)

	require.NoError(t, f.users.ChangePassword(ctx, alice.ID, PasswordInput{OldPassword: "secret1", NewPassword: "secret2"}))
	_, err = f.users.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret2"})
	require.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := signup(t, f, "alice", "a@x.com", "secret1")
	bob := storetest.User(t, f.store, "bob")

	own := f.chat(t, alice.User, bob)
	f.post(t, bob, own.ID, "in alice's chat")
	theirs := f.chat(t, bob, alice.User)
	f.post(t, alice.User, theirs.ID, "alice was here")
	f.post(t, bob, theirs.ID, "bob stays")
	today := utils.Day(time.Now())
	_, err := f.store.RecordActivity(ctx, alice.User.ID, today)
	require.NoError(t, err)
	_, err = f.store.UpsertNote(ctx, alice.User.ID, today, "diary")
	require.NoError(t, err)

	require.NoError(t, f.users.DeleteAccount(ctx, alice.User.ID))

	_, err = f.users.Get(ctx, alice.User.ID)
	assertKind(t, KindNotFound, err)
	_, err = f.users.Authenticate(ctx, alice.Token)
	assertKind(t, KindAuthentication, err)

	_, err = f.chats.GetChat(ctx, bob.ID, own.ID)
	assertKind(t, KindNotFound, err)

	page, err := f.chats.ListMessages(ctx, bob.ID, theirs.ID, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "bob stays", page.Messages[0].Text)

	detail, err := f.chats.GetChat(ctx, bob.ID, theirs.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Participants, 1)

	assertKind(t, KindNotFound, f.users.DeleteAccount(ctx, alice.User.ID))
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	alice := storetest.User(t, f.store, "alice")
	storetest.User(t, f.store, "alicia")
	storetest.User(t, f.store, "bob")

	found, err := f.users.Search(ctx, alice.ID, "ALI", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alicia", found[0].Username)

	_, err = f.users.Search(ctx, alice.ID, " ", 10)
	assertKind(t, KindValidation, err)
}

func TestPurgeExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	res := signup(t, f, "alice", "a@x.com", "secret1")

	n, err := f.users.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.users.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = f.users.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.users.Authenticate(ctx, res.Token)
	assertKind(t, KindAuthentication, err)
}
