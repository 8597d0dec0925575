package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserThenAuthenticate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "ana", "Ana", "ana@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana", created.Username)

	profile, err := s.Authenticate(ctx, "ana", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana", profile.Username)
	assert.Equal(t, "Ana", profile.Name)
	assert.Equal(t, "ana@x.com", profile.Email)
	require.NotNil(t, profile.LastLogin)

	stored, err := s.GetUser(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(*profile.LastLogin))
}

func TestAuthenticateIsCaseInsensitiveOnUsername(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "ana")

	profile, err := s.Authenticate(context.Background(), "ANA", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana", profile.Username)
}

func TestAuthenticateFailuresAreGeneric(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "ana")
	ctx := context.Background()

	_, wrongPassword := s.Authenticate(ctx, "ana", "nope")
	_, unknownUser := s.Authenticate(ctx, "ghost", "secret1")

	assert.ErrorIs(t, wrongPassword, ErrAuthFailed)
	assert.ErrorIs(t, unknownUser, ErrAuthFailed)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())

	user, err := s.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Nil(t, user.LastLogin)
}

func TestCreateUserDuplicateUsernameIgnoresCase(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "ana")

	for _, username := range []string{"ana", "ANA", "Ana"} {
		_, err := s.CreateUser(context.Background(), username, "Other", username+"-other@x.com", "secret1")
		var dup *DuplicateFieldError
		require.True(t, errors.As(err, &dup), "username %q: %v", username, err)
		assert.Equal(t, "username", dup.Field)
	}
}

func TestCreateUserDuplicateEmailIgnoresCase(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "ana")

	_, err := s.CreateUser(context.Background(), "bo", "Bo", "ANA@X.COM", "secret1")
	var dup *DuplicateFieldError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, "email", dup.Field)
}

func TestCreateUserRejectsEmptyUsername(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.CreateUser(context.Background(), "  ", "Nobody", "n@x.com", "secret1")
	assert.ErrorIs(t, err, ErrEmptyUsername)
}

func TestPasswordIsNeverStoredInClear(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateUser(t, s, "ana")

	creds, err := s.CredentialsView(context.Background())
	require.NoError(t, err)
	require.Contains(t, creds, "ana")

	c := creds["ana"]
	assert.Equal(t, "Name ana", c.Name)
	assert.Equal(t, "ana@x.com", c.Email)
	assert.NotEqual(t, "secret1", c.PasswordHash)
	assert.True(t, strings.HasPrefix(c.PasswordHash, "$2"), "expected a bcrypt hash, got %q", c.PasswordHash)
}

func TestListUsersAndSetAdmin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "bo")
	mustCreateUser(t, s, "ana")

	require.NoError(t, s.SetAdmin(ctx, "ANA", true))
	assert.ErrorIs(t, s.SetAdmin(ctx, "ghost", true), ErrUserNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0].Username)
	assert.True(t, users[0].IsAdmin)
	assert.Equal(t, "bo", users[1].Username)
	assert.False(t, users[1].IsAdmin)
}

func TestGetUserUnknownReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	user, err := s.GetUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDeleteUserCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "ana")
	mustCreateUser(t, s, "bo")

	_, err := s.AppendMessage(ctx, "ana", RoleUser, "hello")
	require.NoError(t, err)
	logEvaluations(t, s, "ana", OutcomeHit, OutcomeMiss)
	logEvaluations(t, s, "bo", OutcomeHit)
	_, _, err = s.GetOrCreateThreadHandle(ctx, "ana", func(context.Context) (string, error) { return "thread-ana", nil })
	require.NoError(t, err)
	session, err := s.CreateSession(ctx, "ana", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, "ana"))

	summary, err := s.GetUserSummary(ctx, "ana")
	require.NoError(t, err)
	assert.Nil(t, summary)

	history, err := s.GetHistory(ctx, "ana", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	binding, err := s.GetThreadBinding(ctx, "ana")
	require.NoError(t, err)
	assert.Nil(t, binding)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := s.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, GlobalStats{TotalUsers: 1, TotalMessages: 0, TotalActions: 1, ActiveUsers: 1}, *stats)

	assert.ErrorIs(t, s.DeleteUser(ctx, "ana"), ErrUserNotFound)
}
