package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/leadership-simulator/internal/auth"
	"gwi.com/leadership-simulator/internal/store"
)

func newUserService(t *testing.T, admins ...string) (*UserService, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	isAdmin := func(username string) bool {
		for _, a := range admins {
			if strings.EqualFold(a, username) {
				return true
			}
		}
		return false
	}
	return NewUserService(s, auth.NewTokenIssuer("test-secret"), time.Hour, isAdmin), s
}

func TestRegisterPromotesAllowListedAdmins(t *testing.T) {
	svc, _ := newUserService(t, "boss")
	ctx := context.Background()

	boss, err := svc.Register(ctx, Registration{Username: "Boss", Name: "B", Email: "boss@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, boss.IsAdmin)

	ana, err := svc.Register(ctx, Registration{Username: "ana", Name: "A", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.False(t, ana.IsAdmin)

	_, err = svc.Register(ctx, Registration{Username: "ana2", Name: "A", Email: "ANA@x.com", Password: "secret1"})
	var dup *store.DuplicateFieldError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)
}

func TestLoginAuthorizeLogout(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Username: "ana", Name: "A", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ana", "wrong")
	assert.ErrorIs(t, err, store.ErrAuthFailed)

	res, err := svc.Login(ctx, "ANA", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, "ana", res.User.Username)

	session, user, err := svc.Authorize(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "ana", session.Username)

	require.NoError(t, svc.Logout(ctx, session.ID))
	_, _, err = svc.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorizeRejectsForeignTokens(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Authorize(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)

	other := auth.NewTokenIssuer("other-secret")
	token, err := other.GenerateJWT("ana", "sid", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, _, err = svc.Authorize(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Correctly signed but for a session that does not exist.
	token, err = auth.NewTokenIssuer("test-secret").GenerateJWT("ana", "missing", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, _, err = svc.Authorize(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorizeFailsAfterUserDeletion(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Username: "ana", Name: "A", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, "ana", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "ana"))
	_, _, err = svc.Authorize(ctx, res.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.ErrorIs(t, svc.Delete(ctx, "ana"), store.ErrUserNotFound)
}

func TestPromoteAdminsSkipsUnknownUsers(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Username: "ana", Name: "A", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.PromoteAdmins(ctx, []string{"ghost", "ANA"}))

	user, err := svc.Get(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
}

func TestCredentials(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Username: "ana", Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	creds, err := svc.Credentials(ctx)
	require.NoError(t, err)
	require.Contains(t, creds, "ana")
	assert.Equal(t, "Ana", creds["ana"].Name)
	assert.True(t, auth.CheckPasswordHash("secret1", creds["ana"].PasswordHash))
}
