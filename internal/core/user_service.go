package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/auth"
	"gwi.com/leadership-simulator/internal/store"
)

// ErrUnauthorized covers every reason a bearer token is not accepted.
var ErrUnauthorized = errors.New("unauthorized")

type UserService struct {
	dbStore    *store.SQLiteStore
	tokens     *auth.TokenIssuer
	sessionTTL time.Duration
	isAdmin    func(username string) bool
}

// NewUserService builds the account flows. isAdmin reports whether a username
// is on the administrator allow-list.
func NewUserService(db *store.SQLiteStore, tokens *auth.TokenIssuer, sessionTTL time.Duration, isAdmin func(string) bool) *UserService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &UserService{dbStore: db, tokens: tokens, sessionTTL: sessionTTL, isAdmin: isAdmin}
}

type Registration struct {
	Username string
	Name     string
	Email    string
	Password string
}

// Register creates the account. Users on the allow-list become admins.
func (s *UserService) Register(ctx context.Context, reg Registration) (*store.UserProfile, error) {
	user, err := s.dbStore.CreateUser(ctx, reg.Username, reg.Name, reg.Email, reg.Password)
	if err != nil {
		return nil, err
	}
	if s.isAdmin(user.Username) {
		if err := s.dbStore.SetAdmin(ctx, user.Username, true); err != nil {
			return nil, fmt.Errorf("failed to grant admin: %w", err)
		}
		user.IsAdmin = true
	}
	log.WithField("username", user.Username).Info("Registered user")
	return user, nil
}

type LoginResult struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      *store.UserProfile `json:"user"`
}

// Login authenticates, opens a session and signs a token bound to it.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.dbStore.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	session, err := s.dbStore.CreateSession(ctx, user.Username, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateJWT(user.Username, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	log.WithFields(log.Fields{"username": user.Username, "session": session.ID}).Info("User logged in")
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

func (s *UserService) Logout(ctx context.Context, sessionID string) error {
	return s.dbStore.EndSession(ctx, sessionID)
}

// Authorize resolves a bearer token to its live session and user. The token
// alone is not enough: the session must still be open.
func (s *UserService) Authorize(ctx context.Context, token string) (*store.Session, *store.UserProfile, error) {
	claims, err := s.tokens.ValidateJWT(token)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	session, err := s.dbStore.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.Username != claims.Subject {
		return nil, nil, ErrUnauthorized
	}

	user, err := s.dbStore.GetUser(ctx, session.Username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUnauthorized
	}
	return session, user, nil
}

func (s *UserService) Get(ctx context.Context, username string) (*store.UserProfile, error) {
	return s.dbStore.GetUser(ctx, username)
}

func (s *UserService) List(ctx context.Context) ([]store.UserProfile, error) {
	return s.dbStore.ListUsers(ctx)
}

func (s *UserService) Delete(ctx context.Context, username string) error {
	if err := s.dbStore.DeleteUser(ctx, username); err != nil {
		return err
	}
	log.WithField("username", username).Warn("Deleted user and all owned data")
	return nil
}

// PromoteAdmins grants the admin flag to every listed user that exists.
// Unknown names are skipped; they are promoted on registration instead.
func (s *UserService) PromoteAdmins(ctx context.Context, usernames []string) error {
	for _, username := range usernames {
		err := s.dbStore.SetAdmin(ctx, username, true)
		if errors.Is(err, store.ErrUserNotFound) {
			log.WithField("username", username).Debug("Admin user not registered yet")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Credentials exposes the read-only credential projection.
func (s *UserService) Credentials(ctx context.Context) (map[string]store.Credential, error) {
	return s.dbStore.CredentialsView(ctx)
}
