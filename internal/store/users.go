package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gwi.com/leadership-simulator/internal/auth"
)

const userColumns = "username, COALESCE(name, ''), COALESCE(email, ''), COALESCE(is_admin, 0), created_at, last_login"

// CreateUser hashes the password and inserts the row in one statement. The
// uniqueness constraints decide duplicates, so there is no window between a
// check and the insert.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, name, email, password string) (*UserProfile, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (username, name, email, hashed_password, created_at) VALUES (?, ?, ?, ?, ?)",
		username, strings.TrimSpace(name), email, hashedPassword, timestamp(now))
	if err != nil {
		if field, ok := duplicateField(err); ok {
			return nil, &DuplicateFieldError{Field: field}
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &UserProfile{Username: username, Name: strings.TrimSpace(name), Email: email, CreatedAt: now}, nil
}

// Authenticate verifies the password and stamps last_login. Unknown users and
// wrong passwords both yield ErrAuthFailed after a full bcrypt comparison.
func (s *SQLiteStore) Authenticate(ctx context.Context, username, password string) (*UserProfile, error) {
	var (
		user      UserProfile
		hash      string
		createdAt nullTime
		lastLogin nullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+", COALESCE(hashed_password, '') FROM users WHERE username = ? COLLATE NOCASE",
		strings.TrimSpace(username)).
		Scan(&user.Username, &user.Name, &user.Email, &user.IsAdmin, &createdAt, &lastLogin, &hash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	// An unknown user compares against an empty hash, which burns the same
	// bcrypt work as a real comparison.
	if !auth.CheckPasswordHash(password, hash) || err != nil {
		return nil, ErrAuthFailed
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE username = ?", timestamp(now), user.Username); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.CreatedAt = createdAt.Time
	user.LastLogin = &now
	return &user, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? COLLATE NOCASE", strings.TrimSpace(username))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []UserProfile{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// DeleteUser removes the user and every row it owns in one transaction. The
// explicit deletes cover databases opened without foreign key enforcement.
func (s *SQLiteStore) DeleteUser(ctx context.Context, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var canonical string
	err = tx.QueryRowContext(ctx, "SELECT username FROM users WHERE username = ? COLLATE NOCASE", strings.TrimSpace(username)).Scan(&canonical)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to query user: %w", err)
	}

	for _, table := range []string{"user_messages", "user_actions", "user_threads", "auth_sessions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE username = ?", canonical); err != nil {
			return fmt.Errorf("failed to delete %s rows: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE username = ?", canonical); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetAdmin(ctx context.Context, username string, admin bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_admin = ? WHERE username = ? COLLATE NOCASE", admin, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("failed to update admin flag: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CredentialsView projects every user to {name, email, password hash}. It
// makes no authentication decision itself.
func (s *SQLiteStore) CredentialsView(ctx context.Context) (map[string]Credential, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT username, COALESCE(name, ''), COALESCE(email, ''), COALESCE(hashed_password, '') FROM users")
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	creds := make(map[string]Credential)
	for rows.Next() {
		var (
			username string
			c        Credential
		)
		if err := rows.Scan(&username, &c.Name, &c.Email, &c.PasswordHash); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		creds[username] = c
	}
	return creds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserProfile, error) {
	var (
		user      UserProfile
		createdAt nullTime
		lastLogin nullTime
	)
	if err := row.Scan(&user.Username, &user.Name, &user.Email, &user.IsAdmin, &createdAt, &lastLogin); err != nil {
		return nil, err
	}
	user.CreatedAt = createdAt.Time
	user.LastLogin = lastLogin.Ptr()
	return &user, nil
}
