package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession starts a login session that stays valid for ttl unless ended.
func (s *SQLiteStore) CreateSession(ctx context.Context, username string, ttl time.Duration) (*Session, error) {
	now := s.now()
	session := &Session{
		ID:        uuid.NewString(),
		Username:  username,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_sessions (id, username, session_start, expires_at) VALUES (?, ?, ?, ?)",
		session.ID, session.Username, timestamp(session.StartedAt), timestamp(session.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

// GetSession returns the session only while it is neither ended nor expired.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		session   Session
		started   nullTime
		ended     nullTime
		expiresAt nullTime
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, username, session_start, session_end, expires_at, total_decisions
        FROM auth_sessions
        WHERE id = ?`, id).
		Scan(&session.ID, &session.Username, &started, &ended, &expiresAt, &session.TotalDecisions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if ended.Valid || !expiresAt.Valid || !s.now().Before(expiresAt.Time) {
		return nil, nil
	}
	session.StartedAt = started.Time
	session.ExpiresAt = expiresAt.Time
	return &session, nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE auth_sessions SET session_end = ? WHERE id = ? AND session_end IS NULL", timestamp(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementSessionDecisions(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE auth_sessions SET total_decisions = total_decisions + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment session decisions: %w", err)
	}
	return nil
}
