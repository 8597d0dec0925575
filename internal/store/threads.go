package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// HandleFactory mints a new external conversation handle.
type HandleFactory func(ctx context.Context) (string, error)

// GetOrCreateThreadHandle returns the handle bound to username, minting and
// persisting one on first use. When the store fails, a transient handle is
// minted and returned with persisted=false so the conversation can go on for
// this session. Only a factory failure is returned as an error.
//
// Bindings never expire or rotate.
func (s *SQLiteStore) GetOrCreateThreadHandle(ctx context.Context, username string, mint HandleFactory) (string, bool, error) {
	logger := log.WithField("username", username)

	handle, err := s.lookupThread(ctx, username)
	if err != nil {
		logger.WithError(err).Warn("Thread lookup failed, using a transient handle")
		return mintTransient(ctx, mint)
	}
	if handle != "" {
		if _, err := s.db.ExecContext(ctx, "UPDATE user_threads SET last_used = ? WHERE username = ?", timestamp(s.now()), username); err != nil {
			logger.WithError(err).Warn("Failed to touch thread last_used")
		}
		return handle, true, nil
	}

	handle, err = mint(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to create thread: %w", err)
	}

	// Two first messages racing for the same user both mint a handle; the
	// insert keeps one and the loser reads it back.
	now := timestamp(s.now())
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO user_threads (username, thread_id, created_at, last_used)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(username) DO NOTHING`, username, handle, now, now)
	if err != nil {
		logger.WithError(err).Warn("Failed to persist thread handle, using it transiently")
		return handle, false, nil
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		existing, err := s.lookupThread(ctx, username)
		if err != nil || existing == "" {
			return handle, false, nil
		}
		return existing, true, nil
	}
	return handle, true, nil
}

func (s *SQLiteStore) GetThreadBinding(ctx context.Context, username string) (*ThreadBinding, error) {
	var (
		b        ThreadBinding
		created  nullTime
		lastUsed nullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT username, thread_id, created_at, last_used FROM user_threads WHERE username = ?", username).
		Scan(&b.Username, &b.ThreadID, &created, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Unbound
		}
		return nil, fmt.Errorf("failed to query thread binding: %w", err)
	}
	b.CreatedAt = created.Time
	b.LastUsed = lastUsed.Time
	return &b, nil
}

func (s *SQLiteStore) lookupThread(ctx context.Context, username string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx, "SELECT thread_id FROM user_threads WHERE username = ?", username).Scan(&handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return handle, nil
}

func mintTransient(ctx context.Context, mint HandleFactory) (string, bool, error) {
	handle, err := mint(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to create transient thread: %w", err)
	}
	return handle, false, nil
}
