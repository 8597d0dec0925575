package store

import (
	"context"
	"fmt"
	"strings"
)

// AppendMessage inserts one history row. Only the username is validated
// beyond the role domain.
func (s *SQLiteStore) AppendMessage(ctx context.Context, username, role, content string) (*Message, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrEmptyUsername
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, ErrInvalidRole
	}

	msg := &Message{Username: username, Role: role, Content: content, Timestamp: s.now()}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user_messages (username, role, content, timestamp) VALUES (?, ?, ?, ?)",
		msg.Username, msg.Role, msg.Content, timestamp(msg.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	msg.ID, _ = res.LastInsertId()
	return msg, nil
}

// GetHistory returns the user's messages oldest first. A positive limit keeps
// only the most recent limit messages; zero or less returns everything.
func (s *SQLiteStore) GetHistory(ctx context.Context, username string, limit int) ([]Message, error) {
	query := `
        SELECT id, username, role, content, timestamp
        FROM user_messages
        WHERE username = ?
        ORDER BY timestamp ASC, id ASC`
	args := []any{username}
	if limit > 0 {
		query = `
        SELECT id, username, role, content, timestamp FROM (
            SELECT id, username, role, content, timestamp
            FROM user_messages
            WHERE username = ?
            ORDER BY timestamp DESC, id DESC
            LIMIT ?
        ) ORDER BY timestamp ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []Message{}
	for rows.Next() {
		var (
			msg Message
			ts  nullTime
		)
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Timestamp = ts.Time
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// RecentMessages is the evaluator's context window: the last n turns.
func (s *SQLiteStore) RecentMessages(ctx context.Context, username string, n int) ([]Message, error) {
	if n <= 0 {
		return []Message{}, nil
	}
	return s.GetHistory(ctx, username, n)
}

func (s *SQLiteStore) ClearHistory(ctx context.Context, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM user_messages WHERE username = ?", username)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
