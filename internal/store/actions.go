package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LogAction appends one action. It is not idempotent: a retried call counts
// twice, so callers must not retry it blindly.
func (s *SQLiteStore) LogAction(ctx context.Context, username, actionType, outcome string, metadata *string) (*Action, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrEmptyUsername
	}
	if strings.TrimSpace(actionType) == "" {
		return nil, ErrEmptyAction
	}
	if actionType == ActionEvaluation && outcome != OutcomeHit && outcome != OutcomeMiss {
		return nil, ErrInvalidOutcome
	}

	action := &Action{
		Username:   username,
		ActionType: actionType,
		Outcome:    outcome,
		Metadata:   metadata,
		Timestamp:  s.now(),
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user_actions (username, action_type, outcome, metadata, timestamp) VALUES (?, ?, ?, ?, ?)",
		action.Username, action.ActionType, action.Outcome, action.Metadata, timestamp(action.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("failed to insert action: %w", err)
	}
	action.ID, _ = res.LastInsertId()
	return action, nil
}

// RecentActions lists the latest evaluation actions across all users.
func (s *SQLiteStore) RecentActions(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, username, action_type, COALESCE(outcome, ''), metadata, timestamp
        FROM user_actions
        WHERE action_type = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, ActionEvaluation, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actions := []Action{}
	for rows.Next() {
		var (
			a  Action
			ts nullTime
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.ActionType, &a.Outcome, &a.Metadata, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		a.Timestamp = ts.Time
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Cleanup removes messages and non-evaluation actions older than horizon.
// Evaluation actions are the statistical record and are never removed here.
func (s *SQLiteStore) Cleanup(ctx context.Context, horizon time.Duration) (CleanupResult, error) {
	var result CleanupResult
	if horizon <= 0 {
		return result, fmt.Errorf("retention horizon must be positive, got %s", horizon)
	}
	cutoff := timestamp(s.now().Add(-horizon))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM user_messages WHERE timestamp < ?", cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to delete old messages: %w", err)
	}
	result.MessagesRemoved, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM user_actions WHERE timestamp < ? AND action_type != ?", cutoff, ActionEvaluation)
	if err != nil {
		return result, fmt.Errorf("failed to delete old actions: %w", err)
	}
	result.ActionsRemoved, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return result, nil
}
