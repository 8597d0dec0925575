package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gwi.com/leadership-simulator/internal/utils"
)

// The evaluation filter sits in the JOIN condition rather than in WHERE so
// that users whose only actions are of other kinds still produce a row.
const summarySelect = `
        SELECT
            u.username,
            COALESCE(u.name, ''),
            COALESCE(u.email, ''),
            COUNT(CASE WHEN a.outcome = 'hit' THEN 1 END) AS hits,
            COUNT(CASE WHEN a.outcome = 'miss' THEN 1 END) AS misses,
            COUNT(a.id) AS total_decisions,
            MIN(a.timestamp) AS first_activity,
            MAX(a.timestamp) AS last_activity,
            u.last_login
        FROM users u
        LEFT JOIN user_actions a ON a.username = u.username AND a.action_type = ?`

// GetUserSummary aggregates one user's evaluation actions. Unknown users
// return nil, nil.
func (s *SQLiteStore) GetUserSummary(ctx context.Context, username string) (*UserSummary, error) {
	row := s.db.QueryRowContext(ctx,
		summarySelect+`
        WHERE u.username = ? COLLATE NOCASE
        GROUP BY u.username`,
		ActionEvaluation, strings.TrimSpace(username))
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user summary: %w", err)
	}
	return summary, nil
}

// GetAllUserSummaries returns one row per registered user, including users
// with no decisions, ordered by total decisions then username.
func (s *SQLiteStore) GetAllUserSummaries(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		summarySelect+`
        GROUP BY u.username
        ORDER BY total_decisions DESC, u.username ASC`,
		ActionEvaluation)
	if err != nil {
		return nil, fmt.Errorf("failed to query user summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []UserSummary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, *summary)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	err := s.db.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM users),
            (SELECT COUNT(*) FROM user_messages),
            (SELECT COUNT(*) FROM user_actions),
            (SELECT COUNT(DISTINCT username) FROM user_actions WHERE action_type = ?)`,
		ActionEvaluation).
		Scan(&stats.TotalUsers, &stats.TotalMessages, &stats.TotalActions, &stats.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to query global stats: %w", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) GetOverview(ctx context.Context) (*Overview, error) {
	var o Overview
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COUNT(CASE WHEN outcome = 'hit' THEN 1 END)
        FROM user_actions
        WHERE action_type = ?`, ActionEvaluation).
		Scan(&o.TotalDecisions, &o.TotalHits)
	if err != nil {
		return nil, fmt.Errorf("failed to query overview: %w", err)
	}
	o.Accuracy = utils.Accuracy(o.TotalHits, o.TotalDecisions)
	return &o, nil
}

func scanSummary(row rowScanner) (*UserSummary, error) {
	var (
		s         UserSummary
		first     nullTime
		last      nullTime
		lastLogin nullTime
	)
	if err := row.Scan(&s.Username, &s.Name, &s.Email, &s.Hits, &s.Misses, &s.Total, &first, &last, &lastLogin); err != nil {
		return nil, err
	}
	s.Accuracy = utils.Accuracy(s.Hits, s.Total)
	s.FirstActivity = first.Ptr()
	s.LastActivity = last.Ptr()
	s.LastLogin = lastLogin.Ptr()
	return &s, nil
}
