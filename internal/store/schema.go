package store

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type column struct {
	name string
	// addDef is used by ALTER TABLE ADD COLUMN, which rejects non-constant
	// defaults, so it may differ from the CREATE TABLE definition.
	addDef string
}

type table struct {
	name    string
	create  string
	columns []column
}

var tables = []table{
	{
		name: "users",
		create: `
    CREATE TABLE IF NOT EXISTS users (
        username TEXT PRIMARY KEY COLLATE NOCASE,
        name TEXT NOT NULL DEFAULT '',
        email TEXT UNIQUE NOT NULL COLLATE NOCASE,
        hashed_password TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        last_login DATETIME,
        is_admin BOOLEAN NOT NULL DEFAULT 0
    )`,
		columns: []column{
			{"name", "TEXT NOT NULL DEFAULT ''"},
			{"email", "TEXT"},
			{"hashed_password", "TEXT NOT NULL DEFAULT ''"},
			{"created_at", "DATETIME"},
			{"last_login", "DATETIME"},
			{"is_admin", "BOOLEAN NOT NULL DEFAULT 0"},
		},
	},
	{
		name: "user_messages",
		create: `
    CREATE TABLE IF NOT EXISTS user_messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL COLLATE NOCASE,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (username) REFERENCES users (username) ON DELETE CASCADE
    )`,
		columns: []column{
			{"role", "TEXT NOT NULL DEFAULT 'user'"},
			{"content", "TEXT NOT NULL DEFAULT ''"},
			{"timestamp", "DATETIME"},
		},
	},
	{
		name: "user_actions",
		create: `
    CREATE TABLE IF NOT EXISTS user_actions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL COLLATE NOCASE,
        action_type TEXT NOT NULL,
        outcome TEXT,
        metadata TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (username) REFERENCES users (username) ON DELETE CASCADE
    )`,
		columns: []column{
			{"action_type", "TEXT NOT NULL DEFAULT ''"},
			{"outcome", "TEXT"},
			{"metadata", "TEXT"},
			{"timestamp", "DATETIME"},
		},
	},
	{
		name: "user_threads",
		create: `
    CREATE TABLE IF NOT EXISTS user_threads (
        username TEXT PRIMARY KEY COLLATE NOCASE,
        thread_id TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        last_used DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (username) REFERENCES users (username) ON DELETE CASCADE
    )`,
		columns: []column{
			{"created_at", "DATETIME"},
			{"last_used", "DATETIME"},
		},
	},
	{
		name: "auth_sessions",
		create: `
    CREATE TABLE IF NOT EXISTS auth_sessions (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL COLLATE NOCASE,
        session_start DATETIME DEFAULT CURRENT_TIMESTAMP,
        session_end DATETIME,
        expires_at DATETIME NOT NULL,
        total_decisions INTEGER NOT NULL DEFAULT 0,
        FOREIGN KEY (username) REFERENCES users (username) ON DELETE CASCADE
    )`,
		columns: []column{
			{"session_end", "DATETIME"},
			{"total_decisions", "INTEGER NOT NULL DEFAULT 0"},
		},
	},
}

var indices = []string{
	`CREATE INDEX IF NOT EXISTS idx_user_messages_username ON user_messages(username)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_timestamp ON user_messages(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_user_actions_username ON user_actions(username)`,
	`CREATE INDEX IF NOT EXISTS idx_user_actions_timestamp ON user_actions(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_user_actions_type ON user_actions(action_type)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_sessions_username ON auth_sessions(username)`,
}

// Unique indices matter for tables created by older revisions without
// NOCASE columns. Existing case-variant duplicates make them impossible,
// which is logged rather than treated as fatal.
var uniqueIndices = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_nocase ON users(username COLLATE NOCASE)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_nocase ON users(email COLLATE NOCASE)`,
}

// Older revisions stored the evaluation outcome under other column names.
var legacyOutcomeColumns = []string{"action_data", "decision_type"}

var legacyNormalization = []string{
	`UPDATE user_actions SET action_type = 'automatic_evaluation' WHERE action_type = 'avaliacao_automatica'`,
	`UPDATE user_actions SET outcome = 'hit' WHERE action_type = 'automatic_evaluation' AND outcome = 'acerto'`,
	`UPDATE user_actions SET outcome = 'miss' WHERE action_type = 'automatic_evaluation' AND outcome = 'erro'`,
}

// Initialize creates missing tables, adds missing columns and indices, and
// normalizes legacy data. It never drops or renames anything, so it is safe
// to run on every start.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, t.create); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}

		existing, err := tableColumns(ctx, tx, t.name)
		if err != nil {
			return err
		}
		for _, c := range t.columns {
			if existing[c.name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", t.name, c.name, c.addDef)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", t.name, c.name, err)
			}
			log.WithFields(log.Fields{"table": t.name, "column": c.name}).Info("Added missing column")
		}

		if t.name == "user_actions" {
			for _, legacy := range legacyOutcomeColumns {
				if !existing[legacy] {
					continue
				}
				stmt := fmt.Sprintf("UPDATE user_actions SET outcome = %s WHERE outcome IS NULL AND %s IS NOT NULL", legacy, legacy)
				res, err := tx.ExecContext(ctx, stmt)
				if err != nil {
					return fmt.Errorf("failed to backfill outcome from %s: %w", legacy, err)
				}
				if n, _ := res.RowsAffected(); n > 0 {
					log.WithField("column", legacy).Infof("Backfilled outcome for %d legacy actions", n)
				}
			}
		}
	}

	for _, stmt := range legacyNormalization {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to normalize legacy actions: %w", err)
		}
	}

	for _, stmt := range indices {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	for _, stmt := range uniqueIndices {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			log.WithError(err).Warn("Could not create case-insensitive unique index; existing rows conflict")
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func tableColumns(ctx context.Context, q queryer, name string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		cols[colName] = true
	}
	return cols, rows.Err()
}
