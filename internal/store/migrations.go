package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	schemaVersion = "1"

	metaBootstrap = "schema_bootstrap_complete"
	metaSavedAt   = "last_saved_at"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled(metaBootstrap)
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}
	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag(metaBootstrap); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			name     TEXT,
			gender   TEXT,
			age      INTEGER,
			country  TEXT,
			region   TEXT
		)`,

		// Outgoing edges; position preserves the sorted per-user order.
		`CREATE TABLE IF NOT EXISTS connections (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			type     TEXT NOT NULL,
			target   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target, type)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id            TEXT PRIMARY KEY,
			position      INTEGER NOT NULL,
			creator       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content       TEXT NOT NULL,
			responding_to TEXT REFERENCES posts(id) ON DELETE SET NULL,
			time_and_date TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_creator ON posts(creator)`,

		`CREATE TABLE IF NOT EXISTS post_views (
			post_id  TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (post_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS post_comments (
			post_id  TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			body     TEXT NOT NULL,
			PRIMARY KEY (post_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value.String, err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
