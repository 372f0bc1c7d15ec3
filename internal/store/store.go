// Package store persists network snapshots in SQLite.
//
// A snapshot is the complete network: users with their attributes and
// ordered connections, posts with their views and comments. Saving replaces
// the previous snapshot atomically; loading replays it through the network
// API so every model invariant is re-checked.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/sociograph/internal/network"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.sociograph/sociograph.db"

// StoreStats holds row counts for the stored snapshot.
type StoreStats struct {
	UserCount       int64      `json:"users"`
	ConnectionCount int64      `json:"connections"`
	PostCount       int64      `json:"posts"`
	ViewCount       int64      `json:"views"`
	CommentCount    int64      `json:"comments"`
	DBSizeBytes     int64      `json:"db_size_bytes"`
	SavedAt         *time.Time `json:"saved_at,omitempty"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the snapshot storage interface.
type Store interface {
	SaveNetwork(ctx context.Context, n *network.Network) error
	LoadNetwork(ctx context.Context) (*network.Network, error)
	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts for the stored snapshot.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM users", &stats.UserCount},
		{"SELECT COUNT(*) FROM connections", &stats.ConnectionCount},
		{"SELECT COUNT(*) FROM posts", &stats.PostCount},
		{"SELECT COUNT(*) FROM post_views", &stats.ViewCount},
		{"SELECT COUNT(*) FROM post_comments", &stats.CommentCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	if saved, err := s.getMetaValue(ctx, metaSavedAt); err == nil && saved != "" {
		if t, err := time.Parse(time.RFC3339Nano, saved); err == nil {
			stats.SavedAt = &t
		}
	}

	// Only meaningful for file-based databases.
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
