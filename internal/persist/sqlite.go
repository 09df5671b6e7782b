package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/traffic-notify/internal/domain"
)

// SQLiteStore persists the collection in a local SQLite key/value table.
// Useful when the service shares a database file with other local tooling;
// semantics are identical to FileStore.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notification_cache (
	cache_key TEXT PRIMARY KEY,
	version   INTEGER NOT NULL,
	payload   BLOB NOT NULL,
	saved_at  TEXT NOT NULL
)`

// NewSQLiteStore opens (or creates) the SQLite database at dbPath, enables
// WAL mode, and bootstraps the cache table.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// WAL keeps reads cheap while the poller writes on every merge.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type cacheRow struct {
	Version int    `db:"version"`
	Payload []byte `db:"payload"`
}

// Load reads the cached collection. A missing row, undecodable payload, or
// stale schema version yields an empty collection.
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.Notification, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row,
		"SELECT version, payload FROM notification_cache WHERE cache_key = ?", CacheKey)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification cache unreadable, starting empty", "error", err)
		}
		return nil, nil
	}
	if row.Version != SchemaVersion {
		s.logger.Warn("notification cache schema mismatch, discarding",
			"found", row.Version, "want", SchemaVersion)
		return nil, nil
	}

	var items []domain.Notification
	if err := json.Unmarshal(row.Payload, &items); err != nil {
		s.logger.Warn("notification cache corrupt, starting empty", "error", err)
		return nil, nil
	}
	return items, nil
}

// Save upserts the collection under the cache key.
func (s *SQLiteStore) Save(ctx context.Context, items []domain.Notification) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode notification cache: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_cache (cache_key, version, payload, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			saved_at = excluded.saved_at`,
		CacheKey, SchemaVersion, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write notification cache: %w", err)
	}
	return nil
}
