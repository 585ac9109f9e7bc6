package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/reqflash/internal/platform/storage/sqlitemigrate"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
	"github.com/louisbranch/reqflash/internal/services/web/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for session slots.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates a session SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads one session slot.
func (s *Store) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	if s == nil || s.sqlDB == nil {
		return nil, false, fmt.Errorf("storage is not configured")
	}
	sessionID, key, err := normalizeSlot(sessionID, key)
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payload FROM session_slots WHERE session_id = ? AND slot_key = ?`,
		sessionID,
		key,
	).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get session slot: %w", err)
	}
	return payload, true, nil
}

// Set upserts one session slot.
func (s *Store) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID, key, err := normalizeSlot(sessionID, key)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO session_slots (session_id, slot_key, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, slot_key) DO UPDATE SET
		    payload = excluded.payload,
		    updated_at = excluded.updated_at`,
		sessionID,
		key,
		value,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put session slot: %w", err)
	}
	return nil
}

// Delete removes one session slot. Missing slots are not an error.
func (s *Store) Delete(ctx context.Context, sessionID, key string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID, key, err := normalizeSlot(sessionID, key)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_slots WHERE session_id = ? AND slot_key = ?`, sessionID, key); err != nil {
		return fmt.Errorf("delete session slot: %w", err)
	}
	return nil
}

// DeleteStale removes slots not updated since before and reports how many
// rows were dropped.
func (s *Store) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_slots WHERE updated_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete stale session slots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count stale session slots: %w", err)
	}
	return affected, nil
}

func normalizeSlot(sessionID, key string) (string, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", "", fmt.Errorf("session id is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("slot key is required")
	}
	return sessionID, key, nil
}

var _ webstorage.SessionStore = (*Store)(nil)
