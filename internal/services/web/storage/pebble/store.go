// Package pebble provides the web session persistence adapter backed by Pebble.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
)

const keyPrefix = "session:"

// stampSize is the width of the updated-at header stored ahead of each payload.
const stampSize = 8

// Store keeps session slots in a Pebble key/value database.
//
// Keys have the form session:<session id>:<slot key>. Values carry an
// 8-byte big-endian unix-milli update stamp followed by the payload.
type Store struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get loads one session slot.
func (s *Store) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, webstorage.ErrClosed
	}
	slotKey, err := slotKey(sessionID, key)
	if err != nil {
		return nil, false, err
	}
	value, closer, err := s.db.Get(slotKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session slot: %w", err)
	}
	defer closer.Close()
	if len(value) < stampSize {
		return nil, false, fmt.Errorf("get session slot: truncated value")
	}
	return append([]byte(nil), value[stampSize:]...), true, nil
}

// Set stores one session slot.
func (s *Store) Set(_ context.Context, sessionID, key string, value []byte) error {
	if s == nil || s.db == nil {
		return webstorage.ErrClosed
	}
	slotKey, err := slotKey(sessionID, key)
	if err != nil {
		return err
	}
	record := make([]byte, stampSize+len(value))
	binary.BigEndian.PutUint64(record, uint64(s.now().UTC().UnixMilli()))
	copy(record[stampSize:], value)
	if err := s.db.Set(slotKey, record, pebble.Sync); err != nil {
		return fmt.Errorf("put session slot: %w", err)
	}
	return nil
}

// Delete removes one session slot.
func (s *Store) Delete(_ context.Context, sessionID, key string) error {
	if s == nil || s.db == nil {
		return webstorage.ErrClosed
	}
	slotKey, err := slotKey(sessionID, key)
	if err != nil {
		return err
	}
	if err := s.db.Delete(slotKey, pebble.Sync); err != nil {
		return fmt.Errorf("delete session slot: %w", err)
	}
	return nil
}

// DeleteStale removes slots last written before the cutoff.
func (s *Store) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, webstorage.ErrClosed
	}
	prefix := []byte(keyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix})
	if err != nil {
		return 0, fmt.Errorf("scan session slots: %w", err)
	}

	cutoff := uint64(before.UTC().UnixMilli())
	batch := s.db.NewBatch()
	defer batch.Close()
	var removed int64
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		value := iter.Value()
		if len(value) >= stampSize && binary.BigEndian.Uint64(value) >= cutoff {
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			_ = iter.Close()
			return 0, fmt.Errorf("queue stale slot delete: %w", err)
		}
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("close slot iterator: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("delete stale session slots: %w", err)
	}
	return removed, nil
}

func slotKey(sessionID, key string) ([]byte, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("slot key is required")
	}
	return []byte(keyPrefix + sessionID + ":" + key), nil
}

var _ webstorage.SessionStore = (*Store)(nil)
