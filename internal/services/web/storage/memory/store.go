// Package memory provides an in-process session store for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	webstorage "github.com/louisbranch/reqflash/internal/services/web/storage"
)

type slot struct {
	payload   []byte
	updatedAt time.Time
}

// Store keeps session slots in memory. Data does not survive restarts.
type Store struct {
	mu     sync.Mutex
	closed bool
	slots  map[string]map[string]slot
	now    func() time.Time
}

// New returns an empty memory store.
func New() *Store {
	return &Store{slots: map[string]map[string]slot{}, now: time.Now}
}

// Get loads one session slot.
func (s *Store) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := validate(sessionID, key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, webstorage.ErrClosed
	}
	entry, ok := s.slots[sessionID][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

// Set stores one session slot.
func (s *Store) Set(_ context.Context, sessionID, key string, value []byte) error {
	if err := validate(sessionID, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return webstorage.ErrClosed
	}
	slots, ok := s.slots[sessionID]
	if !ok {
		slots = map[string]slot{}
		s.slots[sessionID] = slots
	}
	slots[key] = slot{payload: append([]byte(nil), value...), updatedAt: s.now()}
	return nil
}

// Delete removes one session slot.
func (s *Store) Delete(_ context.Context, sessionID, key string) error {
	if err := validate(sessionID, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return webstorage.ErrClosed
	}
	slots := s.slots[sessionID]
	delete(slots, key)
	if len(slots) == 0 {
		delete(s.slots, sessionID)
	}
	return nil
}

// DeleteStale removes slots last written before the cutoff.
func (s *Store) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, webstorage.ErrClosed
	}
	var removed int64
	for sessionID, slots := range s.slots {
		for key, entry := range slots {
			if entry.updatedAt.Before(before) {
				delete(slots, key)
				removed++
			}
		}
		if len(slots) == 0 {
			delete(s.slots, sessionID)
		}
	}
	return removed, nil
}

// Close drops every slot and rejects further use.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.slots = nil
	return nil
}

func validate(sessionID, key string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("slot key is required")
	}
	return nil
}

var _ webstorage.SessionStore = (*Store)(nil)
