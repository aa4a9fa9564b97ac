// Package admindata persists the admin ban lists — a global user ban set
// and a per-room user ban set — to a single JSON file, serializing writes
// so the on-disk image is always a valid snapshot of some consistent state.
package admindata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// document is the on-disk shape.
type document struct {
	UserBans []int64            `json:"userBans"`
	RoomBans map[string][]int64 `json:"roomBans"`
}

// Store holds the in-memory ban sets and persists them to path on mutation.
type Store struct {
	mu       sync.Mutex
	path     string
	userBans map[int64]struct{}
	roomBans map[string]map[int64]struct{}
}

// Open loads path if it exists, or starts empty if it does not.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		userBans: make(map[int64]struct{}),
		roomBans: make(map[string]map[int64]struct{}),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admindata: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("admindata: parse %s: %w", path, err)
	}
	for _, id := range doc.UserBans {
		s.userBans[id] = struct{}{}
	}
	for room, ids := range doc.RoomBans {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.roomBans[room] = set
	}
	return s, nil
}

// IsUserBanned reports a global ban.
func (s *Store) IsUserBanned(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, banned := s.userBans[userID]
	return banned
}

// IsRoomBanned reports a per-room ban.
func (s *Store) IsRoomBanned(roomID string, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.roomBans[roomID]
	if !ok {
		return false
	}
	_, banned := set[userID]
	return banned
}

// BanUser adds a global ban and persists the change.
func (s *Store) BanUser(userID int64) error {
	s.mu.Lock()
	s.userBans[userID] = struct{}{}
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// UnbanUser removes a global ban and persists the change.
func (s *Store) UnbanUser(userID int64) error {
	s.mu.Lock()
	delete(s.userBans, userID)
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// BanFromRoom adds a per-room ban and persists the change.
func (s *Store) BanFromRoom(roomID string, userID int64) error {
	s.mu.Lock()
	set, ok := s.roomBans[roomID]
	if !ok {
		set = make(map[int64]struct{})
		s.roomBans[roomID] = set
	}
	set[userID] = struct{}{}
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// UnbanFromRoom removes a per-room ban and persists the change.
func (s *Store) UnbanFromRoom(roomID string, userID int64) error {
	s.mu.Lock()
	if set, ok := s.roomBans[roomID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(s.roomBans, roomID)
		}
	}
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// saveLocked writes the full document to disk. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	doc := document{RoomBans: make(map[string][]int64, len(s.roomBans))}
	for id := range s.userBans {
		doc.UserBans = append(doc.UserBans, id)
	}
	for room, set := range s.roomBans {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		doc.RoomBans[room] = ids
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("admindata: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("admindata: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("admindata: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("admindata: rename: %w", err)
	}
	return nil
}
