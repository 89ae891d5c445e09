package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"trivia-engine/internal/domain"
)

// LeaderboardStore implements app.LeaderboardStore on top of a single JSON
// document mapping user IDs to their all-time rows.
type LeaderboardStore struct {
	path  string
	clock func() time.Time
	mu    sync.Mutex
}

func NewLeaderboardStore(path string) (*LeaderboardStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create leaderboard dir: %w", err)
	}
	return &LeaderboardStore{path: path, clock: time.Now}, nil
}

// NewLeaderboardStoreWithClock is test-only for deterministic win timestamps.
func NewLeaderboardStoreWithClock(path string, clock func() time.Time) (*LeaderboardStore, error) {
	s, err := NewLeaderboardStore(path)
	if err != nil {
		return nil, err
	}
	s.clock = clock
	return s, nil
}

func (s *LeaderboardStore) read() map[string]domain.LeaderboardEntry {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("reading leaderboard, starting empty: %v", err)
		}
		return make(map[string]domain.LeaderboardEntry)
	}

	entries := make(map[string]domain.LeaderboardEntry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("leaderboard document is corrupt, starting empty: %v", err)
		return make(map[string]domain.LeaderboardEntry)
	}
	return entries
}

func (s *LeaderboardStore) write(entries map[string]domain.LeaderboardEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "marshal leaderboard", Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &domain.StorageError{Op: "write leaderboard", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &domain.StorageError{Op: "replace leaderboard", Err: err}
	}
	return nil
}

// RecordWin commits a session win: one more win, the session's points, and a
// fresh win timestamp. The row is created on first touch.
func (s *LeaderboardStore) RecordWin(_ context.Context, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read()
	entry := entries[userID]
	entry.UserID = userID
	entry.DisplayName = displayName
	entry.Wins++
	entry.TotalPoints += points
	entry.SessionsParticipated++
	now := s.clock()
	entry.LastWinAt = &now
	entries[userID] = entry

	return s.write(entries)
}

// RecordParticipation credits a non-winning scorer with their session points.
func (s *LeaderboardStore) RecordParticipation(_ context.Context, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read()
	entry := entries[userID]
	entry.UserID = userID
	entry.DisplayName = displayName
	entry.TotalPoints += points
	entry.SessionsParticipated++
	entries[userID] = entry

	return s.write(entries)
}

// TopEntries returns up to limit rows ordered by wins, tie-broken by total
// points and then display name.
func (s *LeaderboardStore) TopEntries(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read()
	rows := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, entry)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if rows[i].TotalPoints != rows[j].TotalPoints {
			return rows[i].TotalPoints > rows[j].TotalPoints
		}
		return rows[i].DisplayName < rows[j].DisplayName
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
