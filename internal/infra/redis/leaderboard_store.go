package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"trivia-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "quiz:leaderboard"

// LeaderboardStore implements app.LeaderboardStore on a single Redis key
// holding the JSON map of all-time rows. The leaderboard never expires.
type LeaderboardStore struct {
	client *redis.Client
	clock  func() time.Time
	mu     sync.Mutex
}

func NewLeaderboardStore(client *redis.Client) *LeaderboardStore {
	return &LeaderboardStore{client: client, clock: time.Now}
}

func (s *LeaderboardStore) read(ctx context.Context) map[string]domain.LeaderboardEntry {
	raw, err := s.client.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("reading leaderboard from redis, starting empty: %v", err)
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

func (s *LeaderboardStore) write(ctx context.Context, entries map[string]domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return &domain.StorageError{Op: "marshal leaderboard", Err: err}
	}
	if err := s.client.Set(ctx, leaderboardKey, data, 0).Err(); err != nil {
		return &domain.StorageError{Op: "write leaderboard", Err: err}
	}
	return nil
}

func (s *LeaderboardStore) RecordWin(ctx context.Context, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	entry := entries[userID]
	entry.UserID = userID
	entry.DisplayName = displayName
	entry.Wins++
	entry.TotalPoints += points
	entry.SessionsParticipated++
	now := s.clock()
	entry.LastWinAt = &now
	entries[userID] = entry

	return s.write(ctx, entries)
}

func (s *LeaderboardStore) RecordParticipation(ctx context.Context, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	entry := entries[userID]
	entry.UserID = userID
	entry.DisplayName = displayName
	entry.TotalPoints += points
	entry.SessionsParticipated++
	entries[userID] = entry

	return s.write(ctx, entries)
}

func (s *LeaderboardStore) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
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
