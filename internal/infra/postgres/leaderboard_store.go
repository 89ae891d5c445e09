package postgres

import (
	"context"
	"fmt"

	"trivia-engine/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LeaderboardStore implements app.LeaderboardStore on the quiz_leaderboard
// table. Upserts keep the rows monotonic; the schema is owned by the bun
// migrations applied with the migrate command.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) RecordWin(ctx context.Context, userID, displayName string, points int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_leaderboard (user_id, display_name, wins, total_points, sessions_participated, last_win_at)
		VALUES ($1, $2, 1, $3, 1, now())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			wins = quiz_leaderboard.wins + 1,
			total_points = quiz_leaderboard.total_points + EXCLUDED.total_points,
			sessions_participated = quiz_leaderboard.sessions_participated + 1,
			last_win_at = now()`,
		userID, displayName, points)
	if err != nil {
		return &domain.StorageError{Op: "record win", Err: fmt.Errorf("upsert leaderboard: %w", err)}
	}
	return nil
}

func (s *LeaderboardStore) RecordParticipation(ctx context.Context, userID, displayName string, points int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_leaderboard (user_id, display_name, wins, total_points, sessions_participated)
		VALUES ($1, $2, 0, $3, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			total_points = quiz_leaderboard.total_points + EXCLUDED.total_points,
			sessions_participated = quiz_leaderboard.sessions_participated + 1`,
		userID, displayName, points)
	if err != nil {
		return &domain.StorageError{Op: "record participation", Err: fmt.Errorf("upsert leaderboard: %w", err)}
	}
	return nil
}

func (s *LeaderboardStore) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, display_name, wins, total_points, sessions_participated, last_win_at
		FROM quiz_leaderboard
		ORDER BY wins DESC, total_points DESC, display_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Wins, &entry.TotalPoints, &entry.SessionsParticipated, &entry.LastWinAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}
	return entries, nil
}
