// Package redis stores session and leaderboard documents as JSON values in
// Redis keys, with a TTL so abandoned sessions age out.
//
// Notes:
//   - Read-modify-write atomicity comes from an in-process mutex, not from
//     Redis transactions, so this store is correct for a single engine
//     instance only.
//   - For true distribution you'd move the critical sections into Lua
//     scripts or WATCH/MULTI transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"trivia-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore implements app.SessionStore on Redis string keys.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) read(ctx context.Context, sessionID string) (domain.Session, bool) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("reading session %s from redis, treating as absent: %v", sessionID, err)
		}
		return domain.Session{}, false
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		log.Printf("session %s document is corrupt, treating as absent: %v", sessionID, err)
		return domain.Session{}, false
	}
	if session.Scores == nil {
		session.Scores = make(map[string]domain.Score)
	}
	return session, true
}

func (s *SessionStore) write(ctx context.Context, sessionID string, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return &domain.StorageError{Op: "marshal session", Err: err}
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return &domain.StorageError{Op: "write session", Err: err}
	}
	return nil
}

func (s *SessionStore) SaveSession(ctx context.Context, sessionID string, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.SessionID = sessionID
	return s.write(ctx, sessionID, session)
}

func (s *SessionStore) LoadSession(ctx context.Context, sessionID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx, sessionID)
}

func (s *SessionStore) MarkQuestionAnswered(ctx context.Context, sessionID string, questionIndex int, answer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(ctx, sessionID)
	if !ok || questionIndex < 0 || questionIndex >= len(session.Questions) {
		return false, nil
	}
	if session.Questions[questionIndex].Answered {
		return false, nil
	}

	session.Questions[questionIndex].Answered = true
	session.Questions[questionIndex].AnsweredWith = answer
	if err := s.write(ctx, sessionID, session); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) RecordAttempt(ctx context.Context, sessionID string, questionIndex int, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(ctx, sessionID)
	if !ok || questionIndex < 0 || questionIndex >= len(session.Questions) {
		return false, nil
	}
	if session.Questions[questionIndex].HasAttempted(userID) {
		return true, nil
	}

	session.Questions[questionIndex].AttemptedBy = append(session.Questions[questionIndex].AttemptedBy, userID)
	if err := s.write(ctx, sessionID, session); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SessionStore) AddPoints(ctx context.Context, sessionID, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(ctx, sessionID)
	if !ok {
		log.Printf("no session %s when updating scores", sessionID)
		return nil
	}

	score := session.Scores[userID]
	score.Points += points
	score.DisplayName = displayName
	session.Scores[userID] = score

	return s.write(ctx, sessionID, session)
}

func (s *SessionStore) AdvanceQuestion(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(ctx, sessionID)
	if !ok {
		return false, nil
	}

	if session.CurrentQuestion+1 >= len(session.Questions) {
		session.Active = false
		if err := s.write(ctx, sessionID, session); err != nil {
			return false, err
		}
		return false, nil
	}

	session.CurrentQuestion++
	if err := s.write(ctx, sessionID, session); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) TrackMessage(ctx context.Context, sessionID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(ctx, sessionID)
	if !ok {
		return nil
	}
	session.TrackedMessageIDs = append(session.TrackedMessageIDs, handle)
	return s.write(ctx, sessionID, session)
}

func (s *SessionStore) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return &domain.StorageError{Op: "remove session", Err: err}
	}
	return nil
}
