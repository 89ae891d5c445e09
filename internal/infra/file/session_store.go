// Package file persists session and leaderboard documents as JSON files,
// one per session plus one shared leaderboard file. Writes go through a
// temp file and an atomic rename so a crash mid-write never leaves a corrupt
// document visible. Each store serializes all access behind a single mutex;
// that is fine at the scale of a few concurrent chats and is the documented
// limit of this implementation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"trivia-engine/internal/domain"
)

// SessionStore implements app.SessionStore on top of per-session JSON files.
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) path(sessionID string) string {
	return filepath.Join(s.dir, url.PathEscape(sessionID)+".json")
}

// read loads and forward-migrates one document. All read failures, including
// corrupt JSON, degrade to "no session" with a logged warning; a missing or
// unreadable session is operationally equivalent to no session.
func (s *SessionStore) read(sessionID string) (domain.Session, bool) {
	raw, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("reading session %s, treating as absent: %v", sessionID, err)
		}
		return domain.Session{}, false
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		log.Printf("session %s document is corrupt, treating as absent: %v", sessionID, err)
		return domain.Session{}, false
	}
	migrateSession(&session, sessionID)
	return session, true
}

func (s *SessionStore) write(sessionID string, session domain.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "marshal session", Err: err}
	}

	path := s.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &domain.StorageError{Op: "write session", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &domain.StorageError{Op: "replace session", Err: err}
	}
	return nil
}

// migrateSession fills defaults for fields older documents may lack instead
// of rejecting them.
func migrateSession(session *domain.Session, sessionID string) {
	if session.SessionID == "" {
		session.SessionID = sessionID
	}
	if !session.Difficulty.Valid() {
		session.Difficulty = domain.DifficultyMedium
	}
	if session.Mode != domain.ModeSolo && session.Mode != domain.ModeMulti {
		session.Mode = domain.ModeMulti
	}
	if session.Scores == nil {
		session.Scores = make(map[string]domain.Score)
	}
	if session.CurrentQuestion < 0 {
		session.CurrentQuestion = 0
	}
	// An index past the question list means the document was left behind by
	// an interrupted advance; the session is over, not resumable.
	if session.CurrentQuestion >= len(session.Questions) {
		session.CurrentQuestion = 0
		session.Active = false
	}
}

// SaveSession replaces the stored document wholesale.
func (s *SessionStore) SaveSession(_ context.Context, sessionID string, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.SessionID = sessionID
	return s.write(sessionID, session)
}

func (s *SessionStore) LoadSession(_ context.Context, sessionID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(sessionID)
}

// MarkQuestionAnswered closes a question exactly once. It returns true only
// for the caller whose write transitions answered from false to true; every
// later caller gets false with nothing mutated. This is the serialization
// point that decides racing submissions.
func (s *SessionStore) MarkQuestionAnswered(_ context.Context, sessionID string, questionIndex int, answer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(sessionID)
	if !ok || questionIndex < 0 || questionIndex >= len(session.Questions) {
		return false, nil
	}
	if session.Questions[questionIndex].Answered {
		return false, nil
	}

	session.Questions[questionIndex].Answered = true
	session.Questions[questionIndex].AnsweredWith = answer
	if err := s.write(sessionID, session); err != nil {
		return false, err
	}
	return true, nil
}

// RecordAttempt idempotently marks that userID used their attempt on the
// question, reporting whether an attempt was already on record.
func (s *SessionStore) RecordAttempt(_ context.Context, sessionID string, questionIndex int, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(sessionID)
	if !ok || questionIndex < 0 || questionIndex >= len(session.Questions) {
		return false, nil
	}
	if session.Questions[questionIndex].HasAttempted(userID) {
		return true, nil
	}

	session.Questions[questionIndex].AttemptedBy = append(session.Questions[questionIndex].AttemptedBy, userID)
	if err := s.write(sessionID, session); err != nil {
		return false, err
	}
	return false, nil
}

// AddPoints adds points to the user's score, creating the entry if absent and
// refreshing the display name.
func (s *SessionStore) AddPoints(_ context.Context, sessionID, userID, displayName string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(sessionID)
	if !ok {
		log.Printf("no session %s when updating scores", sessionID)
		return nil
	}

	score := session.Scores[userID]
	score.Points += points
	score.DisplayName = displayName
	session.Scores[userID] = score

	return s.write(sessionID, session)
}

// AdvanceQuestion moves to the next question, or deactivates the session and
// returns false when none remain.
func (s *SessionStore) AdvanceQuestion(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(sessionID)
	if !ok {
		return false, nil
	}

	if session.CurrentQuestion+1 >= len(session.Questions) {
		session.Active = false
		if err := s.write(sessionID, session); err != nil {
			return false, err
		}
		return false, nil
	}

	session.CurrentQuestion++
	if err := s.write(sessionID, session); err != nil {
		return false, err
	}
	return true, nil
}

// TrackMessage appends an opaque render handle for later cleanup.
func (s *SessionStore) TrackMessage(_ context.Context, sessionID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.read(sessionID)
	if !ok {
		return nil
	}
	session.TrackedMessageIDs = append(session.TrackedMessageIDs, handle)
	return s.write(sessionID, session)
}

// ClearSession removes the document. Clearing an absent session is not an
// error.
func (s *SessionStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return &domain.StorageError{Op: "remove session", Err: err}
	}
	return nil
}
