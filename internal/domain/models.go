package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty controls how challenging generated questions should be.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// ParseDifficulty normalizes raw user input, falling back to medium for
// anything unrecognized.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyMedium:
		return DifficultyMedium
	case DifficultyHard:
		return DifficultyHard
	case DifficultyExpert:
		return DifficultyExpert
	default:
		return DifficultyMedium
	}
}

// Valid reports whether d is one of the four known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Mode selects the answer-resolution policy for a session. In multi mode the
// first correct answer closes a question; in solo mode the creator paces the
// session and other participants only play for points.
type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeMulti Mode = "multi"
)

// ParseMode normalizes raw user input, falling back to multi.
func ParseMode(raw string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(raw))) == ModeSolo {
		return ModeSolo
	}
	return ModeMulti
}

// Role is resolved once per operation from the session document instead of
// being re-derived from identifier comparisons inside business logic.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleCreator     Role = "creator"
	RoleAdmin       Role = "admin"
)

// SkippedAnswer is the sentinel recorded as a question's closing answer when
// the question was skipped rather than answered.
const SkippedAnswer = "__skipped__"

// Question is a multiple-choice question. The content fields are fixed at
// construction; Answered, AnsweredWith and AttemptedBy are resolution state
// mutated only through the session store.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Answered      bool     `json:"answered"`
	AnsweredWith  string   `json:"answeredWith,omitempty"`
	AttemptedBy   []string `json:"attemptedBy,omitempty"`
}

// NewQuestion validates and builds a question: non-empty text, at least two
// distinct non-empty options, and a correct answer present verbatim among
// the options.
func NewQuestion(text string, options []string, correctAnswer string) (Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Question{}, fmt.Errorf("question text must not be empty")
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for i, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return Question{}, fmt.Errorf("option %d must not be empty", i)
		}
		if _, dup := seen[opt]; dup {
			return Question{}, fmt.Errorf("duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
		cleaned = append(cleaned, opt)
	}
	if len(cleaned) < 2 {
		return Question{}, fmt.Errorf("question needs at least 2 options, got %d", len(cleaned))
	}

	correctAnswer = strings.TrimSpace(correctAnswer)
	if _, ok := seen[correctAnswer]; !ok {
		return Question{}, fmt.Errorf("correct answer %q not found in options", correctAnswer)
	}

	return Question{
		Text:          text,
		Options:       cleaned,
		CorrectAnswer: correctAnswer,
	}, nil
}

// HasAttempted reports whether userID already used their attempt on q.
func (q Question) HasAttempted(userID string) bool {
	for _, id := range q.AttemptedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Score is one participant's accumulated points within a session.
type Score struct {
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
}

// Session is the full state of one quiz, keyed by the conversation channel.
// At most one session may be active per session ID at any time.
type Session struct {
	SessionID         string           `json:"sessionId"`
	Topic             string           `json:"topic"`
	Difficulty        Difficulty       `json:"difficulty"`
	Mode              Mode             `json:"mode"`
	CreatorID         string           `json:"creatorId"`
	CreatorName       string           `json:"creatorName"`
	Questions         []Question       `json:"questions"`
	CurrentQuestion   int              `json:"currentQuestionIndex"`
	Scores            map[string]Score `json:"scores"`
	Active            bool             `json:"active"`
	CreatedAt         time.Time        `json:"createdAt"`
	TrackedMessageIDs []string         `json:"trackedMessageIds,omitempty"`
}

// NewSession builds the initial document for a freshly created quiz.
func NewSession(sessionID, topic string, difficulty Difficulty, mode Mode, creatorID, creatorName string, questions []Question, now time.Time) (Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, fmt.Errorf("session id must not be empty")
	}
	if len(questions) == 0 {
		return Session{}, fmt.Errorf("session needs at least one question")
	}
	if !difficulty.Valid() {
		difficulty = DifficultyMedium
	}
	return Session{
		SessionID:   sessionID,
		Topic:       topic,
		Difficulty:  difficulty,
		Mode:        mode,
		CreatorID:   creatorID,
		CreatorName: creatorName,
		Questions:   questions,
		Scores:      make(map[string]Score),
		Active:      true,
		CreatedAt:   now,
	}, nil
}

// RoleOf resolves the role a user plays in this session.
func (s Session) RoleOf(userID string) Role {
	if userID == s.CreatorID {
		return RoleCreator
	}
	return RoleParticipant
}

// QuestionView is the outbound question payload: content only, never the
// answer key.
type QuestionView struct {
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
}

// View strips resolution state and the answer key from the question at idx.
func (s Session) View(idx int) QuestionView {
	q := s.Questions[idx]
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return QuestionView{
		Text:           q.Text,
		Options:        options,
		QuestionIndex:  idx,
		TotalQuestions: len(s.Questions),
	}
}

// SessionScore is a snapshot-friendly view of one participant's score.
type SessionScore struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
}

// LeaderboardEntry is one row of the persistent cross-session leaderboard.
// Rows are created on first win or participation and only ever grow.
type LeaderboardEntry struct {
	UserID               string     `json:"userId"`
	DisplayName          string     `json:"displayName"`
	Wins                 int        `json:"wins"`
	TotalPoints          int        `json:"totalPoints"`
	SessionsParticipated int        `json:"sessionsParticipated"`
	LastWinAt            *time.Time `json:"lastWinAt,omitempty"`
}

// Leaderboard is the outbound scoreboard payload. Entries carries live
// in-session scores; AllTime carries persistent rows when Persistent is set.
type Leaderboard struct {
	SessionID  string             `json:"sessionId,omitempty"`
	Entries    []SessionScore     `json:"entries"`
	AllTime    []LeaderboardEntry `json:"allTime,omitempty"`
	Final      bool               `json:"isFinal"`
	Persistent bool               `json:"isPersistent"`
}

// SessionStatus summarizes a session for status queries.
type SessionStatus struct {
	Active            bool       `json:"active"`
	Topic             string     `json:"topic,omitempty"`
	Difficulty        Difficulty `json:"difficulty,omitempty"`
	Mode              Mode       `json:"mode,omitempty"`
	TotalQuestions    int        `json:"totalQuestions,omitempty"`
	AnsweredQuestions int        `json:"answeredQuestions,omitempty"`
	CurrentQuestion   int        `json:"currentQuestionIndex"`
	Participants      int        `json:"participants,omitempty"`
	CreatedAt         time.Time  `json:"createdAt,omitempty"`
}
