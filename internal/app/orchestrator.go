package app

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"trivia-engine/internal/domain"
)

// SessionStore abstracts durable, serialized access to one session's
// document. Implementations guarantee that each method is a single atomic
// read-modify-write; MarkQuestionAnswered is the primitive that decides
// races between concurrent submissions.
type SessionStore interface {
	SaveSession(ctx context.Context, sessionID string, s domain.Session) error
	LoadSession(ctx context.Context, sessionID string) (domain.Session, bool)
	MarkQuestionAnswered(ctx context.Context, sessionID string, questionIndex int, answer string) (bool, error)
	RecordAttempt(ctx context.Context, sessionID string, questionIndex int, userID string) (bool, error)
	AddPoints(ctx context.Context, sessionID, userID, displayName string, points int) error
	AdvanceQuestion(ctx context.Context, sessionID string) (bool, error)
	TrackMessage(ctx context.Context, sessionID, handle string) error
	ClearSession(ctx context.Context, sessionID string) error
}

// LeaderboardStore persists the cross-session winners leaderboard.
type LeaderboardStore interface {
	RecordWin(ctx context.Context, userID, displayName string, points int) error
	RecordParticipation(ctx context.Context, userID, displayName string, points int) error
	TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// QuestionSource produces validated question batches for a topic.
type QuestionSource interface {
	Generate(ctx context.Context, topic string, count int, difficulty domain.Difficulty) ([]domain.Question, error)
	TopUp(ctx context.Context, topic string, missing int) ([]domain.Question, error)
}

const (
	maxTopicLen         = 100
	defaultBoardEntries = 10
)

// Orchestrator is the only component that changes a session's phase. It
// routes answer submissions through the resolution policy and owns the
// leaderboard bookkeeping at session end.
type Orchestrator struct {
	store  SessionStore
	board  LeaderboardStore
	source QuestionSource
	now    func() time.Time
}

func NewOrchestrator(store SessionStore, board LeaderboardStore, source QuestionSource) *Orchestrator {
	return &Orchestrator{
		store:  store,
		board:  board,
		source: source,
		now:    time.Now,
	}
}

type CreateRequest struct {
	SessionID   string
	Topic       string
	Count       int
	Difficulty  string
	Mode        string
	CreatorID   string
	CreatorName string
}

type CreateResult struct {
	Topic          string              `json:"topic"`
	Difficulty     domain.Difficulty   `json:"difficulty"`
	Mode           domain.Mode         `json:"mode"`
	TotalQuestions int                 `json:"totalQuestions"`
	First          domain.QuestionView `json:"first"`
}

// Create terminates any session already active on the channel (never counting
// it toward the leaderboard), generates a fresh question batch, and persists
// the new session. Generation failures never leave a session behind.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if existing, ok := o.store.LoadSession(ctx, req.SessionID); ok && existing.Active {
		if _, err := o.finish(ctx, req.SessionID, false); err != nil {
			log.Printf("stopping previous session %s: %v", req.SessionID, err)
		}
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return CreateResult{}, domain.NewValidationError("topic must not be empty")
	}
	if len(topic) > maxTopicLen {
		return CreateResult{}, domain.NewValidationError("topic is too long, keep it under %d characters", maxTopicLen)
	}
	count := req.Count
	if count < 1 {
		count = 1
	} else if count > 20 {
		count = 20
	}
	difficulty := domain.ParseDifficulty(req.Difficulty)
	mode := domain.ParseMode(req.Mode)

	questions, err := o.source.Generate(ctx, topic, count, difficulty)
	if err != nil {
		return CreateResult{}, err
	}
	if len(questions) < count {
		extra, err := o.source.TopUp(ctx, topic, count-len(questions))
		if err != nil {
			log.Printf("top-up for session %s failed, continuing with %d questions: %v", req.SessionID, len(questions), err)
		} else {
			questions = append(questions, extra...)
			if len(questions) > count {
				questions = questions[:count]
			}
		}
	}

	session, err := domain.NewSession(req.SessionID, topic, difficulty, mode, req.CreatorID, req.CreatorName, questions, o.now())
	if err != nil {
		return CreateResult{}, domain.NewValidationError("%v", err)
	}

	if err := o.store.SaveSession(ctx, req.SessionID, session); err != nil {
		// A failed initial write must not leave a partial session visible.
		if clearErr := o.store.ClearSession(ctx, req.SessionID); clearErr != nil {
			log.Printf("clearing session %s after failed create: %v", req.SessionID, clearErr)
		}
		return CreateResult{}, err
	}

	return CreateResult{
		Topic:          topic,
		Difficulty:     difficulty,
		Mode:           mode,
		TotalQuestions: len(session.Questions),
		First:          session.View(0),
	}, nil
}

type AnswerRequest struct {
	SessionID     string
	UserID        string
	DisplayName   string
	QuestionIndex int
	Answer        string
}

type AnswerResult struct {
	Correct       bool                 `json:"correct"`
	CorrectAnswer string               `json:"correctAnswer,omitempty"`
	PointsAwarded int                  `json:"pointsAwarded"`
	Advanced      bool                 `json:"advanced"`
	Complete      bool                 `json:"complete"`
	Next          *domain.QuestionView `json:"next,omitempty"`
	Final         *domain.Leaderboard  `json:"final,omitempty"`
}

// SubmitAnswer applies the resolution policy. In multi mode a question stays
// open until someone answers correctly and each user gets a single attempt;
// in solo mode only the creator's submissions advance the session, regardless
// of correctness.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, req AnswerRequest) (AnswerResult, error) {
	session, ok := o.store.LoadSession(ctx, req.SessionID)
	if !ok || !session.Active {
		return AnswerResult{}, domain.ErrNoActiveSession
	}
	if req.QuestionIndex < 0 || req.QuestionIndex >= len(session.Questions) {
		return AnswerResult{}, domain.ErrInvalidQuestionIndex
	}

	if session.Mode == domain.ModeMulti {
		already, err := o.store.RecordAttempt(ctx, req.SessionID, req.QuestionIndex, req.UserID)
		if err != nil {
			return AnswerResult{}, err
		}
		if already {
			return AnswerResult{}, domain.ErrAlreadyAttempted
		}
	}

	question := session.Questions[req.QuestionIndex]
	correct := strings.TrimSpace(req.Answer) == question.CorrectAnswer

	points := 0
	if correct {
		points = 1
	}
	// A zero-point write still creates the score entry, so every answering
	// participant shows up on the final leaderboard.
	if err := o.store.AddPoints(ctx, req.SessionID, req.UserID, req.DisplayName, points); err != nil {
		return AnswerResult{}, err
	}

	// The answer key is withheld until the question closes: in solo mode a
	// wrong answer may be retried, and in multi mode the question stays open
	// to other participants.
	result := AnswerResult{
		Correct:       correct,
		PointsAwarded: points,
	}

	advance := false
	switch session.Mode {
	case domain.ModeMulti:
		advance = correct
	case domain.ModeSolo:
		advance = session.RoleOf(req.UserID) == domain.RoleCreator
	}
	// Progression only ever follows the current question; points for stale
	// submissions stand on their own.
	if !advance || req.QuestionIndex != session.CurrentQuestion {
		return result, nil
	}

	closed, err := o.store.MarkQuestionAnswered(ctx, req.SessionID, req.QuestionIndex, strings.TrimSpace(req.Answer))
	if err != nil {
		return AnswerResult{}, err
	}
	if !closed {
		// Lost the race: another submission already closed this question.
		// The point awarded above stands; progression belongs to the winner.
		return result, nil
	}

	result.CorrectAnswer = question.CorrectAnswer
	return o.advance(ctx, req.SessionID, result)
}

// advance moves the session past a just-closed question, completing it when
// no questions remain.
func (o *Orchestrator) advance(ctx context.Context, sessionID string, result AnswerResult) (AnswerResult, error) {
	result.Advanced = true

	more, err := o.store.AdvanceQuestion(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if !more {
		final, err := o.finish(ctx, sessionID, true)
		if err != nil {
			return AnswerResult{}, err
		}
		result.Complete = true
		result.Final = &final
		return result, nil
	}

	session, ok := o.store.LoadSession(ctx, sessionID)
	if !ok {
		return AnswerResult{}, domain.ErrNoActiveSession
	}
	next := session.View(session.CurrentQuestion)
	result.Next = &next
	return result, nil
}

// Skip closes the current question with the skip sentinel and advances. In
// solo mode only the creator may skip; in multi mode any participant may.
func (o *Orchestrator) Skip(ctx context.Context, sessionID, userID string) (AnswerResult, error) {
	session, ok := o.store.LoadSession(ctx, sessionID)
	if !ok || !session.Active {
		return AnswerResult{}, domain.ErrNoActiveSession
	}
	if session.Mode == domain.ModeSolo && session.RoleOf(userID) != domain.RoleCreator {
		return AnswerResult{}, domain.ErrNotCreator
	}

	idx := session.CurrentQuestion
	var result AnswerResult

	closed, err := o.store.MarkQuestionAnswered(ctx, sessionID, idx, domain.SkippedAnswer)
	if err != nil {
		return AnswerResult{}, err
	}
	if !closed {
		return result, nil
	}
	result.CorrectAnswer = session.Questions[idx].CorrectAnswer
	return o.advance(ctx, sessionID, result)
}

// Stop ends the session, returning the final leaderboard. A win is committed
// to the persistent leaderboard only when recordWin is set, at least two
// distinct users attempted a question, and the top scorer has points.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string, recordWin bool) (domain.Leaderboard, error) {
	session, ok := o.store.LoadSession(ctx, sessionID)
	if !ok || !session.Active {
		return domain.Leaderboard{}, domain.ErrNoActiveSession
	}
	return o.finish(ctx, sessionID, recordWin)
}

// finish computes the final leaderboard, optionally commits leaderboard rows,
// and always clears the session document.
func (o *Orchestrator) finish(ctx context.Context, sessionID string, recordWin bool) (domain.Leaderboard, error) {
	session, ok := o.store.LoadSession(ctx, sessionID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrNoActiveSession
	}

	entries := sessionScores(session)
	board := domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
		Final:     true,
	}

	if recordWin && shouldRecordWin(session, entries) {
		winner := entries[0]
		if err := o.board.RecordWin(ctx, winner.UserID, winner.DisplayName, winner.Points); err != nil {
			log.Printf("recording win for %s: %v", winner.UserID, err)
		}
		for _, entry := range entries[1:] {
			if err := o.board.RecordParticipation(ctx, entry.UserID, entry.DisplayName, entry.Points); err != nil {
				log.Printf("recording participation for %s: %v", entry.UserID, err)
			}
		}
	}

	if err := o.store.ClearSession(ctx, sessionID); err != nil {
		return domain.Leaderboard{}, err
	}
	return board, nil
}

// shouldRecordWin gates leaderboard writes: a session needs at least two
// distinct attempting users and a top scorer with points before it counts.
func shouldRecordWin(session domain.Session, entries []domain.SessionScore) bool {
	if len(entries) == 0 || entries[0].Points <= 0 {
		return false
	}
	distinct := make(map[string]struct{})
	for userID := range session.Scores {
		distinct[userID] = struct{}{}
	}
	for _, q := range session.Questions {
		for _, userID := range q.AttemptedBy {
			distinct[userID] = struct{}{}
		}
	}
	return len(distinct) >= 2
}

// sessionScores flattens the score map into a stable descending order:
// points first, display name as the deterministic tie-break. Ties are not
// split; the first entry wins.
func sessionScores(session domain.Session) []domain.SessionScore {
	entries := make([]domain.SessionScore, 0, len(session.Scores))
	for userID, score := range session.Scores {
		entries = append(entries, domain.SessionScore{
			UserID:      userID,
			DisplayName: score.DisplayName,
			Points:      score.Points,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return entries
}

// GetLeaderboard returns the live in-session scoreboard while a session is
// active, and the persistent cross-session leaderboard otherwise.
func (o *Orchestrator) GetLeaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	if session, ok := o.store.LoadSession(ctx, sessionID); ok && session.Active {
		return domain.Leaderboard{
			SessionID: sessionID,
			Entries:   sessionScores(session),
		}, nil
	}

	rows, err := o.board.TopEntries(ctx, defaultBoardEntries)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{
		Entries:    []domain.SessionScore{},
		AllTime:    rows,
		Persistent: true,
	}, nil
}

// Status reports a summary of the session on the channel, or Active=false.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) domain.SessionStatus {
	session, ok := o.store.LoadSession(ctx, sessionID)
	if !ok || !session.Active {
		return domain.SessionStatus{}
	}
	answered := 0
	for _, q := range session.Questions {
		if q.Answered {
			answered++
		}
	}
	return domain.SessionStatus{
		Active:            true,
		Topic:             session.Topic,
		Difficulty:        session.Difficulty,
		Mode:              session.Mode,
		TotalQuestions:    len(session.Questions),
		AnsweredQuestions: answered,
		CurrentQuestion:   session.CurrentQuestion,
		Participants:      len(session.Scores),
		CreatedAt:         session.CreatedAt,
	}
}

// TrackMessage appends an opaque render handle to the session document so the
// rendering layer can clean up its messages later.
func (o *Orchestrator) TrackMessage(ctx context.Context, sessionID, handle string) error {
	return o.store.TrackMessage(ctx, sessionID, handle)
}
