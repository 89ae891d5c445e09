package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trivia-engine/internal/app"
	"trivia-engine/internal/domain"
	"trivia-engine/internal/infra/file"
)

type stubSource struct {
	questions []domain.Question
	err       error
	calls     int
}

func (s *stubSource) Generate(_ context.Context, _ string, count int, _ domain.Difficulty) ([]domain.Question, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if count > len(s.questions) {
		count = len(s.questions)
	}
	out := make([]domain.Question, count)
	copy(out, s.questions[:count])
	return out, nil
}

func (s *stubSource) TopUp(ctx context.Context, topic string, missing int) ([]domain.Question, error) {
	return s.Generate(ctx, topic, missing, domain.DifficultyMedium)
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	texts := []string{
		"What is 2 + 2?",
		"What is the capital of France?",
		"Which planet is known as the red planet?",
		"What is the chemical symbol for gold?",
		"How many continents are there?",
	}
	for i := 0; i < n; i++ {
		q, err := domain.NewQuestion(texts[i%len(texts)], []string{"A", "B", "C", "D"}, "B")
		if err != nil {
			panic(err)
		}
		questions = append(questions, q)
	}
	return questions
}

func newTestEngine(t *testing.T, source app.QuestionSource) (*app.Orchestrator, *file.LeaderboardStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := file.NewSessionStore(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	board, err := file.NewLeaderboardStore(filepath.Join(dir, "leaderboard.json"))
	if err != nil {
		t.Fatalf("leaderboard store: %v", err)
	}
	return app.NewOrchestrator(store, board, source), board
}

func createSession(t *testing.T, engine *app.Orchestrator, mode string, count int) app.CreateResult {
	t.Helper()
	result, err := engine.Create(context.Background(), app.CreateRequest{
		SessionID:   "chat-1",
		Topic:       "science",
		Count:       count,
		Mode:        mode,
		CreatorID:   "u1",
		CreatorName: "Alice",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return result
}

func TestCreateReturnsFirstQuestionWithoutAnswer(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(3)})

	result := createSession(t, engine, "multi", 3)
	if result.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", result.TotalQuestions)
	}
	if result.First.QuestionIndex != 0 || len(result.First.Options) != 4 {
		t.Fatalf("unexpected first question view: %+v", result.First)
	}
	if result.Mode != domain.ModeMulti || result.Difficulty != domain.DifficultyMedium {
		t.Fatalf("expected multi/medium defaults, got %s/%s", result.Mode, result.Difficulty)
	}
}

func TestCreateRejectsBadTopics(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()

	var verr *domain.ValidationError
	if _, err := engine.Create(ctx, app.CreateRequest{SessionID: "chat-1", Topic: "   "}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty topic, got %v", err)
	}

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := engine.Create(ctx, app.CreateRequest{SessionID: "chat-1", Topic: string(long)}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for long topic, got %v", err)
	}
}

func TestCreatePropagatesGenerationFailure(t *testing.T) {
	source := &stubSource{err: &domain.GenerationError{Kind: domain.GenerationQuota, Cause: "quota"}}
	engine, _ := newTestEngine(t, source)

	_, err := engine.Create(context.Background(), app.CreateRequest{
		SessionID: "chat-1", Topic: "science", Count: 3, CreatorID: "u1", CreatorName: "Alice",
	})
	var gerr *domain.GenerationError
	if !errors.As(err, &gerr) || gerr.Kind != domain.GenerationQuota {
		t.Fatalf("expected quota generation error, got %v", err)
	}
	if status := engine.Status(context.Background(), "chat-1"); status.Active {
		t.Fatalf("expected no session after failed create")
	}
}

func TestCreateReplacesActiveSession(t *testing.T) {
	engine, board := newTestEngine(t, &stubSource{questions: sampleQuestions(3)})
	ctx := context.Background()

	createSession(t, engine, "multi", 3)
	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	result := createSession(t, engine, "multi", 2)
	if result.TotalQuestions != 2 {
		t.Fatalf("expected replacement session with 2 questions, got %d", result.TotalQuestions)
	}

	// The displaced session must never reach the persistent leaderboard.
	rows, err := board.TopEntries(ctx, 10)
	if err != nil {
		t.Fatalf("top entries: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty persistent leaderboard, got %+v", rows)
	}
}

func TestMultiModeFirstCorrectAdvances(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.PointsAwarded != 1 || !result.Advanced {
		t.Fatalf("expected correct answer to advance, got %+v", result)
	}
	if result.CorrectAnswer != "B" {
		t.Fatalf("expected answer revealed on close, got %q", result.CorrectAnswer)
	}
	if result.Next == nil || result.Next.QuestionIndex != 1 {
		t.Fatalf("expected next question 1, got %+v", result.Next)
	}
}

func TestMultiModeWrongAnswerKeepsQuestionOpen(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "A",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Correct || result.Advanced || result.PointsAwarded != 0 {
		t.Fatalf("expected open question after wrong answer, got %+v", result)
	}
	if result.CorrectAnswer != "" {
		t.Fatalf("expected answer key withheld while question is open, got %q", result.CorrectAnswer)
	}

	status := engine.Status(ctx, "chat-1")
	if status.CurrentQuestion != 0 {
		t.Fatalf("expected question 0 still current, got %d", status.CurrentQuestion)
	}
}

func TestMultiModeSingleAttemptPerUser(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	req := app.AnswerRequest{SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "A"}
	if _, err := engine.SubmitAnswer(ctx, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	req.Answer = "B"
	if _, err := engine.SubmitAnswer(ctx, req); !errors.Is(err, domain.ErrAlreadyAttempted) {
		t.Fatalf("expected ErrAlreadyAttempted, got %v", err)
	}
}

func TestSoloModeCreatorPacing(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "solo", 2)

	// A participant's correct answer scores but never advances.
	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	})
	if err != nil {
		t.Fatalf("participant submit: %v", err)
	}
	if !result.Correct || result.Advanced {
		t.Fatalf("expected scored but unadvanced result, got %+v", result)
	}

	// The creator's wrong answer still advances.
	result, err = engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "A",
	})
	if err != nil {
		t.Fatalf("creator submit: %v", err)
	}
	if result.Correct || !result.Advanced || result.Next == nil {
		t.Fatalf("expected creator to advance, got %+v", result)
	}
}

func TestOpenQuestionWithholdsAnswerKey(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "solo", 2)

	// A wrong participant answer must not hand back the key: solo mode allows
	// resubmission, so a revealed key would be a free point.
	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "A",
	})
	if err != nil {
		t.Fatalf("wrong submit: %v", err)
	}
	if result.CorrectAnswer != "" {
		t.Fatalf("expected answer key withheld, got %q", result.CorrectAnswer)
	}

	// The key is revealed once the creator closes the question.
	result, err = engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "A",
	})
	if err != nil {
		t.Fatalf("creator submit: %v", err)
	}
	if !result.Advanced || result.CorrectAnswer != "B" {
		t.Fatalf("expected closing result to reveal answer, got %+v", result)
	}
}

func TestSoloModeAllowsRepeatAttempts(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "solo", 2)

	req := app.AnswerRequest{SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B"}
	if _, err := engine.SubmitAnswer(ctx, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	result, err := engine.SubmitAnswer(ctx, req)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.PointsAwarded != 1 {
		t.Fatalf("expected repeat attempt to score in solo mode, got %+v", result)
	}
}

func TestSkipRequiresCreatorInSoloMode(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "solo", 2)

	if _, err := engine.Skip(ctx, "chat-1", "u2"); !errors.Is(err, domain.ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}

	result, err := engine.Skip(ctx, "chat-1", "u1")
	if err != nil {
		t.Fatalf("creator skip: %v", err)
	}
	if !result.Advanced || result.Next == nil || result.Next.QuestionIndex != 1 {
		t.Fatalf("expected skip to advance, got %+v", result)
	}
	if result.CorrectAnswer != "B" {
		t.Fatalf("expected revealed answer on skip, got %q", result.CorrectAnswer)
	}
}

func TestSkipLastQuestionCompletesSession(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()
	createSession(t, engine, "multi", 1)

	result, err := engine.Skip(ctx, "chat-1", "u2")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !result.Complete || result.Final == nil || !result.Final.Final {
		t.Fatalf("expected completed session with final board, got %+v", result)
	}
	if _, err := engine.Skip(ctx, "chat-1", "u2"); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession after completion, got %v", err)
	}
}

func TestStaleDocumentWithExhaustedQuestionsReportsNoSession(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewSessionStore(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	board, err := file.NewLeaderboardStore(filepath.Join(dir, "leaderboard.json"))
	if err != nil {
		t.Fatalf("leaderboard store: %v", err)
	}
	engine := app.NewOrchestrator(store, board, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()

	// A document whose index ran past its question list, as an interrupted
	// advance leaves behind.
	session, err := domain.NewSession("chat-1", "science", domain.DifficultyMedium, domain.ModeMulti, "u1", "Alice", sampleQuestions(1), time.Now())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	session.CurrentQuestion = 3
	if err := store.SaveSession(ctx, "chat-1", session); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := engine.Skip(ctx, "chat-1", "u1"); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession for exhausted document, got %v", err)
	}
	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "B",
	}); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession for exhausted document, got %v", err)
	}
}

func TestAnswerValidation(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()

	req := app.AnswerRequest{SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B"}
	if _, err := engine.SubmitAnswer(ctx, req); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	createSession(t, engine, "multi", 2)
	req.QuestionIndex = 5
	if _, err := engine.SubmitAnswer(ctx, req); !errors.Is(err, domain.ErrInvalidQuestionIndex) {
		t.Fatalf("expected ErrInvalidQuestionIndex, got %v", err)
	}
}

func TestStaleIndexScoresWithoutAdvancing(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(3)})
	ctx := context.Background()
	createSession(t, engine, "multi", 3)

	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("advance to question 1: %v", err)
	}

	// A correct answer for the already-closed question 0 scores but cannot
	// move the session.
	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u3", DisplayName: "Carol", QuestionIndex: 0, Answer: "B",
	})
	if err != nil {
		t.Fatalf("stale submit: %v", err)
	}
	if !result.Correct || result.Advanced {
		t.Fatalf("expected stale answer to score without advancing, got %+v", result)
	}
	if status := engine.Status(ctx, "chat-1"); status.CurrentQuestion != 1 {
		t.Fatalf("expected question 1 current, got %d", status.CurrentQuestion)
	}
}

func TestConcurrentCorrectAnswersAdvanceOnce(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(5)})
	ctx := context.Background()
	createSession(t, engine, "solo", 5)

	const racers = 8
	results := make([]app.AnswerResult, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
				SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "B",
			})
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	advanced := 0
	for _, result := range results {
		if result.Advanced {
			advanced++
		}
	}
	if advanced != 1 {
		t.Fatalf("expected exactly one submission to advance, got %d", advanced)
	}
	if status := engine.Status(ctx, "chat-1"); status.CurrentQuestion != 1 {
		t.Fatalf("expected question 1 current after race, got %d", status.CurrentQuestion)
	}
}

func TestFinalBoardIncludesZeroPointParticipants(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()
	createSession(t, engine, "multi", 1)

	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "A",
	}); err != nil {
		t.Fatalf("wrong answer: %v", err)
	}
	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	})
	if err != nil {
		t.Fatalf("correct answer: %v", err)
	}
	if !result.Complete || result.Final == nil {
		t.Fatalf("expected completed session, got %+v", result)
	}
	if len(result.Final.Entries) != 2 {
		t.Fatalf("expected both participants on final board, got %+v", result.Final.Entries)
	}
	if result.Final.Entries[0].UserID != "u2" || result.Final.Entries[0].Points != 1 {
		t.Fatalf("expected Bob leading with 1 point, got %+v", result.Final.Entries[0])
	}
	if result.Final.Entries[1].UserID != "u1" || result.Final.Entries[1].Points != 0 {
		t.Fatalf("expected Alice with 0 points, got %+v", result.Final.Entries[1])
	}
}

func TestSoloQuizCompletionScenario(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()
	createSession(t, engine, "solo", 1)

	result, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	})
	if err != nil {
		t.Fatalf("participant submit: %v", err)
	}
	if !result.Correct || result.PointsAwarded != 1 || result.Advanced {
		t.Fatalf("expected scored non-advancing result, got %+v", result)
	}

	result, err = engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "A",
	})
	if err != nil {
		t.Fatalf("creator submit: %v", err)
	}
	if result.Correct || !result.Complete || result.Final == nil {
		t.Fatalf("expected incorrect creator submission to complete the quiz, got %+v", result)
	}
	if result.Final.Entries[0].UserID != "u2" || result.Final.Entries[0].Points != 1 {
		t.Fatalf("expected Bob on top with 1 point, got %+v", result.Final.Entries[0])
	}
	if result.Final.Entries[1].UserID != "u1" || result.Final.Entries[1].Points != 0 {
		t.Fatalf("expected Alice with 0 points, got %+v", result.Final.Entries[1])
	}
}

func TestStopRecordsWinWhenGatePasses(t *testing.T) {
	engine, board := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "A",
	}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	final, err := engine.Stop(ctx, "chat-1", true)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !final.Final || len(final.Entries) != 2 {
		t.Fatalf("unexpected final board: %+v", final)
	}

	rows, err := board.TopEntries(ctx, 10)
	if err != nil {
		t.Fatalf("top entries: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 persistent rows, got %+v", rows)
	}
	if rows[0].UserID != "u2" || rows[0].Wins != 1 || rows[0].TotalPoints != 1 || rows[0].LastWinAt == nil {
		t.Fatalf("unexpected winner row: %+v", rows[0])
	}
	if rows[1].UserID != "u1" || rows[1].Wins != 0 || rows[1].SessionsParticipated != 1 {
		t.Fatalf("unexpected participation row: %+v", rows[1])
	}
}

func TestStopSkipsLeaderboardForSinglePlayer(t *testing.T) {
	engine, board := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u1", DisplayName: "Alice", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := engine.Stop(ctx, "chat-1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}

	rows, err := board.TopEntries(ctx, 10)
	if err != nil {
		t.Fatalf("top entries: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no persistent rows for single-player session, got %+v", rows)
	}
}

func TestStopSkipsLeaderboardWhenNobodyScored(t *testing.T) {
	engine, board := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	for _, user := range []struct{ id, name string }{{"u1", "Alice"}, {"u2", "Bob"}} {
		if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
			SessionID: "chat-1", UserID: user.id, DisplayName: user.name, QuestionIndex: 0, Answer: "A",
		}); err != nil {
			t.Fatalf("%s submit: %v", user.name, err)
		}
	}

	if _, err := engine.Stop(ctx, "chat-1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rows, err := board.TopEntries(ctx, 10)
	if err != nil {
		t.Fatalf("top entries: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no persistent rows when top score is zero, got %+v", rows)
	}
}

func TestGetLeaderboardLiveThenPersistent(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(2)})
	ctx := context.Background()
	createSession(t, engine, "multi", 2)

	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	live, err := engine.GetLeaderboard(ctx, "chat-1")
	if err != nil {
		t.Fatalf("live leaderboard: %v", err)
	}
	if live.Persistent || len(live.Entries) != 1 || live.Entries[0].Points != 1 {
		t.Fatalf("expected live board with one scorer, got %+v", live)
	}

	if _, err := engine.Stop(ctx, "chat-1", false); err != nil {
		t.Fatalf("stop: %v", err)
	}

	persistent, err := engine.GetLeaderboard(ctx, "chat-1")
	if err != nil {
		t.Fatalf("persistent leaderboard: %v", err)
	}
	if !persistent.Persistent || len(persistent.Entries) != 0 {
		t.Fatalf("expected persistent board after stop, got %+v", persistent)
	}
}

func TestStatusReportsProgress(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(3)})
	ctx := context.Background()

	if status := engine.Status(ctx, "chat-1"); status.Active {
		t.Fatalf("expected inactive status, got %+v", status)
	}

	createSession(t, engine, "multi", 3)
	if _, err := engine.SubmitAnswer(ctx, app.AnswerRequest{
		SessionID: "chat-1", UserID: "u2", DisplayName: "Bob", QuestionIndex: 0, Answer: "B",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := engine.Status(ctx, "chat-1")
	if !status.Active || status.TotalQuestions != 3 || status.AnsweredQuestions != 1 || status.CurrentQuestion != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Participants != 1 || status.Topic != "science" {
		t.Fatalf("unexpected status detail: %+v", status)
	}
	if time.Since(status.CreatedAt) > time.Minute {
		t.Fatalf("unexpected createdAt: %v", status.CreatedAt)
	}
}

func TestTrackMessage(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{questions: sampleQuestions(1)})
	ctx := context.Background()
	createSession(t, engine, "multi", 1)

	if err := engine.TrackMessage(ctx, "chat-1", "msg-42"); err != nil {
		t.Fatalf("track message: %v", err)
	}
	// Tracking against a missing session is a no-op, not an error.
	if err := engine.TrackMessage(ctx, "chat-absent", "msg-43"); err != nil {
		t.Fatalf("track message on absent session: %v", err)
	}
}
