package generator

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"trivia-engine/internal/domain"
)

var difficultyDescriptions = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "basic knowledge, simple concepts, commonly known facts",
	domain.DifficultyMedium: "intermediate knowledge, some analysis required, moderately challenging",
	domain.DifficultyHard:   "advanced knowledge, complex concepts, detailed understanding required",
	domain.DifficultyExpert: "expert-level knowledge, highly specialized, very challenging",
}

// buildPrompt produces the generation instruction for one batch of questions.
// The output contract pins the exact JSON keys parseQuestions expects.
func buildPrompt(topic string, count int, difficulty domain.Difficulty) string {
	desc, ok := difficultyDescriptions[difficulty]
	if !ok {
		desc = difficultyDescriptions[domain.DifficultyMedium]
	}

	return fmt.Sprintf(`Generate %d multiple choice quiz questions about %s.

Difficulty level: %s (%s)

Requirements:
1. Each question must have exactly 4 answer options
2. Only one option should be correct
3. Questions should be appropriate for the %s difficulty level
4. Avoid ambiguous or trick questions
5. Make sure incorrect options are plausible but clearly wrong
6. Questions should be factual and verifiable

Return the response as a valid JSON array with this exact structure:
[
  {
    "question_text": "Your question here?",
    "options": ["Option A", "Option B", "Option C", "Option D"],
    "correct_answer": "Option A"
  }
]

Important:
- Return ONLY the JSON array, no additional text or formatting
- The correct_answer must exactly match one of the options
- Ensure all JSON is properly formatted and valid`, count, topic, difficulty, desc, difficulty)
}

type candidate struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// parseQuestions extracts the JSON array from a model response (tolerating
// fences or surrounding prose) and validates each candidate individually.
// Invalid candidates are dropped; an empty surviving set fails the parse.
func parseQuestions(raw string) ([]domain.Question, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end == -1 || end < start {
		return nil, &domain.GenerationError{
			Kind:  domain.GenerationMalformed,
			Cause: "no JSON array found in response",
		}
	}

	var candidates []candidate
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &candidates); err != nil {
		return nil, &domain.GenerationError{
			Kind:  domain.GenerationMalformed,
			Cause: "response is not a valid JSON array",
			Err:   err,
		}
	}

	questions := make([]domain.Question, 0, len(candidates))
	for i, cand := range candidates {
		q, err := domain.NewQuestion(cand.QuestionText, cand.Options, cand.CorrectAnswer)
		if err != nil {
			log.Printf("skipping invalid candidate question %d: %v", i, err)
			continue
		}
		questions = append(questions, q)
	}

	if len(questions) == 0 {
		return nil, &domain.GenerationError{
			Kind:  domain.GenerationMalformed,
			Cause: "no valid questions in response",
		}
	}
	return questions, nil
}
