package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"trivia-engine/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash-latest"

	maxAttempts      = 3
	defaultBaseDelay = time.Second

	// MinQuestions and MaxQuestions bound the size of one generated batch.
	MinQuestions = 1
	MaxQuestions = 20
)

// generateRequest is the minimal request shape for the generateContent
// endpoint.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the minimal response shape returned by the
// generateContent endpoint.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client is a focused Gemini client for quiz question generation.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	baseDelay  time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseDelay overrides the retry backoff base, mainly for tests.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generator: api key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate produces a validated batch of questions for topic at the given
// difficulty, retrying transient failures with exponential backoff. The
// returned error is always a classified *domain.GenerationError or a
// *domain.ValidationError for bad arguments.
func (c *Client) Generate(ctx context.Context, topic string, count int, difficulty domain.Difficulty) ([]domain.Question, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, domain.NewValidationError("topic must not be empty")
	}
	if count < MinQuestions || count > MaxQuestions {
		return nil, domain.NewValidationError("question count must be between %d and %d", MinQuestions, MaxQuestions)
	}
	if !difficulty.Valid() {
		difficulty = domain.DifficultyMedium
	}

	prompt := buildPrompt(topic, count, difficulty)

	var questions []domain.Question
	err := withRetry(ctx, maxAttempts, c.baseDelay, classifyGeneration, func(ctx context.Context) error {
		text, err := c.generateContent(ctx, prompt)
		if err != nil {
			return err
		}
		parsed, err := parseQuestions(text)
		if err != nil {
			return err
		}
		questions = parsed
		return nil
	})
	if err != nil {
		var gerr *domain.GenerationError
		if errors.As(err, &gerr) {
			return nil, err
		}
		return nil, &domain.GenerationError{Kind: domain.GenerationUnknown, Cause: "generation failed", Err: err}
	}

	if len(questions) != count {
		log.Printf("generator: expected %d questions for %q, got %d", count, topic, len(questions))
	}
	return questions, nil
}

// TopUp attempts to fill a shortfall left by a partially successful batch.
// It is best-effort: the shortfall is requested at medium difficulty, and a
// failure simply leaves the caller with the shorter batch.
func (c *Client) TopUp(ctx context.Context, topic string, missing int) ([]domain.Question, error) {
	if missing < MinQuestions {
		return nil, nil
	}
	if missing > MaxQuestions {
		missing = MaxQuestions
	}
	return c.Generate(ctx, topic, missing, domain.DifficultyMedium)
}

func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationUnknown, Cause: "marshal request", Permanent: true, Err: err}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationUnknown, Cause: "create request", Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationUnavailable, Cause: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatusError(resp.StatusCode, raw)
	}

	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Cause: "decode response", Err: err}
	}
	if len(payload.Candidates) == 0 {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Cause: "no candidates in response"}
	}

	var sb strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Cause: "empty response text"}
	}
	return sb.String(), nil
}

func classifyStatusError(status int, body []byte) *domain.GenerationError {
	cause := fmt.Sprintf("unexpected status %d", status)
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		cause = fmt.Sprintf("status %d: %s", status, parsed.Error.Message)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &domain.GenerationError{Kind: domain.GenerationQuota, Cause: cause}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.GenerationError{Kind: domain.GenerationPermission, Cause: cause, Permanent: true}
	case status == http.StatusBadRequest:
		return &domain.GenerationError{Kind: domain.GenerationUnknown, Cause: cause, Permanent: true}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &domain.GenerationError{Kind: domain.GenerationTimeout, Cause: cause}
	case status >= 500:
		return &domain.GenerationError{Kind: domain.GenerationUnavailable, Cause: cause}
	default:
		return &domain.GenerationError{Kind: domain.GenerationUnknown, Cause: cause}
	}
}

func classifyTransportError(err error) *domain.GenerationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.GenerationError{Kind: domain.GenerationTimeout, Cause: "request deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.GenerationError{Kind: domain.GenerationTimeout, Cause: "network timeout", Err: err}
	}
	return &domain.GenerationError{Kind: domain.GenerationUnavailable, Cause: "request failed", Err: err}
}

// classifyGeneration decides whether an attempt error warrants a retry:
// permanent and permission failures never retry, quota failures back off
// longer, everything else (timeouts, unavailability, malformed responses)
// retries on the short schedule.
func classifyGeneration(err error) retryClass {
	var gerr *domain.GenerationError
	if !errors.As(err, &gerr) {
		return retryShort
	}
	if gerr.Permanent || gerr.Kind == domain.GenerationPermission {
		return retryNone
	}
	if gerr.Kind == domain.GenerationQuota {
		return retryLong
	}
	return retryShort
}
