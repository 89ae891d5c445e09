package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trivia-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Source produces validated question batches.
type Source interface {
	Generate(ctx context.Context, topic string, count int, difficulty domain.Difficulty) ([]domain.Question, error)
	TopUp(ctx context.Context, topic string, missing int) ([]domain.Question, error)
}

// CachedSource caches generated batches with TTL so that repeat sessions on a
// popular topic do not burn generation quota. Concurrent misses for the same
// batch are collapsed with singleflight.
type CachedSource struct {
	src   Source
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedBatch
}

type cachedBatch struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:   src,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedBatch),
	}
}

func (c *CachedSource) Generate(ctx context.Context, topic string, count int, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := batchKey(topic, count, difficulty)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return copyBatch(entry.questions), nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.src.Generate(ctx, topic, count, difficulty)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedBatch{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return copyBatch(result.([]domain.Question)), nil
}

// TopUp is never cached: shortfalls are session-specific and best-effort.
func (c *CachedSource) TopUp(ctx context.Context, topic string, missing int) ([]domain.Question, error) {
	return c.src.TopUp(ctx, topic, missing)
}

func batchKey(topic string, count int, difficulty domain.Difficulty) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(topic)), difficulty, count)
}

// copyBatch hands each caller its own resolution state so sessions sharing a
// cached batch never alias each other's answers.
func copyBatch(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		out[i] = domain.Question{
			Text:          q.Text,
			Options:       options,
			CorrectAnswer: q.CorrectAnswer,
		}
	}
	return out
}

func (c *CachedSource) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
