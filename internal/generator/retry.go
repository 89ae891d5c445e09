package generator

import (
	"context"
	"time"
)

type retryClass int

const (
	retryNone retryClass = iota
	retryShort
	retryLong
)

// classifier maps an attempt's error to a retry class: retryShort doubles the
// delay per attempt, retryLong triples it (quota-style errors), retryNone
// fails immediately.
type classifier func(error) retryClass

// withRetry runs fn up to attempts times, sleeping between attempts according
// to the class the classifier assigns to the last error. The last error is
// returned when all attempts fail or the context is canceled mid-backoff.
func withRetry(ctx context.Context, attempts int, base time.Duration, classify classifier, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}

		class := classify(last)
		if class == retryNone || attempt == attempts-1 {
			return last
		}

		delay := base
		factor := time.Duration(2)
		if class == retryLong {
			factor = 3
		}
		for i := 0; i < attempt; i++ {
			delay *= factor
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
	return last
}
