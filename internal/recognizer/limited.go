package recognizer

import (
	"context"
	"fmt"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/worker"
)

// limitedRecognizer waits for a rate limiter token before each call
type limitedRecognizer struct {
	Recognizer
	limiter *worker.Limiter
}

// RateLimited wraps rec so calls share the limiter bucket keyed by rec's name.
// A nil limiter returns rec unchanged.
func RateLimited(rec Recognizer, limiter *worker.Limiter) Recognizer {
	if limiter == nil {
		return rec
	}
	return &limitedRecognizer{Recognizer: rec, limiter: limiter}
}

func (r *limitedRecognizer) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	if err := r.limiter.Wait(ctx, r.Name()); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", r.Name(), err)
	}
	return r.Recognizer.Detect(ctx, text)
}

// CacheKeyParts forwards the wrapped recognizer's fingerprint
func (r *limitedRecognizer) CacheKeyParts() []string { return CacheKeyParts(r.Recognizer) }
