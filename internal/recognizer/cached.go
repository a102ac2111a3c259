package recognizer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/deidentify/internal/cache"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/rs/zerolog/log"
)

// cachedRecognizer memoizes Detect per recognizer configuration and text
type cachedRecognizer struct {
	Recognizer
	cache cache.Cache
	ttl   time.Duration
}

// Cached wraps rec so repeated values are answered from c. Errors are not
// cached. A nil cache returns rec unchanged.
func Cached(rec Recognizer, c cache.Cache, ttl time.Duration) Recognizer {
	if c == nil {
		return rec
	}
	return &cachedRecognizer{Recognizer: rec, cache: c, ttl: ttl}
}

func (r *cachedRecognizer) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	parts := append([]string{r.Name(), r.SupportedLanguage()}, CacheKeyParts(r.Recognizer)...)
	key := cache.CacheKey(append(parts, text)...)

	if data, found := r.cache.Get(key); found {
		var dets []model.Detection
		if err := json.Unmarshal(data, &dets); err == nil {
			return dets, nil
		}
		log.Debug().Str("recognizer", r.Name()).Msg("discarding unreadable cache entry")
	}

	dets, err := r.Recognizer.Detect(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(dets); err == nil {
		if err := r.cache.Set(key, data, r.ttl); err != nil {
			log.Debug().Err(err).Str("recognizer", r.Name()).Msg("cache write failed")
		}
	}
	return dets, nil
}

// CacheKeyParts forwards the wrapped recognizer's fingerprint
func (r *cachedRecognizer) CacheKeyParts() []string { return CacheKeyParts(r.Recognizer) }
