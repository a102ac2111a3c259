// Package cache stores recognizer results keyed by recognizer, language and
// cell text.
package cache

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/deidentify/internal/model"
	"golang.org/x/crypto/blake2b"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a fixed-length key from its parts. Parts are joined with a
// NUL separator so ("ab", "c") and ("a", "bc") never collide.
func CacheKey(parts ...string) string {
	hash := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return "deidentify:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory only when no directory is
// set, memory over disk otherwise. It returns nil when caching is disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}
