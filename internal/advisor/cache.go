// Package advisor provides caching for advisor responses.
package advisor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// ResponseCache provides in-memory TTL caching for advisor responses keyed
// by task, model and prompt digest. Identical prompts within the TTL are
// served without another advisor round trip.
type ResponseCache struct {
	cache     *cache.Cache
	ttl       time.Duration
	mu        sync.RWMutex
	hitCount  uint64
	missCount uint64
}

// NewResponseCache creates a new response cache
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// cacheKey builds a stable key from the task, model and the full prompt
// digest. Hashing the whole prompt keeps near-identical prompts distinct.
func cacheKey(task, model, prompt string) string {
	digest := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s:%s:%s", task, model, hex.EncodeToString(digest[:]))
}

// Get retrieves a cached response
func (rc *ResponseCache) Get(task, model, prompt string) (string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if entry, found := rc.cache.Get(cacheKey(task, model, prompt)); found {
		if text, ok := entry.(string); ok {
			rc.hitCount++
			return text, true
		}
	}

	rc.missCount++
	return "", false
}

// Set stores a response in cache
func (rc *ResponseCache) Set(task, model, prompt, response string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Set(cacheKey(task, model, prompt), response, rc.ttl)
}

// Clear flushes the entire cache
func (rc *ResponseCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Flush()
	rc.hitCount = 0
	rc.missCount = 0
}

// Stats returns cache statistics
func (rc *ResponseCache) Stats() (hits, misses uint64, ratio float64) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	hits = rc.hitCount
	misses = rc.missCount
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of cached responses
func (rc *ResponseCache) ItemCount() int {
	return rc.cache.ItemCount()
}
