package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"DigestRanker/internal/ports"
)

// CachedGenerator memoises successful responses keyed by (system, input).
type CachedGenerator struct {
	next  ports.TextGenerator
	cache *lru.Cache[string, string]
}

var _ ports.TextGenerator = (*CachedGenerator)(nil)

// NewCachedGenerator wraps next with an LRU of the given size.
func NewCachedGenerator(next ports.TextGenerator, size int) (*CachedGenerator, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &CachedGenerator{next: next, cache: cache}, nil
}

// Generate returns a cached response or calls through; errors are not cached.
func (c *CachedGenerator) Generate(ctx context.Context, system, input string) (string, error) {
	key := cacheKey(system, input)
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.next.Generate(ctx, system, input)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, out)
	return out, nil
}

// Len reports the number of cached responses.
func (c *CachedGenerator) Len() int {
	return c.cache.Len()
}

func cacheKey(system, input string) string {
	sum := sha256.Sum256([]byte(system + "\x00" + input))
	return hex.EncodeToString(sum[:])
}
