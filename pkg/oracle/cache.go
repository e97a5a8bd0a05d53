package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// CachedClient wraps a Client with an in-memory completion cache keyed by
// (model, prompt). Judgment calls run at temperature 0, so repeating a
// session over unchanged documents replays identical responses without
// hitting the backend. Structured-format calls pass through uncached.
type CachedClient struct {
	inner Client

	mu      sync.RWMutex
	entries map[string]string
	hits    int
	misses  int
}

// NewCachedClient wraps the given client with a fresh cache. The cache is
// scoped to one analysis session.
func NewCachedClient(inner Client) *CachedClient {
	return &CachedClient{
		inner:   inner,
		entries: make(map[string]string),
	}
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// GenerateCompletion serves from cache when the same model/prompt pair has
// been seen before.
func (c *CachedClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	var options GenerateOptions
	for _, o := range opts {
		o(&options)
	}
	key := cacheKey(options.Model, prompt)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cached, nil
	}

	response, err := c.inner.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = response
	c.misses++
	c.mu.Unlock()
	return response, nil
}

// GenerateCompletionWithFormat delegates to the wrapped client.
func (c *CachedClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	return c.inner.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
}

// WasCached reports whether the last GenerateCompletion for this
// model/prompt pair would be served from cache.
func (c *CachedClient) WasCached(model, prompt string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[cacheKey(model, prompt)]
	return ok
}

// HitRate returns cache hits and misses so far.
func (c *CachedClient) HitRate() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
