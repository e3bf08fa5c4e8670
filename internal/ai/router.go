// Package ai implements the AI provider router (C4): classify a query,
// pick a provider from a static class table, consult the LRU+TTL cache,
// invoke with one retry on transient failure, and cache the result.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/local/steward/internal/cache"
	"github.com/local/steward/internal/providers"
)

// ErrProvider is returned when every configured provider for a class fails.
var ErrProvider = errors.New("ai: no provider could service the request")

const (
	cacheKeyPrefixLen = 200
	retryBackoff      = 500 * time.Millisecond
)

// bypassKeywords disables the cache for queries asking about fresh
// information; fixed at configure time per the cache's contract.
var bypassKeywords = []string{"now", "current", "today", "latest", "trending", "live", "status"}

// RunResult is what Run returns to its caller.
type RunResult struct {
	Text     string
	Provider string
	Cached   bool
	Tokens   int
}

// Router wires the classifier, the static class→provider table, and the
// cache together. Construct with NewRouter.
type Router struct {
	classify func(query string) providers.TaskClass
	table    map[providers.TaskClass][]providers.Provider
	// defaultCoder is used when a class has no configured provider.
	defaultCoder providers.Provider
	cache        *cache.LRU
	cacheEnabled bool
	cacheTTL     time.Duration
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithClassifier overrides the default keyword classifier.
func WithClassifier(fn func(query string) providers.TaskClass) Option {
	return func(r *Router) { r.classify = fn }
}

// NewRouter builds a Router. table maps each class to its preferred
// provider ordering; defaultCoder is used only when a class has no entry
// (or an empty ordering). When every provider in a non-empty ordering
// fails, Run returns ErrProvider without trying defaultCoder. c may be nil
// if caching is disabled.
func NewRouter(table map[providers.TaskClass][]providers.Provider, defaultCoder providers.Provider, c *cache.LRU, cacheEnabled bool, cacheTTLSeconds int, opts ...Option) *Router {
	r := &Router{
		classify:     ClassifyQuery,
		table:        table,
		defaultCoder: defaultCoder,
		cache:        c,
		cacheEnabled: cacheEnabled && c != nil && cacheTTLSeconds > 0,
		cacheTTL:     time.Duration(cacheTTLSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run classifies the query (unless taskType is supplied), selects a
// provider, consults the cache, invokes the provider (retrying once on a
// transient error), and stores successful responses in the cache.
func (r *Router) Run(ctx context.Context, query string, taskType providers.TaskClass, richContext string) (RunResult, error) {
	class := taskType
	if class == "" {
		class = r.classify(query)
	}

	chain := r.table[class]
	if len(chain) == 0 && r.defaultCoder != nil {
		chain = []providers.Provider{r.defaultCoder}
	}
	if len(chain) == 0 {
		return RunResult{}, ErrProvider
	}

	useCache := r.cacheEnabled && !containsBypassKeyword(query)

	var lastErr error
	for _, p := range chain {
		key := cacheKey(p.Name(), query, class)
		if useCache {
			if v, ok := r.cache.Get(key); ok {
				cached := v.(RunResult)
				cached.Cached = true
				return cached, nil
			}
		}

		result, err := r.callWithRetry(ctx, p, query, richContext)
		if err == nil {
			result.Provider = p.Name()
			if useCache {
				r.cache.Set(key, result)
			}
			return result, nil
		}
		if errors.Is(err, providers.ErrRateLimited) {
			lastErr = err
			continue
		}
		lastErr = err
	}

	if lastErr != nil {
		return RunResult{}, errors.Join(ErrProvider, lastErr)
	}
	return RunResult{}, ErrProvider
}

func (r *Router) callWithRetry(ctx context.Context, p providers.Provider, query, system string) (RunResult, error) {
	res, err := p.Call(ctx, query, system, providers.Options{})
	if err == nil {
		return RunResult{Text: res.Text, Tokens: res.Tokens}, nil
	}
	if !errors.Is(err, providers.ErrTransient) {
		return RunResult{}, err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}

	res, err = p.Call(ctx, query, system, providers.Options{})
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Text: res.Text, Tokens: res.Tokens}, nil
}

func containsBypassKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range bypassKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// cacheKey hashes (provider, firstN(query,200), taskType) after
// lower-casing and collapsing whitespace in the query.
func cacheKey(provider, query string, class providers.TaskClass) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if len(normalized) > cacheKeyPrefixLen {
		normalized = normalized[:cacheKeyPrefixLen]
	}
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(class))
	return hex.EncodeToString(h.Sum(nil))
}
