// Package providers implements the bibliographic source adapters. Each adapter
// translates one upstream API into bookmeta.SearchResult values.
package providers

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/ratelimit"
)

const (
	defaultMaxAttempts = 3
	defaultMaxResults  = 10
	defaultTimeout     = 10 * time.Second
	userAgent          = "shelf/1.0 (+https://github.com/lepinkainen/shelf)"
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// client holds the plumbing shared by every adapter.
type client struct {
	name          string
	source        bookmeta.Source
	cacheTable    string
	baseURL       string
	apiKey        string
	httpClient    HTTPDoer
	rateLimiter   *ratelimit.Limiter
	cache         *cache.CacheDB
	maxResults    int
	retryAttempts int
	backoff       func(attempt int) time.Duration
}

func newClient(name string, source bookmeta.Source, baseURL, cacheTable string, limiter *ratelimit.Limiter, opts []Option) client {
	c := client{
		name:          name,
		source:        source,
		cacheTable:    cacheTable,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		rateLimiter:   limiter,
		maxResults:    defaultMaxResults,
		retryAttempts: defaultMaxAttempts,
		backoff:       backoffDelay,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Name returns the human-readable name of the source.
func (c *client) Name() string {
	return c.name
}

// Source returns the tag stamped on every result.
func (c *client) Source() bookmeta.Source {
	return c.source
}

// Option is a functional option for configuring an adapter.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(cl *client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the upstream API.
func WithBaseURL(base string) Option {
	return func(cl *client) {
		if base != "" {
			cl.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithRateLimiter sets a custom rate limiter for the adapter.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(cl *client) {
		if limiter != nil {
			cl.rateLimiter = limiter
		}
	}
}

// WithRetryAttempts sets the number of attempts for requests failing with a
// transport error.
func WithRetryAttempts(attempts int) Option {
	return func(cl *client) {
		if attempts > 0 {
			cl.retryAttempts = attempts
		}
	}
}

// WithCache enables response caching in db. A nil db disables caching.
func WithCache(db *cache.CacheDB) Option {
	return func(cl *client) {
		cl.cache = db
	}
}

// WithMaxResults caps the number of results requested per query.
func WithMaxResults(n int) Option {
	return func(cl *client) {
		if n > 0 {
			cl.maxResults = n
		}
	}
}

// WithAPIKey sets the credential for sources that take one.
func WithAPIKey(key string) Option {
	return func(cl *client) {
		cl.apiKey = strings.TrimSpace(key)
	}
}

// finish stamps the source, recovers series from titles, enforces the result
// invariants, drops audio editions and applies the result cap.
func (c *client) finish(results []bookmeta.SearchResult) []bookmeta.SearchResult {
	normalized := make([]bookmeta.SearchResult, 0, len(results))
	for _, r := range results {
		r.Source = c.source
		bookmeta.ApplySeries(&r)
		r.Finalize()
		normalized = append(normalized, r)
	}
	out := bookmeta.FilterAudiobooks(normalized)
	if c.maxResults > 0 && len(out) > c.maxResults {
		out = out[:c.maxResults]
	}
	return out
}

// cachedResults wraps adapter results with metadata for caching.
type cachedResults struct {
	Results  []bookmeta.SearchResult `json:"results"`
	NotFound bool                    `json:"not_found"`
}

// cached serves key from the response cache or runs fetch, caching empty
// results with the shorter negative TTL. Errors are never cached.
func (c *client) cached(key string, fetch func() ([]bookmeta.SearchResult, error)) ([]bookmeta.SearchResult, error) {
	result, _, err := cache.GetOrFetchWithTTL(c.cache, c.cacheTable, key, func() (*cachedResults, error) {
		results, err := fetch()
		if err != nil {
			return nil, err
		}
		return &cachedResults{Results: results, NotFound: len(results) == 0}, nil
	}, cache.SelectNegativeCacheTTL(func(r *cachedResults) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, err
	}
	if result == nil || result.Results == nil {
		return []bookmeta.SearchResult{}, nil
	}
	return result.Results, nil
}

func isbnCacheKey(isbn string) string {
	return "isbn:" + isbn
}

func (c *client) titleCacheKey(q bookmeta.TitleQuery) string {
	return "title:" + q.CacheKey() + "|" + strconv.Itoa(c.maxResults)
}

// preferISBN makes the queried ISBN the primary identifier of every result
// that lists it.
func preferISBN(results []bookmeta.SearchResult, isbn string) []bookmeta.SearchResult {
	for i := range results {
		if slices.Contains(results[i].AllISBNs, isbn) {
			results[i].ISBN = isbn
			results[i].Finalize()
		}
	}
	return results
}
