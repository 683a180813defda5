// Package resolver fans a book query out to every enabled provider and merges
// the answers into one de-duplicated, deterministically ordered result list.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"golang.org/x/sync/errgroup"
)

// ErrAllProvidersFailed is returned when every attempted provider failed.
// The individual provider errors are joined to it.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Outcome records how a single provider fared for one query.
type Outcome struct {
	Provider string
	Source   bookmeta.Source
	Results  int
	Err      error
	// Skipped is set when the provider does not support the query kind.
	Skipped  bool
	Duration time.Duration
}

// Report is the merged answer to a query together with the per-provider
// outcomes.
type Report struct {
	Results  []bookmeta.SearchResult
	Outcomes []Outcome
}

// Degraded reports whether at least one provider failed.
func (r *Report) Degraded() bool {
	return len(r.Failed()) > 0
}

// Failed returns the outcomes of the providers that returned an error.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Empty reports whether the query produced no results.
func (r *Report) Empty() bool {
	return len(r.Results) == 0
}

// Resolver queries providers concurrently. It holds no per-query state and is
// safe for concurrent use.
type Resolver struct {
	providers  []bookmeta.Provider
	timeout    time.Duration
	maxResults int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each provider call. Zero means no per-provider limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.timeout = d
		}
	}
}

// WithMaxResults caps the merged result list. Zero means no cap.
func WithMaxResults(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxResults = n
		}
	}
}

// New creates a resolver over providers, which are consulted in source
// priority order.
func New(providers []bookmeta.Provider, opts ...Option) *Resolver {
	r := &Resolver{providers: append([]bookmeta.Provider(nil), providers...)}
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Source().Priority() < r.providers[j].Source().Priority()
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Providers returns the configured providers in priority order.
func (r *Resolver) Providers() []bookmeta.Provider {
	return append([]bookmeta.Provider(nil), r.providers...)
}

// SearchByISBN looks the ISBN up at every provider. A blank ISBN returns
// bookmeta.ErrInvalidISBN without contacting any provider.
func (r *Resolver) SearchByISBN(ctx context.Context, isbn string) (*Report, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}

	slog.Debug("Resolving ISBN", "isbn", isbn, "providers", len(r.providers))
	return r.run(ctx, func(ctx context.Context, p bookmeta.Provider) ([]bookmeta.SearchResult, bool, error) {
		results, err := p.SearchByISBN(ctx, isbn)
		return results, true, err
	})
}

// SearchByTitleAuthor runs a free-text query at every provider supporting
// it. A query with only blank terms returns an empty report.
func (r *Resolver) SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) (*Report, error) {
	if query.IsBlank() {
		return &Report{Results: []bookmeta.SearchResult{}}, nil
	}
	query = query.Trimmed()

	slog.Debug("Resolving title query", "title", query.Title, "author", query.Author, "series", query.Series)
	return r.run(ctx, func(ctx context.Context, p bookmeta.Provider) ([]bookmeta.SearchResult, bool, error) {
		searcher, ok := p.(bookmeta.TitleAuthorSearcher)
		if !ok {
			return nil, false, nil
		}
		results, err := searcher.SearchByTitleAuthor(ctx, query)
		return results, true, err
	})
}

type searchFunc func(ctx context.Context, p bookmeta.Provider) (results []bookmeta.SearchResult, attempted bool, err error)

func (r *Resolver) run(ctx context.Context, search searchFunc) (*Report, error) {
	outcomes := make([]Outcome, len(r.providers))
	lists := make([][]bookmeta.SearchResult, len(r.providers))

	// Provider errors are recorded, never returned, so one failure does not
	// cancel the others.
	var g errgroup.Group
	for i, p := range r.providers {
		g.Go(func() error {
			pctx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}

			start := time.Now()
			results, attempted, err := search(pctx, p)
			outcome := Outcome{
				Provider: p.Name(),
				Source:   p.Source(),
				Results:  len(results),
				Err:      err,
				Skipped:  !attempted,
				Duration: time.Since(start),
			}
			switch {
			case outcome.Skipped:
				slog.Debug("Provider does not support query, skipping", "provider", p.Name())
			case err != nil:
				outcome.Results = 0
				slog.Warn("Provider search failed", "provider", p.Name(), "error", err)
			default:
				lists[i] = results
				slog.Debug("Provider search finished", "provider", p.Name(), "results", len(results), "duration", outcome.Duration)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Outcomes: outcomes}

	attempted := 0
	var causes []error
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		attempted++
		if o.Err != nil {
			causes = append(causes, o.Err)
		}
	}
	if attempted > 0 && len(causes) == attempted {
		report.Results = []bookmeta.SearchResult{}
		return report, errors.Join(append([]error{ErrAllProvidersFailed}, causes...)...)
	}

	report.Results = Merge(lists...)
	if r.maxResults > 0 && len(report.Results) > r.maxResults {
		report.Results = report.Results[:r.maxResults]
	}
	return report, nil
}
