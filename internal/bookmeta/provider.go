package bookmeta

import "context"

// Provider defines the capability every bibliographic source adapter offers.
// Implementations handle their own authentication, rate limiting and the
// translation of their response schema to SearchResult.
type Provider interface {
	// Name returns the human-readable name of the source (e.g., "Google Books").
	Name() string

	// Source returns the source tag stamped on every result of this provider.
	Source() Source

	// SearchByISBN looks up candidates for an ISBN. Hyphens and spaces are
	// stripped before querying. No match is an empty slice and a nil error.
	// Transport, status and decoding failures are returned as errors, never panics.
	SearchByISBN(ctx context.Context, isbn string) ([]SearchResult, error)
}

// TitleAuthorSearcher is implemented by providers that support free-text search.
// A query whose terms are all blank returns an empty slice without a request.
type TitleAuthorSearcher interface {
	SearchByTitleAuthor(ctx context.Context, query TitleQuery) ([]SearchResult, error)
}
