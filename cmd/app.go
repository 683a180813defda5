package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/catalog"
	"github.com/lepinkainen/shelf/internal/config"
	"github.com/lepinkainen/shelf/internal/covers"
	"github.com/lepinkainen/shelf/internal/providers"
	"github.com/lepinkainen/shelf/internal/resolver"
	"github.com/lepinkainen/shelf/internal/settings"
	"github.com/lepinkainen/shelf/internal/tui"
)

// bookSearcher is the resolver surface the commands use.
type bookSearcher interface {
	SearchByISBN(ctx context.Context, isbn string) (*resolver.Report, error)
	SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) (*resolver.Report, error)
}

// Seams replaced in tests.
var (
	newSearcher     = buildResolver
	selectCandidate = tui.Select
)

func openSettings() (*settings.Store, error) {
	return settings.Open(config.SettingsFile(), settings.WithDefaults(settings.Snapshot{
		ProvidersEnabled:  config.EnabledProviders(),
		ISBNdbAPIKey:      config.ISBNdbAPIKey,
		GoogleBooksAPIKey: config.GoogleBooksAPIKey,
		MaxResults:        config.MaxResults(),
		Language:          config.Language(),
	}))
}

func loadSettings() (settings.Snapshot, error) {
	store, err := openSettings()
	if err != nil {
		return settings.Snapshot{}, err
	}
	return store.Snapshot(), nil
}

// buildResolver wires the enabled providers, sharing the response cache.
// Without a usable cache the providers query the network directly.
func buildResolver(snap settings.Snapshot) (bookSearcher, error) {
	db, err := cache.GetGlobalCache()
	if err != nil {
		slog.Warn("Cache unavailable, querying providers directly", "error", err)
		db = nil
	}

	list, err := providers.Build(snap.ProvidersEnabled, providers.Credentials{
		ISBNdbAPIKey:      snap.ISBNdbAPIKey,
		GoogleBooksAPIKey: snap.GoogleBooksAPIKey,
	}, providers.WithCache(db), providers.WithMaxResults(snap.MaxResults))
	if err != nil {
		return nil, err
	}
	return resolver.New(list,
		resolver.WithTimeout(config.ResolverTimeout()),
		resolver.WithMaxResults(snap.MaxResults),
	), nil
}

func openCatalog(lang string) (*catalog.Store, error) {
	store, err := catalog.Open(config.CatalogDBFile(), catalog.WithCollation(lang))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

func coverStore() *covers.Store {
	return covers.New(config.CoversDir(), covers.WithMaxWidth(config.CoverMaxWidth()))
}

// reportOutcomes logs the providers that failed so a partial answer is
// visible to the user.
func reportOutcomes(report *resolver.Report) {
	if report == nil {
		return
	}
	for _, o := range report.Failed() {
		slog.Warn("Provider unavailable, results may be incomplete", "provider", o.Provider, "error", o.Err)
	}
}

// choose returns the candidate to use: the first one when not interactive,
// otherwise the user's pick. A nil result means the user skipped.
func choose(query string, results []bookmeta.SearchResult, interactive bool) (*bookmeta.SearchResult, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if !interactive || len(results) == 1 {
		first := results[0]
		return &first, nil
	}
	selection, err := selectCandidate(query, results)
	if err != nil {
		return nil, err
	}
	if selection.Action != tui.ActionSelected {
		return nil, nil
	}
	return selection.Selection, nil
}

// addResult stores r in the catalog unless a book with the same ISBN is
// already there, and downloads its cover when one is known.
func addResult(ctx context.Context, lib *catalog.Store, r bookmeta.SearchResult) (*catalog.Book, bool, error) {
	if r.ISBN != "" {
		existing, err := lib.FindByISBN(r.ISBN)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, catalog.ErrNotFound):
			return nil, false, fmt.Errorf("failed to look up ISBN %s: %w", r.ISBN, err)
		}
	}

	book := catalog.FromSearchResult(r)
	if err := lib.Create(&book); err != nil {
		return nil, false, err
	}

	if book.CoverURL != "" {
		store := coverStore()
		result, err := store.Download(ctx, book.ID, book.CoverURL, config.UpdateCovers)
		if err != nil {
			slog.Warn("Failed to download cover", "book", book.Label(), "error", err)
		} else if err := lib.SetCoverPath(book.ID, result.Path); err != nil {
			return nil, false, err
		} else {
			book.CoverPath = result.Path
		}
	}
	return &book, true, nil
}

func describeQuery(q bookmeta.TitleQuery) string {
	var parts []string
	for _, p := range []string{q.Title, q.Author, q.Series} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}
