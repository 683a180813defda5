package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isbnProvider supports ISBN lookups only.
type isbnProvider struct {
	name    string
	source  bookmeta.Source
	results []bookmeta.SearchResult
	err     error
	delay   time.Duration
	block   bool
	calls   atomic.Int32
}

func (p *isbnProvider) Name() string            { return p.name }
func (p *isbnProvider) Source() bookmeta.Source { return p.source }

func (p *isbnProvider) SearchByISBN(ctx context.Context, _ string) ([]bookmeta.SearchResult, error) {
	return p.answer(ctx)
}

func (p *isbnProvider) answer(ctx context.Context) ([]bookmeta.SearchResult, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]bookmeta.SearchResult, len(p.results))
	for i, r := range p.results {
		r.Source = p.source
		out[i] = r
	}
	return out, nil
}

// fullProvider also supports title searches.
type fullProvider struct {
	isbnProvider
	lastQuery bookmeta.TitleQuery
}

func (p *fullProvider) SearchByTitleAuthor(ctx context.Context, q bookmeta.TitleQuery) ([]bookmeta.SearchResult, error) {
	p.lastQuery = q
	return p.answer(ctx)
}

func newFull(name string, source bookmeta.Source, results ...bookmeta.SearchResult) *fullProvider {
	return &fullProvider{isbnProvider: isbnProvider{name: name, source: source, results: results}}
}

func TestSearchByISBN_MergesSharedISBNPreferringRicherCandidate(t *testing.T) {
	dnb := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{
		Title:    "Die Stadt der Träumenden Bücher",
		Author:   "Walter Moers",
		AllISBNs: []string{"9783492045919"},
	})
	google := newFull("Google Books", bookmeta.SourceGoogleBooks, bookmeta.SearchResult{
		Title:       "Die Stadt der Träumenden Bücher",
		Author:      "Walter Moers",
		Description: "Ein Roman aus Zamonien.",
		Publisher:   "Piper",
		CoverURL:    "http://books.google.com/cover.jpg",
		AllISBNs:    []string{"349204591X", "9783492045919"},
	})

	report, err := New([]bookmeta.Provider{google, dnb}).SearchByISBN(context.Background(), "978-3-492-04591-9")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	got := report.Results[0]
	assert.Equal(t, bookmeta.SourceGoogleBooks, got.Source)
	assert.Equal(t, "Piper", got.Publisher)
	assert.Equal(t, "https://books.google.com/cover.jpg", got.CoverURL)
	assert.ElementsMatch(t, []string{"349204591X", "9783492045919"}, got.AllISBNs)
	assert.Equal(t, got.ISBN, got.AllISBNs[0])
	assert.False(t, report.Degraded())
	assert.False(t, report.Empty())
}

func TestSearchByISBN_FillsBlanksFromOtherMembers(t *testing.T) {
	dnb := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{
		Title:        "Rumo",
		Author:       "Walter Moers",
		Publisher:    "Piper",
		PublishDate:  "2003",
		Series:       "Zamonien",
		SeriesNumber: "3",
		AllISBNs:     []string{"9783492045414"},
	})
	openLibrary := newFull("Open Library", bookmeta.SourceOpenLibrary, bookmeta.SearchResult{
		Title:    "Rumo",
		Author:   "Walter Moers",
		CoverURL: "https://covers.openlibrary.org/b/id/1-L.jpg",
		AllISBNs: []string{"9783492045414"},
	})

	report, err := New([]bookmeta.Provider{dnb, openLibrary}).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	got := report.Results[0]
	assert.Equal(t, bookmeta.SourceNationalLibrary, got.Source)
	assert.Equal(t, "Zamonien", got.Series)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/1-L.jpg", got.CoverURL)
}

func TestSearchByISBN_TieGoesToProviderPriority(t *testing.T) {
	same := bookmeta.SearchResult{Title: "Ensel und Krete", Author: "Walter Moers", Publisher: "Goldmann", AllISBNs: []string{"9783442453832"}}
	isbndb := newFull("ISBNdb", bookmeta.SourceISBNdb, same)
	google := newFull("Google Books", bookmeta.SourceGoogleBooks, same)

	report, err := New([]bookmeta.Provider{isbndb, google}).SearchByISBN(context.Background(), "9783442453832")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, bookmeta.SourceGoogleBooks, report.Results[0].Source)
}

func TestSearchByISBN_InvalidISBN(t *testing.T) {
	p := newFull("DNB", bookmeta.SourceNationalLibrary)

	_, err := New([]bookmeta.Provider{p}).SearchByISBN(context.Background(), " - ")
	require.ErrorIs(t, err, bookmeta.ErrInvalidISBN)
	assert.Zero(t, p.calls.Load())
}

func TestSearchByISBN_PartialFailure(t *testing.T) {
	ok := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{Title: "Rumo", Author: "Walter Moers"})
	broken := newFull("Google Books", bookmeta.SourceGoogleBooks)
	broken.err = errors.New("server error")

	report, err := New([]bookmeta.Provider{ok, broken}).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Degraded())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "Google Books", failed[0].Provider)
	assert.Zero(t, failed[0].Results)
}

func TestSearchByISBN_AllProvidersFailed(t *testing.T) {
	errDNB := errors.New("dnb down")
	errGoogle := errors.New("google down")
	dnb := newFull("DNB", bookmeta.SourceNationalLibrary)
	dnb.err = errDNB
	google := newFull("Google Books", bookmeta.SourceGoogleBooks)
	google.err = errGoogle

	report, err := New([]bookmeta.Provider{dnb, google}).SearchByISBN(context.Background(), "9783492045414")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, errDNB)
	assert.ErrorIs(t, err, errGoogle)
	require.NotNil(t, report)
	assert.Len(t, report.Outcomes, 2)
	assert.True(t, report.Empty())
}

func TestSearchByISBN_EmptyIsNotFailure(t *testing.T) {
	p := newFull("DNB", bookmeta.SourceNationalLibrary)

	report, err := New([]bookmeta.Provider{p}).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.False(t, report.Degraded())
}

func TestSearchByISBN_OrderIndependentOfTiming(t *testing.T) {
	slow := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{Title: "Rumo", Author: "Walter Moers", AllISBNs: []string{"9783492045414"}})
	slow.delay = 30 * time.Millisecond
	fast := newFull("Open Library", bookmeta.SourceOpenLibrary, bookmeta.SearchResult{Title: "Ensel und Krete", Author: "Walter Moers", AllISBNs: []string{"9783442453832"}})

	report, err := New([]bookmeta.Provider{fast, slow}).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "Rumo", report.Results[0].Title)
	assert.Equal(t, "Ensel und Krete", report.Results[1].Title)
}

func TestSearchByISBN_PerProviderTimeout(t *testing.T) {
	hung := newFull("ISBNdb", bookmeta.SourceISBNdb)
	hung.block = true
	ok := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{Title: "Rumo", Author: "Walter Moers"})

	report, err := New([]bookmeta.Provider{hung, ok}, WithTimeout(20*time.Millisecond)).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, context.DeadlineExceeded)
}

func TestSearchByISBN_MaxResults(t *testing.T) {
	p := newFull("Open Library", bookmeta.SourceOpenLibrary,
		bookmeta.SearchResult{Title: "A", Author: "X"},
		bookmeta.SearchResult{Title: "B", Author: "X"},
		bookmeta.SearchResult{Title: "C", Author: "X"},
	)

	report, err := New([]bookmeta.Provider{p}, WithMaxResults(2)).SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "A", report.Results[0].Title)
}

func TestSearchByTitleAuthor_BlankQuery(t *testing.T) {
	p := newFull("DNB", bookmeta.SourceNationalLibrary)

	report, err := New([]bookmeta.Provider{p}).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{Title: "  ", Author: "\t"})
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Zero(t, p.calls.Load())
}

func TestSearchByTitleAuthor_SkipsProvidersWithoutTitleSearch(t *testing.T) {
	isbnOnly := &isbnProvider{name: "ISBN only", source: bookmeta.SourceISBNdb}
	full := newFull("DNB", bookmeta.SourceNationalLibrary, bookmeta.SearchResult{Title: "Rumo", Author: "Walter Moers"})

	report, err := New([]bookmeta.Provider{isbnOnly, full}).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{Title: " Rumo ", Author: "Moers"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Zero(t, isbnOnly.calls.Load())
	assert.Equal(t, bookmeta.TitleQuery{Title: "Rumo", Author: "Moers"}, full.lastQuery)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "DNB", report.Outcomes[0].Provider)
	assert.True(t, report.Outcomes[1].Skipped)
	assert.False(t, report.Degraded())
}

func TestSearchByTitleAuthor_OnlyUnsupportedProviders(t *testing.T) {
	isbnOnly := &isbnProvider{name: "ISBN only", source: bookmeta.SourceISBNdb}

	report, err := New([]bookmeta.Provider{isbnOnly}).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{Title: "Rumo"})
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestProvidersSortedByPriority(t *testing.T) {
	ol := newFull("Open Library", bookmeta.SourceOpenLibrary)
	dnb := newFull("DNB", bookmeta.SourceNationalLibrary)

	providers := New([]bookmeta.Provider{ol, dnb}).Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, "DNB", providers[0].Name())
}
