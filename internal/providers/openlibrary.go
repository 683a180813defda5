package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/ratelimit"
)

const (
	openLibraryBaseURL     = "https://openlibrary.org"
	openLibraryCoversURL   = "https://covers.openlibrary.org/b/id"
	openLibrarySearchISBNs = 20
)

// OpenLibrary queries the Open Library books, editions and search APIs.
type OpenLibrary struct {
	client
}

// Compile-time checks that OpenLibrary implements the provider interfaces.
var (
	_ bookmeta.Provider            = (*OpenLibrary)(nil)
	_ bookmeta.TitleAuthorSearcher = (*OpenLibrary)(nil)
)

// NewOpenLibrary creates an Open Library adapter.
func NewOpenLibrary(opts ...Option) *OpenLibrary {
	return &OpenLibrary{client: newClient("Open Library", bookmeta.SourceOpenLibrary, openLibraryBaseURL,
		cache.OpenLibraryCacheTable, ratelimit.New("OpenLibrary", 1), opts)}
}

// openLibraryBookResponse matches the jscmd=data books API entry.
type openLibraryBookResponse struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description any    `json:"description"`
	Publishers  []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Identifiers struct {
		ISBN10 []string `json:"isbn_10"`
		ISBN13 []string `json:"isbn_13"`
	} `json:"identifiers"`
	Subjects    []any  `json:"subjects"`
	PublishDate string `json:"publish_date"`
}

// openLibraryEditionResponse matches the edition API response.
type openLibraryEditionResponse struct {
	Series    []string `json:"series"`
	Languages []struct {
		Key string `json:"key"`
	} `json:"languages"`
	TranslatedFrom []struct {
		Key string `json:"key"`
	} `json:"translated_from"`
	PhysicalFormat string   `json:"physical_format"`
	Description    any      `json:"description"`
	ISBN10         []string `json:"isbn_10"`
	ISBN13         []string `json:"isbn_13"`
}

// openLibrarySearchResponse matches search.json.
type openLibrarySearchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Title            string   `json:"title"`
		Subtitle         string   `json:"subtitle"`
		AuthorName       []string `json:"author_name"`
		Publisher        []string `json:"publisher"`
		FirstPublishYear int      `json:"first_publish_year"`
		Language         []string `json:"language"`
		ISBN             []string `json:"isbn"`
		CoverI           int      `json:"cover_i"`
		Subject          []string `json:"subject"`
	} `json:"docs"`
}

// SearchByISBN combines the books API entry with the edition record, which
// carries series, language and physical format.
func (o *OpenLibrary) SearchByISBN(ctx context.Context, isbn string) ([]bookmeta.SearchResult, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}
	return o.cached(isbnCacheKey(isbn), func() ([]bookmeta.SearchResult, error) {
		return o.fetchISBN(ctx, isbn)
	})
}

func (o *OpenLibrary) fetchISBN(ctx context.Context, isbn string) ([]bookmeta.SearchResult, error) {
	params := url.Values{}
	params.Set("bibkeys", "ISBN:"+isbn)
	params.Set("format", "json")
	params.Set("jscmd", "data")
	endpoint := fmt.Sprintf("%s/api/books?%s", o.baseURL, params.Encode())

	var books map[string]openLibraryBookResponse
	if err := o.getJSON(ctx, "isbn lookup", endpoint, nil, &books); err != nil {
		if errors.Is(err, errNotFound) {
			return []bookmeta.SearchResult{}, nil
		}
		return nil, err
	}
	olBook, ok := books["ISBN:"+isbn]
	if !ok {
		return []bookmeta.SearchResult{}, nil
	}

	result := bookmeta.SearchResult{
		Title:       olBook.Title,
		Description: extractDescription(olBook.Description),
		PublishDate: olBook.PublishDate,
		ISBN:        isbn,
		AllISBNs:    append(append([]string{isbn}, olBook.Identifiers.ISBN13...), olBook.Identifiers.ISBN10...),
		CoverURL:    olBook.Cover.Large,
	}
	if result.CoverURL == "" {
		result.CoverURL = olBook.Cover.Medium
	}
	if len(olBook.Publishers) > 0 {
		result.Publisher = olBook.Publishers[0].Name
	}
	authors := make([]string, 0, len(olBook.Authors))
	for _, author := range olBook.Authors {
		authors = append(authors, author.Name)
	}
	result.Author = bookmeta.JoinAuthors(authors)

	subjects := extractStringSlice(olBook.Subjects)
	if bookmeta.IsAudiobook(subjects...) || bookmeta.IsAudiobook(olBook.Subtitle) {
		return []bookmeta.SearchResult{}, nil
	}

	edition, err := o.fetchEdition(ctx, isbn)
	if err != nil {
		// The edition only adds detail; the books API entry stands on its own.
		slog.Debug("Open Library edition lookup failed", "isbn", isbn, "error", err)
	}
	if edition != nil {
		if isAudioBinding(edition.PhysicalFormat) {
			return []bookmeta.SearchResult{}, nil
		}
		if len(edition.Series) > 0 {
			result.Series, result.SeriesNumber = bookmeta.ParseSeriesField(edition.Series[0])
		}
		if len(edition.Languages) > 0 {
			result.Language = edition.Languages[0].Key
		}
		if len(edition.TranslatedFrom) > 0 {
			result.OriginalLanguage = edition.TranslatedFrom[0].Key
		}
		if result.Description == "" {
			result.Description = extractDescription(edition.Description)
		}
		result.AllISBNs = append(result.AllISBNs, edition.ISBN13...)
		result.AllISBNs = append(result.AllISBNs, edition.ISBN10...)
	}

	return o.finish([]bookmeta.SearchResult{result}), nil
}

func (o *OpenLibrary) fetchEdition(ctx context.Context, isbn string) (*openLibraryEditionResponse, error) {
	endpoint := fmt.Sprintf("%s/isbn/%s.json", o.baseURL, url.PathEscape(isbn))

	var edition openLibraryEditionResponse
	if err := o.getJSON(ctx, "edition lookup", endpoint, nil, &edition); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edition, nil
}

// SearchByTitleAuthor queries search.json; the series goes into the free q term.
func (o *OpenLibrary) SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) ([]bookmeta.SearchResult, error) {
	q := query.Trimmed()
	if q.IsBlank() {
		return []bookmeta.SearchResult{}, nil
	}

	params := url.Values{}
	if q.Title != "" {
		params.Set("title", q.Title)
	}
	if q.Author != "" {
		params.Set("author", q.Author)
	}
	if q.Series != "" {
		params.Set("q", q.Series)
	}
	params.Set("limit", strconv.Itoa(o.maxResults))
	params.Set("fields", "title,subtitle,author_name,publisher,first_publish_year,language,isbn,cover_i,subject")
	endpoint := fmt.Sprintf("%s/search.json?%s", o.baseURL, params.Encode())

	return o.cached(o.titleCacheKey(q), func() ([]bookmeta.SearchResult, error) {
		var resp openLibrarySearchResponse
		if err := o.getJSON(ctx, "search", endpoint, nil, &resp); err != nil {
			if errors.Is(err, errNotFound) {
				return []bookmeta.SearchResult{}, nil
			}
			return nil, err
		}

		results := make([]bookmeta.SearchResult, 0, len(resp.Docs))
		for _, doc := range resp.Docs {
			if bookmeta.IsAudiobook(doc.Subject...) || bookmeta.IsAudiobook(doc.Subtitle) {
				continue
			}
			r := bookmeta.SearchResult{
				Title:    doc.Title,
				Author:   bookmeta.JoinAuthors(doc.AuthorName),
				AllISBNs: preferISBN13(doc.ISBN, openLibrarySearchISBNs),
			}
			if len(doc.Publisher) > 0 {
				r.Publisher = doc.Publisher[0]
			}
			if doc.FirstPublishYear > 0 {
				r.PublishDate = strconv.Itoa(doc.FirstPublishYear)
			}
			if len(doc.Language) > 0 {
				r.Language = doc.Language[0]
			}
			if doc.CoverI > 0 {
				r.CoverURL = fmt.Sprintf("%s/%d-L.jpg", openLibraryCoversURL, doc.CoverI)
			}
			results = append(results, r)
		}
		return o.finish(results), nil
	})
}

// preferISBN13 orders ISBN-13s before ISBN-10s and keeps at most limit.
func preferISBN13(isbns []string, limit int) []string {
	out := make([]string, 0, min(len(isbns), limit))
	for _, want := range []int{13, 10} {
		for _, isbn := range isbns {
			if len(out) == limit {
				return out
			}
			if n := bookmeta.NormalizeISBN(isbn); len(n) == want {
				out = append(out, n)
			}
		}
	}
	return out
}

// extractDescription handles the various forms description can take.
func extractDescription(desc any) string {
	if desc == nil {
		return ""
	}
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			return val
		}
	}
	return ""
}

// extractStringSlice converts []any to []string, handling various element types.
func extractStringSlice(items []any) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				result = append(result, name)
			}
		}
	}
	return result
}
