package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/ratelimit"
)

const (
	isbndbBaseURL       = "https://api2.isbndb.com"
	isbndbRatePerSecond = 1 // Basic plan: 1 request per second
)

// ISBNdb queries the ISBNdb API. Without an API key every search returns no
// results and no request is made.
type ISBNdb struct {
	client
}

// Compile-time checks that ISBNdb implements the provider interfaces.
var (
	_ bookmeta.Provider            = (*ISBNdb)(nil)
	_ bookmeta.TitleAuthorSearcher = (*ISBNdb)(nil)
)

// NewISBNdb creates an ISBNdb adapter. Pass the key with WithAPIKey.
func NewISBNdb(opts ...Option) *ISBNdb {
	return &ISBNdb{client: newClient("ISBNdb", bookmeta.SourceISBNdb, isbndbBaseURL, cache.ISBNdbCacheTable,
		ratelimit.New("ISBNdb", isbndbRatePerSecond), opts)}
}

// Configured reports whether an API key is set.
func (i *ISBNdb) Configured() bool {
	return i.apiKey != ""
}

type isbndbBook struct {
	Title         string   `json:"title"`
	TitleLong     string   `json:"title_long"`
	ISBN          string   `json:"isbn"`
	ISBN10        string   `json:"isbn10"`
	ISBN13        string   `json:"isbn13"`
	Publisher     string   `json:"publisher"`
	Language      string   `json:"language"`
	DatePublished string   `json:"date_published"`
	Binding       string   `json:"binding"`
	Overview      string   `json:"overview"`
	Synopsis      string   `json:"synopsis"`
	Image         string   `json:"image"`
	ImageOriginal string   `json:"image_original"`
	Authors       []string `json:"authors"`
	Subjects      []string `json:"subjects"`
}

// isbndbBookResponse matches GET /book/{isbn}.
type isbndbBookResponse struct {
	Book isbndbBook `json:"book"`
}

// isbndbSearchResponse matches GET /search/books and the older /books/{query},
// which name the result list differently.
type isbndbSearchResponse struct {
	Total int          `json:"total"`
	Data  []isbndbBook `json:"data"`
	Books []isbndbBook `json:"books"`
}

// SearchByISBN fetches GET /book/<isbn>.
func (i *ISBNdb) SearchByISBN(ctx context.Context, isbn string) ([]bookmeta.SearchResult, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}
	if !i.Configured() {
		slog.Debug("ISBNdb API key not configured, skipping", "isbn", isbn)
		return []bookmeta.SearchResult{}, nil
	}

	return i.cached(isbnCacheKey(isbn), func() ([]bookmeta.SearchResult, error) {
		var resp isbndbBookResponse
		endpoint := fmt.Sprintf("%s/book/%s", i.baseURL, url.PathEscape(isbn))
		if err := i.getJSON(ctx, "isbn lookup", endpoint, i.authHeader(), &resp); err != nil {
			if errors.Is(err, errNotFound) {
				return []bookmeta.SearchResult{}, nil
			}
			return nil, err
		}
		if resp.Book.Title == "" && resp.Book.ISBN == "" && resp.Book.ISBN13 == "" {
			return []bookmeta.SearchResult{}, nil
		}
		return preferISBN(i.convert([]isbndbBook{resp.Book}), isbn), nil
	})
}

// SearchByTitleAuthor queries GET /search/books with title, author and the
// series as free text.
func (i *ISBNdb) SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) ([]bookmeta.SearchResult, error) {
	q := query.Trimmed()
	if q.IsBlank() {
		return []bookmeta.SearchResult{}, nil
	}
	if !i.Configured() {
		slog.Debug("ISBNdb API key not configured, skipping", "title", q.Title)
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
		params.Set("text", q.Series)
	}
	params.Set("pageSize", strconv.Itoa(i.maxResults))
	endpoint := fmt.Sprintf("%s/search/books?%s", i.baseURL, params.Encode())

	return i.cached(i.titleCacheKey(q), func() ([]bookmeta.SearchResult, error) {
		var resp isbndbSearchResponse
		if err := i.getJSON(ctx, "search", endpoint, i.authHeader(), &resp); err != nil {
			if errors.Is(err, errNotFound) {
				return []bookmeta.SearchResult{}, nil
			}
			return nil, err
		}
		books := resp.Data
		if len(books) == 0 {
			books = resp.Books
		}
		return i.convert(books), nil
	})
}

func (i *ISBNdb) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", i.apiKey)
	return h
}

func (i *ISBNdb) convert(books []isbndbBook) []bookmeta.SearchResult {
	results := make([]bookmeta.SearchResult, 0, len(books))
	for _, b := range books {
		if isAudioBinding(b.Binding) || bookmeta.IsAudiobook(b.Subjects...) {
			continue
		}

		title := b.Title
		if title == "" {
			title = b.TitleLong
		}
		description := b.Synopsis
		if description == "" {
			description = b.Overview
		}
		cover := b.ImageOriginal
		if cover == "" {
			cover = b.Image
		}

		results = append(results, bookmeta.SearchResult{
			Title:       title,
			Author:      bookmeta.JoinAuthors(b.Authors),
			Description: description,
			Publisher:   b.Publisher,
			PublishDate: b.DatePublished,
			Language:    b.Language,
			ISBN:        b.ISBN13,
			AllISBNs:    []string{b.ISBN13, b.ISBN10, b.ISBN},
			CoverURL:    cover,
		})
	}
	return i.finish(results)
}

// isAudioBinding recognises ISBNdb binding labels of audio editions
// ("Audio CD", "Audible Audiobook", "MP3 CD").
func isAudioBinding(binding string) bool {
	b := strings.ToLower(binding)
	return strings.Contains(b, "audio") || strings.Contains(b, "mp3") || bookmeta.IsAudiobook(binding)
}
