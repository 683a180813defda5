package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/ratelimit"
)

const (
	googleBooksBaseURL       = "https://www.googleapis.com/books/v1"
	googleBooksRatePerSecond = 5
)

// GoogleBooks queries the Google Books volumes API. The API key is optional.
type GoogleBooks struct {
	client
}

// Compile-time checks that GoogleBooks implements the provider interfaces.
var (
	_ bookmeta.Provider            = (*GoogleBooks)(nil)
	_ bookmeta.TitleAuthorSearcher = (*GoogleBooks)(nil)
)

// NewGoogleBooks creates a Google Books adapter.
func NewGoogleBooks(opts ...Option) *GoogleBooks {
	return &GoogleBooks{client: newClient("Google Books", bookmeta.SourceGoogleBooks, googleBooksBaseURL,
		cache.GoogleBooksCacheTable, ratelimit.New("Google Books", googleBooksRatePerSecond), opts)}
}

// googleBooksResponse matches the volumes list response.
type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			Categories          []string `json:"categories"`
			Language            string   `json:"language"`
			PrintType           string   `json:"printType"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// SearchByISBN queries q=isbn:<isbn>.
func (g *GoogleBooks) SearchByISBN(ctx context.Context, isbn string) ([]bookmeta.SearchResult, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}
	return g.cached(isbnCacheKey(isbn), func() ([]bookmeta.SearchResult, error) {
		results, err := g.search(ctx, "isbn lookup", "isbn:"+isbn)
		return preferISBN(results, isbn), err
	})
}

// SearchByTitleAuthor queries intitle:/inauthor: with the series as a free term.
func (g *GoogleBooks) SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) ([]bookmeta.SearchResult, error) {
	q := query.Trimmed()
	if q.IsBlank() {
		return []bookmeta.SearchResult{}, nil
	}

	var terms []string
	if q.Title != "" {
		terms = append(terms, `intitle:"`+strings.ReplaceAll(q.Title, `"`, "")+`"`)
	}
	if q.Author != "" {
		terms = append(terms, `inauthor:"`+strings.ReplaceAll(q.Author, `"`, "")+`"`)
	}
	if q.Series != "" {
		terms = append(terms, q.Series)
	}

	return g.cached(g.titleCacheKey(q), func() ([]bookmeta.SearchResult, error) {
		return g.search(ctx, "search", strings.Join(terms, " "))
	})
}

func (g *GoogleBooks) search(ctx context.Context, op, q string) ([]bookmeta.SearchResult, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", strconv.Itoa(min(g.maxResults, 40)))
	params.Set("printType", "books")
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}
	endpoint := fmt.Sprintf("%s/volumes?%s", g.baseURL, params.Encode())

	var resp googleBooksResponse
	if err := g.getJSON(ctx, op, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return []bookmeta.SearchResult{}, nil
		}
		return nil, err
	}

	results := make([]bookmeta.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		info := item.VolumeInfo
		if bookmeta.IsAudiobook(info.Categories...) || bookmeta.IsAudiobook(info.Subtitle) {
			continue
		}

		var isbns []string
		var isbn13 string
		for _, id := range info.IndustryIdentifiers {
			switch id.Type {
			case "ISBN_13":
				isbn13 = id.Identifier
				isbns = append(isbns, id.Identifier)
			case "ISBN_10":
				isbns = append(isbns, id.Identifier)
			}
		}

		cover := info.ImageLinks.Thumbnail
		if cover == "" {
			cover = info.ImageLinks.SmallThumbnail
		}

		results = append(results, bookmeta.SearchResult{
			Title:       info.Title,
			Author:      bookmeta.JoinAuthors(info.Authors),
			Description: info.Description,
			Publisher:   info.Publisher,
			PublishDate: info.PublishedDate,
			Language:    info.Language,
			ISBN:        isbn13,
			AllISBNs:    isbns,
			CoverURL:    strings.ReplaceAll(cover, "&edge=curl", ""),
		})
	}
	return g.finish(results), nil
}
