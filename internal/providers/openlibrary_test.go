package providers

import (
	"context"
	"net/http"
	"testing"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openLibraryBooksJSON = `{
  "ISBN:9783492045919": {
    "title": "Die Stadt der Träumenden Bücher",
    "authors": [{"name": "Walter Moers"}],
    "publishers": [{"name": "Piper"}],
    "publish_date": "2004",
    "identifiers": {"isbn_10": ["349204591X"], "isbn_13": ["9783492045919"]},
    "cover": {"medium": "https://covers.openlibrary.org/b/id/123-M.jpg"},
    "subjects": [{"name": "Fantasy"}, "Buchhandel"]
  }
}`

const openLibraryEditionJSON = `{
  "series": ["Zamonien ; 4"],
  "languages": [{"key": "/languages/ger"}],
  "physical_format": "Hardcover",
  "description": {"type": "/type/text", "value": "Hildegunst von Mythenmetz erbt ein Manuskript."}
}`

func TestOpenLibrary_SearchByISBN(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/books":
			assert.Equal(t, "ISBN:9783492045919", r.URL.Query().Get("bibkeys"))
			assert.Equal(t, "data", r.URL.Query().Get("jscmd"))
			_, _ = w.Write([]byte(openLibraryBooksJSON))
		case "/isbn/9783492045919.json":
			_, _ = w.Write([]byte(openLibraryEditionJSON))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	results, err := NewOpenLibrary(server.opts()...).SearchByISBN(context.Background(), "9783492045919")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "Die Stadt der Träumenden Bücher", got.Title)
	assert.Equal(t, "Walter Moers", got.Author)
	assert.Equal(t, "Piper", got.Publisher)
	assert.Equal(t, "2004", got.PublishDate)
	assert.Equal(t, "Zamonien", got.Series)
	assert.Equal(t, "4", got.SeriesNumber)
	assert.Equal(t, "de", got.Language)
	assert.Equal(t, "Hildegunst von Mythenmetz erbt ein Manuskript.", got.Description)
	assert.Equal(t, []string{"9783492045919", "349204591X"}, got.AllISBNs)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/123-M.jpg", got.CoverURL)
	assert.Equal(t, bookmeta.SourceOpenLibrary, got.Source)
}

func TestOpenLibrary_EditionFailureKeepsBookEntry(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/books" {
			_, _ = w.Write([]byte(openLibraryBooksJSON))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	results, err := NewOpenLibrary(server.opts()...).SearchByISBN(context.Background(), "9783492045919")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Series)
	assert.Empty(t, results[0].Language)
}

func TestOpenLibrary_UnknownISBN(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	results, err := NewOpenLibrary(server.opts()...).SearchByISBN(context.Background(), "9780000000002")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.EqualValues(t, 1, server.requests.Load(), "edition lookup only runs for known books")
}

func TestOpenLibrary_AudioFormatExcluded(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/books" {
			_, _ = w.Write([]byte(openLibraryBooksJSON))
			return
		}
		_, _ = w.Write([]byte(`{"physical_format": "Audio CD"}`))
	})

	results, err := NewOpenLibrary(server.opts()...).SearchByISBN(context.Background(), "9783492045919")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOpenLibrary_SearchByTitleAuthor(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Rumo", q.Get("title"))
		assert.Equal(t, "Moers", q.Get("author"))
		assert.Equal(t, "Zamonien", q.Get("q"))
		assert.Equal(t, "10", q.Get("limit"))
		_, _ = w.Write([]byte(`{
  "numFound": 2,
  "docs": [
    {
      "title": "Rumo & die Wunder im Dunkeln",
      "author_name": ["Walter Moers"],
      "publisher": ["Piper", "Goldmann"],
      "first_publish_year": 2003,
      "language": ["ger"],
      "isbn": ["3492045413", "9783492045414"],
      "cover_i": 98765
    },
    {
      "title": "Rumo",
      "subtitle": "Hörbuch",
      "author_name": ["Walter Moers"]
    }
  ]
}`))
	})

	results, err := NewOpenLibrary(server.opts()...).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{
		Title:  "Rumo",
		Author: "Moers",
		Series: "Zamonien",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "Piper", got.Publisher)
	assert.Equal(t, "2003", got.PublishDate)
	assert.Equal(t, "de", got.Language)
	assert.Equal(t, "9783492045414", got.ISBN)
	assert.Equal(t, []string{"9783492045414", "3492045413"}, got.AllISBNs)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/98765-L.jpg", got.CoverURL)
}

func TestPreferISBN13(t *testing.T) {
	got := preferISBN13([]string{"3492045413", "978-3-492-04541-4", "junk", "9783492045919"}, 2)
	assert.Equal(t, []string{"9783492045414", "9783492045919"}, got)

	assert.Empty(t, preferISBN13(nil, 5))
}

func TestExtractDescription(t *testing.T) {
	assert.Equal(t, "plain", extractDescription("plain"))
	assert.Equal(t, "typed", extractDescription(map[string]any{"type": "/type/text", "value": "typed"}))
	assert.Empty(t, extractDescription(42))
	assert.Empty(t, extractDescription(nil))
}
