package providers

import (
	"context"
	"net/http"
	"testing"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isbndbBookJSON = `{
  "book": {
    "title": "Rumo & Die Wunder Im Dunkeln",
    "title_long": "Rumo & Die Wunder Im Dunkeln: Ein Roman in zwei Büchern",
    "isbn": "3492045413",
    "isbn10": "3492045413",
    "isbn13": "9783492045414",
    "publisher": "Piper",
    "language": "de",
    "date_published": "2003",
    "binding": "Hardcover",
    "synopsis": "Rumo ist ein Wolpertinger.",
    "image": "https://images.isbndb.com/covers/54/14/9783492045414.jpg",
    "authors": ["Moers, Walter"],
    "subjects": ["Fantasy"]
  }
}`

const isbndbSearchJSON = `{
  "total": 2,
  "data": [
    {
      "title": "Ensel und Krete",
      "isbn13": "9783442453832",
      "authors": ["Walter Moers"],
      "binding": "Paperback"
    },
    {
      "title": "Ensel und Krete",
      "isbn13": "9783899401234",
      "authors": ["Walter Moers"],
      "binding": "Audio CD"
    }
  ]
}`

func TestISBNdb_NoKeyMakesNoRequest(t *testing.T) {
	server := newTestServer(t, failOnRequest(t))
	isbndb := NewISBNdb(server.opts(WithAPIKey("  "))...)

	assert.False(t, isbndb.Configured())

	results, err := isbndb.SearchByISBN(context.Background(), "9783492045414")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = isbndb.SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{Title: "Rumo"})
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Zero(t, server.requests.Load())
}

func TestISBNdb_SearchByISBN(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book/9783492045414", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(isbndbBookJSON))
	})

	results, err := NewISBNdb(server.opts(WithAPIKey("test-key"))...).SearchByISBN(context.Background(), "978-3492-045414")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "Rumo & Die Wunder Im Dunkeln", got.Title)
	assert.Equal(t, "Moers, Walter", got.Author)
	assert.Equal(t, "Rumo ist ein Wolpertinger.", got.Description)
	assert.Equal(t, "9783492045414", got.ISBN)
	assert.Equal(t, []string{"9783492045414", "3492045413"}, got.AllISBNs)
	assert.Equal(t, "https://images.isbndb.com/covers/54/14/9783492045414.jpg", got.CoverURL)
	assert.Equal(t, bookmeta.SourceISBNdb, got.Source)
}

func TestISBNdb_NotFound(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorMessage": "Not Found"}`))
	})

	results, err := NewISBNdb(server.opts(WithAPIKey("test-key"))...).SearchByISBN(context.Background(), "9780000000000")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestISBNdb_SearchByTitleAuthor(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/books", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Ensel und Krete", q.Get("title"))
		assert.Equal(t, "Moers", q.Get("author"))
		assert.Equal(t, "Zamonien", q.Get("text"))
		assert.Equal(t, "10", q.Get("pageSize"))
		_, _ = w.Write([]byte(isbndbSearchJSON))
	})

	results, err := NewISBNdb(server.opts(WithAPIKey("test-key"))...).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{
		Title:  "Ensel und Krete",
		Author: "Moers",
		Series: "Zamonien",
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "audio binding must be dropped")
	assert.Equal(t, "9783442453832", results[0].ISBN)
}

func TestISBNdb_LegacyBooksField(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 1, "books": [{"title": "Rumo", "isbn13": "9783492045414"}]}`))
	})

	results, err := NewISBNdb(server.opts(WithAPIKey("k"))...).SearchByTitleAuthor(context.Background(), bookmeta.TitleQuery{Title: "Rumo"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, bookmeta.UnknownAuthor, results[0].Author)
}

func TestIsAudioBinding(t *testing.T) {
	assert.True(t, isAudioBinding("Audio CD"))
	assert.True(t, isAudioBinding("Audible Audiobook"))
	assert.True(t, isAudioBinding("MP3 CD"))
	assert.False(t, isAudioBinding("Hardcover"))
	assert.False(t, isAudioBinding(""))
}
