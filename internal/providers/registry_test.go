package providers

import (
	"context"
	"testing"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_OrdersByPriority(t *testing.T) {
	built, err := Build([]string{"openlibrary", " ISBNdb ", "dnb", "googlebooks", "dnb"}, Credentials{ISBNdbAPIKey: "key"})
	require.NoError(t, err)
	require.Len(t, built, 4)

	sources := make([]bookmeta.Source, 0, len(built))
	for _, p := range built {
		sources = append(sources, p.Source())
	}
	assert.Equal(t, bookmeta.AllSources, sources)

	isbndb, ok := built[2].(*ISBNdb)
	require.True(t, ok)
	assert.True(t, isbndb.Configured())
}

func TestBuild_UnknownProvider(t *testing.T) {
	_, err := Build([]string{"dnb", "amazon"}, Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "amazon"`)
}

func TestBuild_Empty(t *testing.T) {
	built, err := Build(nil, Credentials{})
	require.NoError(t, err)
	assert.Empty(t, built)
}

func TestBuild_AllSearchByTitle(t *testing.T) {
	built, err := Build([]string{NameDNB, NameGoogleBooks, NameISBNdb, NameOpenLibrary}, Credentials{})
	require.NoError(t, err)
	for _, p := range built {
		_, ok := p.(bookmeta.TitleAuthorSearcher)
		assert.True(t, ok, p.Name())
	}
}

func TestBlankTitleQueryMakesNoRequest(t *testing.T) {
	blank := bookmeta.TitleQuery{Title: " ", Author: "\t", Series: "\n"}
	tests := []struct {
		name     string
		searcher func(opts []Option) bookmeta.TitleAuthorSearcher
	}{
		{name: "dnb", searcher: func(opts []Option) bookmeta.TitleAuthorSearcher { return NewDNB(opts...) }},
		{name: "googlebooks", searcher: func(opts []Option) bookmeta.TitleAuthorSearcher { return NewGoogleBooks(opts...) }},
		{name: "isbndb", searcher: func(opts []Option) bookmeta.TitleAuthorSearcher {
			return NewISBNdb(append(opts, WithAPIKey("test-key"))...)
		}},
		{name: "openlibrary", searcher: func(opts []Option) bookmeta.TitleAuthorSearcher { return NewOpenLibrary(opts...) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, failOnRequest(t))

			results, err := tt.searcher(server.opts()).SearchByTitleAuthor(context.Background(), blank)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Zero(t, server.requests.Load())
		})
	}
}
