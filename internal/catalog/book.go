// Package catalog stores the user's books in a local SQLite database.
package catalog

import (
	"time"

	"github.com/lepinkainen/shelf/internal/bookmeta"
)

// Book is a catalog entry. ID is assigned by the store.
type Book struct {
	ID               int64      `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	Author           string     `json:"author" yaml:"author"`
	Description      string     `json:"description,omitempty" yaml:"description,omitempty"`
	Publisher        string     `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	PublishDate      string     `json:"publish_date,omitempty" yaml:"publish_date,omitempty"`
	Language         string     `json:"language,omitempty" yaml:"language,omitempty"`
	OriginalLanguage string     `json:"original_language,omitempty" yaml:"original_language,omitempty"`
	Series           string     `json:"series,omitempty" yaml:"series,omitempty"`
	SeriesNumber     string     `json:"series_number,omitempty" yaml:"series_number,omitempty"`
	ISBN             string     `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	CoverURL         string     `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
	CoverPath        string     `json:"cover_path,omitempty" yaml:"cover_path,omitempty"`
	Owned            bool       `json:"owned" yaml:"owned"`
	Read             bool       `json:"read" yaml:"read"`
	SortTitle        string     `json:"sort_title" yaml:"sort_title"`
	Source           string     `json:"source,omitempty" yaml:"source,omitempty"`
	AddedAt          time.Time  `json:"added_at" yaml:"added_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	SentToReader     bool       `json:"sent_to_reader" yaml:"sent_to_reader"`
	SyncedToCloud    bool       `json:"synced_to_cloud" yaml:"synced_to_cloud"`
}

// FromSearchResult creates an owned, unread book from a resolved candidate.
func FromSearchResult(r bookmeta.SearchResult) Book {
	return Book{
		Title:            r.Title,
		Author:           r.Author,
		Description:      r.Description,
		Publisher:        r.Publisher,
		PublishDate:      r.PublishDate,
		Language:         r.Language,
		OriginalLanguage: r.OriginalLanguage,
		Series:           r.Series,
		SeriesNumber:     r.SeriesNumber,
		ISBN:             r.ISBN,
		CoverURL:         r.CoverURL,
		Owned:            true,
		Source:           r.Source.String(),
	}
}

// normalize enforces the stored invariants and derives the sort title.
func (b *Book) normalize() {
	b.Title = bookmeta.NormalizeText(b.Title)
	if b.Title == "" {
		b.Title = bookmeta.UnknownTitle
	}
	b.Author = bookmeta.NormalizeText(b.Author)
	if b.Author == "" {
		b.Author = bookmeta.UnknownAuthor
	}
	b.ISBN = bookmeta.NormalizeISBN(b.ISBN)
	b.Language = bookmeta.NormalizeLanguage(b.Language)
	b.OriginalLanguage = bookmeta.NormalizeLanguage(b.OriginalLanguage)
	b.SeriesNumber = bookmeta.NormalizeSeriesNumber(b.SeriesNumber)
	b.SortTitle = bookmeta.SortTitle(b.Title, b.Language)
}

// Label returns "Title (Author)" for log and prompt output.
func (b Book) Label() string {
	return b.Title + " (" + b.Author + ")"
}
