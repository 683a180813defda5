// Package bookmeta defines the common book-metadata shape that every provider
// adapter emits, together with the text heuristics shared by the adapters:
// Unicode normalization, audiobook detection, series extraction and sort titles.
package bookmeta

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// UnknownTitle is used when a provider payload has no title.
	UnknownTitle = "Unknown Title"
	// UnknownAuthor is used when a provider payload has no author.
	UnknownAuthor = "Unknown Author"

	// AuthorSeparator joins multiple author names into SearchResult.Author.
	AuthorSeparator = ", "
)

// Source identifies the provider a SearchResult came from. The declaration
// order doubles as the provider priority: lower values win ties.
type Source int

const (
	SourceNationalLibrary Source = iota
	SourceGoogleBooks
	SourceISBNdb
	SourceOpenLibrary
)

var sourceNames = map[Source]string{
	SourceNationalLibrary: "NATIONAL_LIBRARY",
	SourceGoogleBooks:     "GOOGLE_BOOKS",
	SourceISBNdb:          "ISBN_DB",
	SourceOpenLibrary:     "OPEN_LIBRARY",
}

// AllSources lists every source in priority order.
var AllSources = []Source{SourceNationalLibrary, SourceGoogleBooks, SourceISBNdb, SourceOpenLibrary}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Priority returns the tie-break rank of the source (lower = preferred).
func (s Source) Priority() int {
	return int(s)
}

// ParseSource converts a source name (as produced by String) back to a Source.
func ParseSource(name string) (Source, error) {
	for _, src := range AllSources {
		if strings.EqualFold(src.String(), name) {
			return src, nil
		}
	}
	return 0, fmt.Errorf("unknown source %q", name)
}

// MarshalJSON encodes the source by name.
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a source name.
func (s *Source) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSource(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SearchResult is a candidate book record produced by a provider adapter.
// Empty strings mean "not provided".
type SearchResult struct {
	Title            string   `json:"title"`
	Author           string   `json:"author"`
	Description      string   `json:"description,omitempty"`
	Publisher        string   `json:"publisher,omitempty"`
	PublishDate      string   `json:"publish_date,omitempty"`
	Language         string   `json:"language,omitempty"`
	OriginalLanguage string   `json:"original_language,omitempty"`
	Series           string   `json:"series,omitempty"`
	SeriesNumber     string   `json:"series_number,omitempty"`
	ISBN             string   `json:"isbn,omitempty"`
	AllISBNs         []string `json:"all_isbns,omitempty"`
	CoverURL         string   `json:"cover_url,omitempty"`
	Source           Source   `json:"source"`
}

// Finalize enforces the SearchResult invariants: NFC title and author with
// literal defaults, trimmed optional fields, an https cover URL, normalized
// identifiers with the primary ISBN first in AllISBNs.
func (r *SearchResult) Finalize() {
	r.Title = NormalizeText(r.Title)
	if r.Title == "" {
		r.Title = UnknownTitle
	}
	r.Author = NormalizeText(r.Author)
	if r.Author == "" {
		r.Author = UnknownAuthor
	}

	r.Description = strings.TrimSpace(r.Description)
	r.Publisher = NormalizeText(r.Publisher)
	r.PublishDate = strings.TrimSpace(r.PublishDate)
	r.Language = NormalizeLanguage(r.Language)
	r.OriginalLanguage = NormalizeLanguage(r.OriginalLanguage)
	r.Series = NormalizeText(r.Series)
	r.SeriesNumber = NormalizeSeriesNumber(r.SeriesNumber)
	if r.Series == "" {
		r.SeriesNumber = ""
	}
	r.CoverURL = SecureURL(r.CoverURL)

	r.ISBN = NormalizeISBN(r.ISBN)
	isbns := make([]string, 0, len(r.AllISBNs)+1)
	if r.ISBN != "" {
		isbns = append(isbns, r.ISBN)
	}
	for _, isbn := range r.AllISBNs {
		isbns = append(isbns, NormalizeISBN(isbn))
	}
	r.AllISBNs = uniqueNonEmpty(isbns)
	if r.ISBN == "" && len(r.AllISBNs) > 0 {
		r.ISBN = r.AllISBNs[0]
	}
}

// PopulatedFields counts the optional fields carrying a value. Title and
// author count only when they are not the placeholder defaults.
func (r *SearchResult) PopulatedFields() int {
	count := 0
	for _, v := range []string{
		r.Description, r.Publisher, r.PublishDate, r.Language, r.OriginalLanguage,
		r.Series, r.SeriesNumber, r.ISBN, r.CoverURL,
	} {
		if v != "" {
			count++
		}
	}
	if r.Title != "" && r.Title != UnknownTitle {
		count++
	}
	if r.Author != "" && r.Author != UnknownAuthor {
		count++
	}
	return count
}

// FillFrom copies every blank optional field of r from other.
func (r *SearchResult) FillFrom(other SearchResult) {
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	if r.Title == UnknownTitle && other.Title != UnknownTitle {
		r.Title = other.Title
	}
	if r.Author == UnknownAuthor && other.Author != UnknownAuthor {
		r.Author = other.Author
	}
	fill(&r.Description, other.Description)
	fill(&r.Publisher, other.Publisher)
	fill(&r.PublishDate, other.PublishDate)
	fill(&r.Language, other.Language)
	fill(&r.OriginalLanguage, other.OriginalLanguage)
	if r.Series == "" && other.Series != "" {
		r.Series = other.Series
		r.SeriesNumber = other.SeriesNumber
	}
	fill(&r.CoverURL, other.CoverURL)
	fill(&r.ISBN, other.ISBN)
	r.AllISBNs = uniqueNonEmpty(append(append([]string{}, r.AllISBNs...), other.AllISBNs...))
}

// TitleQuery is a free-text search by title, author and series. Blank terms
// are ignored.
type TitleQuery struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Series string `json:"series,omitempty"`
}

// Trimmed returns a copy with every term trimmed.
func (q TitleQuery) Trimmed() TitleQuery {
	return TitleQuery{
		Title:  strings.TrimSpace(q.Title),
		Author: strings.TrimSpace(q.Author),
		Series: strings.TrimSpace(q.Series),
	}
}

// IsBlank reports whether every term is empty after trimming.
func (q TitleQuery) IsBlank() bool {
	t := q.Trimmed()
	return t.Title == "" && t.Author == "" && t.Series == ""
}

// CacheKey returns a stable key for caching the query results.
func (q TitleQuery) CacheKey() string {
	t := q.Trimmed()
	return strings.ToLower(NormalizeText(t.Title) + "|" + NormalizeText(t.Author) + "|" + NormalizeText(t.Series))
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
