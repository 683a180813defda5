package bookmeta

import (
	"regexp"
	"strings"
)

// SeriesMatch is the outcome of series extraction.
type SeriesMatch struct {
	Series string
	Number string
	// Title is the input title with the series part removed.
	Title string
}

var (
	// "Die Stadt der Träumenden Bücher (Zamonien, Band 3)"
	parenSeriesPattern = regexp.MustCompile(`^(.+?)\s*\(\s*([^()]+?)\s*[,;]\s*(?i:band|bd\.?|teil|buch|book|vol\.?|volume)\s*(\d+(?:[.,]\d+)?)\s*\)\s*$`)

	// "Perry Rhodan-Reihe: Die dritte Macht", "Narnia 3 - Der Ritt nach Narnia"
	prefixSeriesPattern = regexp.MustCompile(`^(.+?)(?:\s*:\s*|\s+[-–]\s+)(.+)$`)

	// Trailing "Band 3", "Bd. 3", "#3" or bare "3" on a series prefix.
	trailingNumberPattern = regexp.MustCompile(`^(.*?)[\s,;]*(?:(?i:band|bd\.?|teil|buch|book|vol\.?|volume)\s*|#\s*)?(\d+(?:[.,]\d+)?)$`)

	seriesKeywordPattern = regexp.MustCompile(`(?i)reihe|serie`)

	// Structured series fields: "Zamonien ; 3", "Zamonien, Bd. 3", "Zamonien #3".
	seriesFieldPattern = regexp.MustCompile(`^(.+?)\s*(?:[;,]|\s#)\s*(?:(?i:band|bd\.?|teil|buch|book|vol\.?|volume)\s*)?(\d+(?:[.,]\d+)?)\s*$`)

	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ExtractSeries recovers series information from a title when the provider
// has no series field. Patterns are tried in order and the first match wins:
//
//  1. "Title (Series, Band N)"
//  2. "Series: Title" or "Series - Title", only when the prefix contains
//     "Reihe"/"Serie" or ends in a number.
func ExtractSeries(title string) (SeriesMatch, bool) {
	title = NormalizeText(title)
	if title == "" {
		return SeriesMatch{}, false
	}

	if m := parenSeriesPattern.FindStringSubmatch(title); m != nil {
		return SeriesMatch{
			Title:  strings.TrimSpace(m[1]),
			Series: strings.TrimSpace(m[2]),
			Number: NormalizeSeriesNumber(m[3]),
		}, true
	}

	if m := prefixSeriesPattern.FindStringSubmatch(title); m != nil {
		prefix := strings.TrimSpace(m[1])
		rest := strings.TrimSpace(m[2])
		if rest == "" {
			return SeriesMatch{}, false
		}
		if n := trailingNumberPattern.FindStringSubmatch(prefix); n != nil {
			if series := strings.TrimRight(strings.TrimSpace(n[1]), " -–"); series != "" {
				return SeriesMatch{
					Title:  rest,
					Series: series,
					Number: NormalizeSeriesNumber(n[2]),
				}, true
			}
		}
		if seriesKeywordPattern.MatchString(prefix) {
			return SeriesMatch{Title: rest, Series: prefix}, true
		}
	}

	return SeriesMatch{}, false
}

// ParseSeriesField splits a structured series statement such as
// "Zamonien ; 3" into name and number. A statement without a number yields
// just the name.
func ParseSeriesField(field string) (series, number string) {
	field = strings.Trim(NormalizeText(field), " ;,.")
	if field == "" {
		return "", ""
	}
	if m := seriesFieldPattern.FindStringSubmatch(field); m != nil {
		return strings.TrimSpace(m[1]), NormalizeSeriesNumber(m[2])
	}
	return field, ""
}

// ParseSeriesVolume extracts the numeric part of a volume designation such as
// "Band 3" or "Bd. 4,5".
func ParseSeriesVolume(volume string) string {
	return NormalizeSeriesNumber(numberPattern.FindString(volume))
}

// ApplySeries fills r.Series/r.SeriesNumber from the title heuristics when the
// result has no series yet. The title is replaced by its series-free form.
func ApplySeries(r *SearchResult) {
	if r.Series != "" {
		return
	}
	if m, ok := ExtractSeries(r.Title); ok {
		r.Series = m.Series
		r.SeriesNumber = m.Number
		if m.Title != "" {
			r.Title = m.Title
		}
	}
}
