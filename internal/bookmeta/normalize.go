package bookmeta

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText converts s to Unicode NFC and trims surrounding whitespace.
// Applying it twice yields the same string as applying it once.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// MatchKey folds s for equality comparison across providers: NFC, lower case,
// whitespace runs collapsed to a single space.
func MatchKey(s string) string {
	s = strings.ToLower(NormalizeText(s))
	return whitespaceRun.ReplaceAllString(s, " ")
}

// JoinAuthors normalizes author names, drops blanks and duplicates and joins
// the rest with AuthorSeparator.
func JoinAuthors(names []string) string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		cleaned = append(cleaned, NormalizeText(name))
	}
	return strings.Join(uniqueNonEmpty(cleaned), AuthorSeparator)
}

// NormalizeISBN strips hyphens and spaces from an ISBN and upper-cases the
// ISBN-10 check character.
func NormalizeISBN(isbn string) string {
	normalized := strings.ReplaceAll(isbn, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	return strings.ToUpper(strings.TrimSpace(normalized))
}

// SecureURL rewrites http:// URLs to https:// and adds the scheme to
// protocol-relative URLs. Other values are returned trimmed.
func SecureURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(strings.ToLower(raw), "http://"):
		return "https://" + raw[len("http://"):]
	}
	return raw
}

// NormalizeSeriesNumber trims a series number and uses a dot as the decimal
// separator ("4,5" becomes "4.5"). Leading zeros of the integer part are kept
// as provided.
func NormalizeSeriesNumber(n string) string {
	n = strings.TrimSpace(n)
	return strings.Replace(n, ",", ".", 1)
}
