package bookmeta

import "strings"

// audiobookTokens mark a non-text edition when found in a title, description
// or category. Matching is case-insensitive on NFC text.
var audiobookTokens = []string{
	"audiobook",
	"audio book",
	"hörbuch",
	"hörspiel",
	"audio cd",
	"audio-cd",
	"mp3-cd",
	"ungekürzt",
	"gelesen von",
	"narrated by",
}

// ContainsAudiobookToken reports whether text mentions any audiobook marker.
func ContainsAudiobookToken(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(NormalizeText(text))
	for _, token := range audiobookTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// IsAudiobook reports whether any of the given texts (titles, descriptions,
// category names, binding labels) marks the candidate as an audio edition.
func IsAudiobook(texts ...string) bool {
	for _, text := range texts {
		if ContainsAudiobookToken(text) {
			return true
		}
	}
	return false
}

// FilterAudiobooks drops results whose title or description carries an
// audiobook marker.
func FilterAudiobooks(results []SearchResult) []SearchResult {
	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if IsAudiobook(r.Title, r.Description) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
