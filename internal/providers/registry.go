package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
)

// Names of the adapters accepted by Build, in priority order.
const (
	NameDNB         = "dnb"
	NameGoogleBooks = "googlebooks"
	NameISBNdb      = "isbndb"
	NameOpenLibrary = "openlibrary"
)

// Credentials carries the per-source API keys.
type Credentials struct {
	ISBNdbAPIKey      string
	GoogleBooksAPIKey string
}

// Build creates the named adapters, ordered by source priority. opts apply to
// every adapter; credentials go to the adapters that use them.
func Build(names []string, creds Credentials, opts ...Option) ([]bookmeta.Provider, error) {
	seen := make(map[string]bool, len(names))
	var built []bookmeta.Provider
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case NameDNB:
			built = append(built, NewDNB(opts...))
		case NameGoogleBooks:
			built = append(built, NewGoogleBooks(append(opts, WithAPIKey(creds.GoogleBooksAPIKey))...))
		case NameISBNdb:
			built = append(built, NewISBNdb(append(opts, WithAPIKey(creds.ISBNdbAPIKey))...))
		case NameOpenLibrary:
			built = append(built, NewOpenLibrary(opts...))
		default:
			return nil, fmt.Errorf("unknown provider %q; valid providers are: %s", name,
				strings.Join([]string{NameDNB, NameGoogleBooks, NameISBNdb, NameOpenLibrary}, ", "))
		}
	}

	sort.SliceStable(built, func(i, j int) bool {
		return built[i].Source().Priority() < built[j].Source().Priority()
	})
	return built, nil
}
