package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	shelferrors "github.com/lepinkainen/shelf/internal/errors"
	"github.com/lepinkainen/shelf/internal/ratelimit"
)

const (
	dnbBaseURL       = "https://services.dnb.de/sru/dnb"
	dnbCoverURL      = "https://portal.dnb.de/opac/mvb/cover"
	dnbRatePerSecond = 2
)

// DNB queries the Deutsche Nationalbibliothek SRU catalog and maps its
// MARC21-xml records.
type DNB struct {
	client
}

// Compile-time checks that DNB implements the provider interfaces.
var (
	_ bookmeta.Provider            = (*DNB)(nil)
	_ bookmeta.TitleAuthorSearcher = (*DNB)(nil)
)

// NewDNB creates a Deutsche Nationalbibliothek adapter.
func NewDNB(opts ...Option) *DNB {
	return &DNB{client: newClient("DNB", bookmeta.SourceNationalLibrary, dnbBaseURL, cache.DNBCacheTable,
		ratelimit.New("DNB", dnbRatePerSecond), opts)}
}

// sruResponse is an SRU 1.1 searchRetrieveResponse.
type sruResponse struct {
	NumberOfRecords int `xml:"numberOfRecords"`
	Records         []struct {
		Data struct {
			Record marcRecord `xml:"record"`
		} `xml:"recordData"`
	} `xml:"records>record"`
	Diagnostics []struct {
		URI     string `xml:"uri"`
		Message string `xml:"message"`
		Details string `xml:"details"`
	} `xml:"diagnostics>diagnostic"`
}

// SearchByISBN looks up an ISBN with the CQL num index.
func (d *DNB) SearchByISBN(ctx context.Context, isbn string) ([]bookmeta.SearchResult, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}
	return d.cached(isbnCacheKey(isbn), func() ([]bookmeta.SearchResult, error) {
		results, err := d.search(ctx, "isbn lookup", "num="+isbn)
		return preferISBN(results, isbn), err
	})
}

// SearchByTitleAuthor searches the tit and per indexes; the series term is
// matched against all words.
func (d *DNB) SearchByTitleAuthor(ctx context.Context, query bookmeta.TitleQuery) ([]bookmeta.SearchResult, error) {
	q := query.Trimmed()
	if q.IsBlank() {
		return []bookmeta.SearchResult{}, nil
	}

	var clauses []string
	if q.Title != "" {
		clauses = append(clauses, "tit="+cqlTerm(q.Title))
	}
	if q.Author != "" {
		clauses = append(clauses, "per="+cqlTerm(q.Author))
	}
	if q.Series != "" {
		clauses = append(clauses, "woe="+cqlTerm(q.Series))
	}
	cql := strings.Join(clauses, " and ")

	return d.cached(d.titleCacheKey(q), func() ([]bookmeta.SearchResult, error) {
		return d.search(ctx, "search", cql)
	})
}

func (d *DNB) search(ctx context.Context, op, cql string) ([]bookmeta.SearchResult, error) {
	params := url.Values{}
	params.Set("version", "1.1")
	params.Set("operation", "searchRetrieve")
	params.Set("query", cql)
	params.Set("recordSchema", "MARC21-xml")
	params.Set("maximumRecords", strconv.Itoa(d.maxResults))
	endpoint := fmt.Sprintf("%s?%s", d.baseURL, params.Encode())

	var resp sruResponse
	if err := d.getXML(ctx, op, endpoint, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return []bookmeta.SearchResult{}, nil
		}
		return nil, err
	}
	if len(resp.Diagnostics) > 0 {
		diag := resp.Diagnostics[0]
		return nil, shelferrors.NewDecodeError(d.name, op, fmt.Errorf("SRU diagnostic %s: %s %s", diag.URI, diag.Message, diag.Details))
	}

	results := make([]bookmeta.SearchResult, 0, len(resp.Records))
	for _, rec := range resp.Records {
		record := rec.Data.Record
		if record.isAudio() {
			slog.Debug("Skipping audio record", "provider", d.name, "leader", record.Leader)
			continue
		}
		result := record.toResult()
		if isbn := firstISBN(result.AllISBNs); isbn != "" {
			result.CoverURL = dnbCoverURL + "?isbn=" + isbn
		}
		results = append(results, result)
	}
	return d.finish(results), nil
}

func firstISBN(isbns []string) string {
	for _, isbn := range isbns {
		if len(isbn) == 13 {
			return isbn
		}
	}
	if len(isbns) > 0 {
		return isbns[0]
	}
	return ""
}

// cqlTerm quotes a CQL search term; embedded quotes are dropped.
func cqlTerm(term string) string {
	term = strings.ReplaceAll(term, `"`, "")
	if strings.ContainsAny(term, " \t=<>()/") {
		return `"` + term + `"`
	}
	return term
}
