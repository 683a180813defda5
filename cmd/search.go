package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/catalog"
	"github.com/lepinkainen/shelf/internal/config"
	"github.com/lepinkainen/shelf/internal/fileutil"
	"github.com/lepinkainen/shelf/internal/resolver"
)

// SearchCmd looks up metadata and optionally adds a result to the catalog
type SearchCmd struct {
	ISBN          string `help:"ISBN to look up; hyphens are ignored"`
	Title         string `short:"t" help:"Title to search for"`
	Author        string `short:"a" help:"Author to search for"`
	Series        string `short:"s" help:"Series to search for"`
	JSON          bool   `help:"Print the results as JSON"`
	Output        string `short:"o" help:"Write the results as JSON to this file"`
	Add           bool   `help:"Add the chosen result to the library"`
	NoInteractive bool   `help:"Use the best result instead of asking"`
}

func (s *SearchCmd) Run(ctx context.Context) error {
	query := bookmeta.TitleQuery{Title: s.Title, Author: s.Author, Series: s.Series}
	if strings.TrimSpace(s.ISBN) == "" && query.IsBlank() {
		return errors.New("provide --isbn or at least one of --title, --author, --series")
	}

	snap, err := loadSettings()
	if err != nil {
		return err
	}
	searcher, err := newSearcher(snap)
	if err != nil {
		return err
	}

	var (
		report *resolver.Report
		label  string
	)
	if strings.TrimSpace(s.ISBN) != "" {
		label = s.ISBN
		report, err = searcher.SearchByISBN(ctx, s.ISBN)
	} else {
		label = describeQuery(query)
		report, err = searcher.SearchByTitleAuthor(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("search for %s failed: %w", label, err)
	}
	reportOutcomes(report)

	if s.Output != "" {
		written, err := fileutil.WriteJSONFile(report.Results, s.Output, config.OverwriteFiles)
		if err != nil {
			return err
		}
		if !written {
			slog.Warn("Output file exists, use --overwrite to replace it", "file", s.Output)
		}
	}

	if s.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.Results); err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
	} else {
		printResults(label, report.Results)
	}

	if !s.Add {
		return nil
	}
	chosen, err := choose(label, report.Results, !s.NoInteractive)
	if err != nil || chosen == nil {
		return err
	}
	return addToLibrary(ctx, snap.Language, *chosen)
}

// ScanCmd adds the book behind a scanned barcode
type ScanCmd struct {
	Code          string `arg:"" help:"Barcode or ISBN as read by the scanner"`
	NoInteractive bool   `help:"Use the best result instead of asking"`
}

func (s *ScanCmd) Run(ctx context.Context) error {
	scanned, err := bookmeta.ParseScannedISBN(s.Code)
	if err != nil {
		return err
	}

	snap, err := loadSettings()
	if err != nil {
		return err
	}

	lib, err := openCatalog(snap.Language)
	if err != nil {
		return err
	}
	existing, err := lib.FindByISBN(scanned.ISBN13)
	closeErr := lib.Close()
	if err == nil {
		_, _ = fmt.Fprintf(out, "Already in library: #%d %s\n", existing.ID, existing.Label())
		return closeErr
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return errors.Join(err, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}

	searcher, err := newSearcher(snap)
	if err != nil {
		return err
	}
	report, err := searcher.SearchByISBN(ctx, scanned.ISBN13)
	if err != nil {
		return fmt.Errorf("search for %s failed: %w", scanned.ISBN13, err)
	}
	reportOutcomes(report)
	if report.Empty() {
		return fmt.Errorf("no book found for ISBN %s", scanned.ISBN13)
	}

	chosen, err := choose(scanned.ISBN13, report.Results, !s.NoInteractive)
	if err != nil || chosen == nil {
		return err
	}
	return addToLibrary(ctx, snap.Language, *chosen)
}

func addToLibrary(ctx context.Context, lang string, r bookmeta.SearchResult) error {
	lib, err := openCatalog(lang)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	book, added, err := addResult(ctx, lib, r)
	if err != nil {
		return err
	}
	if !added {
		_, _ = fmt.Fprintf(out, "Already in library: #%d %s\n", book.ID, book.Label())
		return nil
	}
	_, _ = fmt.Fprintf(out, "Added #%d %s\n", book.ID, book.Label())
	return nil
}

func printResults(label string, results []bookmeta.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(out, "No results for %s\n", label)
		return
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(out, "%2d. %s\n    %s [%s]\n", i+1, r.Title, r.Author, r.Source)
		var details []string
		if r.Series != "" {
			series := r.Series
			if r.SeriesNumber != "" {
				series += " #" + r.SeriesNumber
			}
			details = append(details, series)
		}
		for _, d := range []string{r.Publisher, r.PublishDate, r.Language} {
			if d != "" {
				details = append(details, d)
			}
		}
		if r.ISBN != "" {
			details = append(details, "ISBN "+r.ISBN)
		}
		if len(details) > 0 {
			_, _ = fmt.Fprintf(out, "    %s\n", strings.Join(details, " | "))
		}
	}
}
