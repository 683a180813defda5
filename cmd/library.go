package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lepinkainen/shelf/internal/backup"
	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/catalog"
	"github.com/lepinkainen/shelf/internal/config"
	"github.com/lepinkainen/shelf/internal/fileutil"
)

// LibraryCmd groups the catalog commands
type LibraryCmd struct {
	List   LibraryListCmd   `cmd:"" help:"List books"`
	Show   LibraryShowCmd   `cmd:"" help:"Show one book"`
	Add    LibraryAddCmd    `cmd:"" help:"Add a book by ISBN or by hand"`
	Delete LibraryDeleteCmd `cmd:"" help:"Delete books"`
	Read   LibraryReadCmd   `cmd:"" help:"Record reading progress"`
	Sent   LibrarySentCmd   `cmd:"" help:"Record that a book was sent to the e-reader"`
	Cover  LibraryCoverCmd  `cmd:"" help:"Download or set a book cover"`
	Export LibraryExportCmd `cmd:"" help:"Export the library to a ZIP archive"`
	Import LibraryImportCmd `cmd:"" help:"Import a library archive"`
	Push   LibraryPushCmd   `cmd:"" help:"Publish the library to a Datasette instance"`
}

// withCatalog opens the catalog with the configured collation for the
// duration of fn.
func withCatalog(fn func(lib *catalog.Store) error) error {
	snap, err := loadSettings()
	if err != nil {
		return err
	}
	lib, err := openCatalog(snap.Language)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()
	return fn(lib)
}

func parseTristate(value string) *bool {
	var b bool
	switch value {
	case "yes":
		b = true
	case "no":
		b = false
	default:
		return nil
	}
	return &b
}

// LibraryListCmd lists books
type LibraryListCmd struct {
	Query  string `arg:"" optional:"" help:"Text matched against title, author, series and ISBN"`
	Series string `help:"Only books of this series"`
	Read   string `enum:"any,yes,no" default:"any" help:"Filter by read state (any, yes, no)"`
	Owned  string `enum:"any,yes,no" default:"any" help:"Filter by ownership (any, yes, no)"`
	JSON   bool   `help:"Print as JSON"`
}

func (l *LibraryListCmd) Run() error {
	return withCatalog(func(lib *catalog.Store) error {
		books, err := lib.Query(catalog.Filter{
			Text:   l.Query,
			Series: l.Series,
			Read:   parseTristate(l.Read),
			Owned:  parseTristate(l.Owned),
		})
		if err != nil {
			return err
		}
		if l.JSON {
			return printJSON(books)
		}
		for _, b := range books {
			mark := " "
			if b.Read {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %4d  %s", mark, b.ID, b.Label())
			if b.Series != "" {
				line += fmt.Sprintf("  {%s %s}", b.Series, b.SeriesNumber)
			}
			_, _ = fmt.Fprintln(out, strings.TrimRight(line, " "))
		}
		_, _ = fmt.Fprintf(out, "%d books\n", len(books))
		return nil
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// LibraryShowCmd shows a book
type LibraryShowCmd struct {
	ID   int64 `arg:"" help:"Book id"`
	JSON bool  `help:"Print as JSON"`
}

func (s *LibraryShowCmd) Run() error {
	return withCatalog(func(lib *catalog.Store) error {
		b, err := lib.Get(s.ID)
		if err != nil {
			return err
		}
		if s.JSON {
			return printJSON(b)
		}

		fields := []struct{ name, value string }{
			{"Title", b.Title},
			{"Author", b.Author},
			{"Sort title", b.SortTitle},
			{"Series", strings.TrimSpace(b.Series + " " + b.SeriesNumber)},
			{"Publisher", b.Publisher},
			{"Published", b.PublishDate},
			{"Language", b.Language},
			{"ISBN", b.ISBN},
			{"Source", b.Source},
			{"Cover", b.CoverPath},
			{"Added", b.AddedAt.Local().Format(time.DateOnly)},
			{"Owned", yesNo(b.Owned)},
			{"Read", yesNo(b.Read)},
			{"On reader", yesNo(b.SentToReader)},
			{"In cloud", yesNo(b.SyncedToCloud)},
		}
		if b.StartedAt != nil {
			fields = append(fields, struct{ name, value string }{"Started", b.StartedAt.Local().Format(time.DateOnly)})
		}
		if b.FinishedAt != nil {
			fields = append(fields, struct{ name, value string }{"Finished", b.FinishedAt.Local().Format(time.DateOnly)})
		}
		for _, f := range fields {
			if f.value != "" {
				_, _ = fmt.Fprintf(out, "%-11s %s\n", f.name+":", f.value)
			}
		}
		if b.Description != "" {
			_, _ = fmt.Fprintf(out, "\n%s\n", b.Description)
		}
		return nil
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// LibraryAddCmd adds a book
type LibraryAddCmd struct {
	ISBN          string `help:"Look up the book by ISBN"`
	Title         string `short:"t" help:"Title (manual entry)"`
	Author        string `short:"a" help:"Author (manual entry)"`
	Series        string `help:"Series (manual entry)"`
	SeriesNumber  string `help:"Number within the series (manual entry)"`
	Language      string `help:"Language code (manual entry)"`
	NotOwned      bool   `help:"Record the book as not owned, e.g. a wish-list entry"`
	NoInteractive bool   `help:"Use the best result instead of asking"`
}

func (a *LibraryAddCmd) Run(ctx context.Context) error {
	if strings.TrimSpace(a.ISBN) != "" {
		scanned, err := bookmeta.ParseScannedISBN(a.ISBN)
		if err != nil {
			return err
		}
		return (&ScanCmd{Code: scanned.ISBN13, NoInteractive: a.NoInteractive}).Run(ctx)
	}
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("provide --isbn or --title")
	}

	return withCatalog(func(lib *catalog.Store) error {
		book := &catalog.Book{
			Title:        a.Title,
			Author:       a.Author,
			Series:       a.Series,
			SeriesNumber: a.SeriesNumber,
			Language:     a.Language,
			Owned:        !a.NotOwned,
			Source:       "MANUAL",
		}
		if err := lib.Create(book); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Added #%d %s\n", book.ID, book.Label())
		return nil
	})
}

// LibraryDeleteCmd deletes books
type LibraryDeleteCmd struct {
	IDs []int64 `arg:"" name:"id" help:"Ids of the books to delete"`
}

func (d *LibraryDeleteCmd) Run() error {
	return withCatalog(func(lib *catalog.Store) error {
		deleted, err := lib.DeleteMany(d.IDs)
		if err != nil {
			return err
		}
		store := coverStore()
		for _, id := range d.IDs {
			if err := store.Remove(id); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintf(out, "Deleted %d of %d books\n", deleted, len(d.IDs))
		return nil
	})
}

// LibraryReadCmd records reading progress
type LibraryReadCmd struct {
	ID     int64 `arg:"" help:"Book id"`
	Start  bool  `help:"Record that reading started instead of finished"`
	Unread bool  `help:"Mark the book unread again"`
}

func (r *LibraryReadCmd) Run() error {
	if r.Start && r.Unread {
		return errors.New("--start and --unread are mutually exclusive")
	}
	return withCatalog(func(lib *catalog.Store) error {
		now := time.Now()
		var err error
		switch {
		case r.Start:
			err = lib.MarkStarted(r.ID, now)
		case r.Unread:
			err = lib.MarkRead(r.ID, false, now)
		default:
			err = lib.MarkRead(r.ID, true, now)
		}
		if err != nil {
			return err
		}
		b, err := lib.Get(r.ID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "#%d %s: read=%s\n", b.ID, b.Label(), yesNo(b.Read))
		return nil
	})
}

// LibrarySentCmd records delivery to the e-reader
type LibrarySentCmd struct {
	ID    int64 `arg:"" help:"Book id"`
	Cloud bool  `help:"Record the upload to the reader's cloud storage instead"`
	Undo  bool  `help:"Clear the flag"`
}

func (s *LibrarySentCmd) Run() error {
	return withCatalog(func(lib *catalog.Store) error {
		if s.Cloud {
			return lib.MarkSynced(s.ID, !s.Undo)
		}
		return lib.MarkSent(s.ID, !s.Undo)
	})
}

// LibraryCoverCmd downloads or sets a cover
type LibraryCoverCmd struct {
	ID   int64  `arg:"" help:"Book id"`
	File string `help:"Use this image file instead of downloading" type:"existingfile"`
	URL  string `help:"Download from this URL instead of the stored cover URL"`
}

func (c *LibraryCoverCmd) Run(ctx context.Context) error {
	return withCatalog(func(lib *catalog.Store) error {
		b, err := lib.Get(c.ID)
		if err != nil {
			return err
		}

		store := coverStore()
		var path string
		if c.File != "" {
			f, err := os.Open(c.File)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			result, err := store.Save(b.ID, f)
			if err != nil {
				return err
			}
			path = result.Path
		} else {
			coverURL := c.URL
			if coverURL == "" {
				coverURL = b.CoverURL
			}
			force := config.UpdateCovers || c.URL != ""
			result, err := store.Download(ctx, b.ID, coverURL, force)
			if err != nil {
				return err
			}
			path = result.Path
			if !result.Downloaded {
				_, _ = fmt.Fprintf(out, "Cover exists: %s (use --update-covers to refresh)\n", path)
			}
		}

		if err := lib.SetCoverPath(b.ID, path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "#%d %s: cover %s\n", b.ID, b.Label(), path)
		return nil
	})
}

// LibraryExportCmd writes a backup archive
type LibraryExportCmd struct {
	Output string `arg:"" optional:"" default:"shelf-backup.zip" help:"Archive to write"`
}

func (e *LibraryExportCmd) Run() error {
	return withCatalog(func(lib *catalog.Store) error {
		var buf bytes.Buffer
		stats, err := backup.Export(&buf, lib, coverStore())
		if err != nil {
			return err
		}
		written, err := fileutil.WriteFileWithOverwrite(e.Output, buf.Bytes(), 0644, config.OverwriteFiles)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", e.Output, err)
		}
		if !written {
			return fmt.Errorf("%s already exists, use --overwrite to replace it", e.Output)
		}
		_, _ = fmt.Fprintf(out, "Exported %d books and %d covers to %s\n", stats.Books, stats.Covers, e.Output)
		return nil
	})
}

// LibraryImportCmd restores a backup archive
type LibraryImportCmd struct {
	File string `arg:"" help:"Archive to import" type:"existingfile"`
}

func (i *LibraryImportCmd) Run() error {
	data, err := os.ReadFile(i.File)
	if err != nil {
		return err
	}
	return withCatalog(func(lib *catalog.Store) error {
		stats, err := backup.Import(data, lib, coverStore())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Imported %d books (%d added, %d updated, %d covers)\n",
			stats.Books, stats.Added, stats.Updated, stats.Covers)
		return nil
	})
}

// LibraryPushCmd publishes the catalog to Datasette
type LibraryPushCmd struct {
	URL   string `help:"Datasette base URL (default datasette.url from config)"`
	Token string `help:"Datasette API token (default datasette.token or DATASETTE_TOKEN)"`
}

func (p *LibraryPushCmd) Run(ctx context.Context) error {
	baseURL := p.URL
	if baseURL == "" {
		baseURL = config.DatasetteURL()
	}
	if baseURL == "" {
		return errors.New("datasette URL is required (provide via --url flag or datasette.url in config)")
	}
	token := p.Token
	if token == "" {
		token = config.DatasetteToken()
	}

	client, err := catalog.NewDatasetteClient(baseURL, token)
	if err != nil {
		return err
	}
	return withCatalog(func(lib *catalog.Store) error {
		books, err := lib.All()
		if err != nil {
			return err
		}
		if err := client.Push(ctx, books); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Pushed %d books to %s\n", len(books), baseURL)
		return nil
	})
}
