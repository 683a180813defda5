// Package backup exports the catalog to a ZIP archive and restores it.
//
// An archive holds library.yaml with every book, plus covers/<id>.jpg for
// books that have a local cover. Ids in the archive are those of the
// exporting catalog; import maps them to local ids.
package backup

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/lepinkainen/shelf/internal/catalog"
	"github.com/lepinkainen/shelf/internal/covers"
	"gopkg.in/yaml.v3"
)

const (
	libraryEntry = "library.yaml"
	coversDir    = "covers"

	// FormatVersion is written to every archive. Newer versions are rejected.
	FormatVersion = 1
)

// ErrInvalidArchive is returned when an archive has no readable library.yaml.
var ErrInvalidArchive = errors.New("invalid backup archive")

// Library is the catalog surface used by Export and Import.
type Library interface {
	All() ([]catalog.Book, error)
	FindByISBN(isbn string) (*catalog.Book, error)
	FindByTitleAuthor(title, author string) (*catalog.Book, error)
	Create(b *catalog.Book) error
	Update(b *catalog.Book) error
	SetCoverPath(id int64, path string) error
}

type document struct {
	Version    int            `yaml:"version"`
	ExportedAt time.Time      `yaml:"exported_at"`
	Books      []catalog.Book `yaml:"books"`
}

// Stats summarises an export or import.
type Stats struct {
	Books   int
	Added   int
	Updated int
	Covers  int
}

// Export writes every book of lib, and the covers found in store, to w. A nil
// store exports no covers.
func Export(w io.Writer, lib Library, store *covers.Store) (*Stats, error) {
	books, err := lib.All()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	doc := document{Version: FormatVersion, ExportedAt: time.Now().UTC(), Books: books}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal library: %w", err)
	}

	zw := zip.NewWriter(w)
	entry, err := zw.Create(libraryEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", libraryEntry, err)
	}
	if _, err := entry.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", libraryEntry, err)
	}

	stats := &Stats{Books: len(books)}
	for _, b := range books {
		if store == nil || !store.Exists(b.ID) {
			continue
		}
		if err := addCover(zw, b.ID, store.Path(b.ID)); err != nil {
			return nil, err
		}
		stats.Covers++
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	slog.Debug("Exported library", "books", stats.Books, "covers", stats.Covers)
	return stats, nil
}

func coverEntry(id int64) string {
	return path.Join(coversDir, strconv.FormatInt(id, 10)+".jpg")
}

func addCover(zw *zip.Writer, id int64, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read cover %s: %w", file, err)
	}
	// JPEG data does not compress further.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: coverEntry(id), Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create cover entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write cover entry: %w", err)
	}
	return nil
}

// Import restores the archive in data into lib. Books are matched by ISBN,
// or by title and author when they have none; matches are updated in place
// and everything else is added. Covers are restored into store when it is
// not nil.
func Import(data []byte, lib Library, store *covers.Store) (*Stats, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	doc, err := readDocument(zr)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Books: len(doc.Books)}
	for _, b := range doc.Books {
		archiveID := b.ID
		existing, err := findExisting(lib, b)
		if err != nil {
			return stats, err
		}

		// Cover paths are local to the exporting machine.
		b.CoverPath = ""
		if existing != nil {
			b.ID = existing.ID
			b.CoverPath = existing.CoverPath
			if err := lib.Update(&b); err != nil {
				return stats, fmt.Errorf("failed to update %s: %w", b.Label(), err)
			}
			stats.Updated++
		} else {
			b.ID = 0
			if err := lib.Create(&b); err != nil {
				return stats, fmt.Errorf("failed to add %s: %w", b.Label(), err)
			}
			stats.Added++
		}

		if store == nil {
			continue
		}
		restored, err := restoreCover(zr, archiveID, b.ID, store)
		if err != nil {
			slog.Warn("Failed to restore cover", "book", b.Label(), "error", err)
			continue
		}
		if restored != "" {
			if err := lib.SetCoverPath(b.ID, restored); err != nil {
				return stats, err
			}
			stats.Covers++
		}
	}

	slog.Debug("Imported library", "added", stats.Added, "updated", stats.Updated, "covers", stats.Covers)
	return stats, nil
}

func readDocument(zr *zip.Reader) (*document, error) {
	f, err := zr.Open(libraryEntry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s missing", ErrInvalidArchive, libraryEntry)
	}
	defer func() { _ = f.Close() }()

	var doc document
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("%w: format version %d is newer than supported %d", ErrInvalidArchive, doc.Version, FormatVersion)
	}
	return &doc, nil
}

func findExisting(lib Library, b catalog.Book) (*catalog.Book, error) {
	var (
		existing *catalog.Book
		err      error
	)
	if b.ISBN != "" {
		existing, err = lib.FindByISBN(b.ISBN)
	} else {
		existing, err = lib.FindByTitleAuthor(b.Title, b.Author)
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", b.Label(), err)
	}
	return existing, nil
}

func restoreCover(zr *zip.Reader, archiveID, id int64, store *covers.Store) (string, error) {
	f, err := zr.Open(coverEntry(archiveID))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	result, err := store.Save(id, f)
	if err != nil {
		return "", err
	}
	return result.Path, nil
}
