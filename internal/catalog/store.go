package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no book has the requested id.
var ErrNotFound = errors.New("book not found")

// Store manages the catalog database.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	path     string
	collator language.Tag
}

// Option configures a Store.
type Option func(*Store)

// WithCollation sets the language whose collation orders query results.
// Unknown tags fall back to German.
func WithCollation(lang string) Option {
	return func(s *Store) {
		if tag, err := language.Parse(lang); err == nil {
			s.collator = tag
		}
	}
}

// Open opens the catalog at dbPath, creating the schema when needed.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps in-memory
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to catalog database: %w", err), closeErr)
	}
	if _, err := db.Exec(booksSchema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create catalog schema: %w", err), closeErr)
	}

	s := &Store{db: db, path: dbPath, collator: language.German}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertBook(e execer, b *Book) error {
	b.normalize()
	if b.AddedAt.IsZero() {
		b.AddedAt = time.Now().UTC()
	}

	result, err := e.Exec(`INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, bookArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get book id: %w", err)
	}
	b.ID = id
	return nil
}

func bookArgs(b *Book) []any {
	return []any{
		b.Title, b.Author, b.Description, b.Publisher, b.PublishDate, b.Language, b.OriginalLanguage,
		b.Series, b.SeriesNumber, b.ISBN, b.CoverURL, b.CoverPath, b.Owned, b.Read, b.SortTitle, b.Source,
		b.AddedAt, nullTime(b.StartedAt), nullTime(b.FinishedAt), b.SentToReader, b.SyncedToCloud,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Create inserts b and sets its ID, sort title and, when unset, AddedAt.
func (s *Store) Create(b *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := insertBook(s.db, b); err != nil {
		return err
	}
	slog.Debug("Book added", "id", b.ID, "title", b.Title)
	return nil
}

// CreateMany inserts all books in a single transaction.
func (s *Store) CreateMany(books []*Book) error {
	if len(books) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	for _, b := range books {
		if err := insertBook(tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update stores every field of b, recomputing its sort title.
func (s *Store) Update(b *Book) error {
	b.normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE books SET
		title = ?, author = ?, description = ?, publisher = ?, publish_date = ?, language = ?,
		original_language = ?, series = ?, series_number = ?, isbn = ?, cover_url = ?, cover_path = ?,
		owned = ?, read = ?, sort_title = ?, source = ?, added_at = ?, started_at = ?, finished_at = ?,
		sent_to_reader = ?, synced_to_cloud = ?
		WHERE id = ?`, append(bookArgs(b), b.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update book %d: %w", b.ID, err)
	}
	return requireRow(result, b.ID)
}

func requireRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Get returns the book with the given id.
func (s *Store) Get(id int64) (*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*Book, error) {
	var b Book
	var started, finished sql.NullTime
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.Publisher, &b.PublishDate, &b.Language,
		&b.OriginalLanguage, &b.Series, &b.SeriesNumber, &b.ISBN, &b.CoverURL, &b.CoverPath, &b.Owned, &b.Read,
		&b.SortTitle, &b.Source, &b.AddedAt, &started, &finished, &b.SentToReader, &b.SyncedToCloud)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		b.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		b.FinishedAt = &t
	}
	return &b, nil
}

// All returns every book ordered by id.
func (s *Store) All() ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, ` + bookColumns + ` FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// Delete removes the book with the given id.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	return requireRow(result, id)
}

// DeleteMany removes the given books in one transaction and returns how many
// existed.
func (s *Store) DeleteMany(ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int64
	for _, id := range ids {
		result, err := tx.Exec(`DELETE FROM books WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete book %d: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// FindByISBN returns the book stored under isbn in either its ISBN-10 or
// ISBN-13 form.
func (s *Store) FindByISBN(isbn string) (*Book, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, bookmeta.ErrInvalidISBN
	}
	forms := []string{isbn}
	switch len(isbn) {
	case 10:
		if alt := bookmeta.ISBN10To13(isbn); alt != "" {
			forms = append(forms, alt)
		}
	case 13:
		if alt := bookmeta.ISBN13To10(isbn); alt != "" {
			forms = append(forms, alt)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(forms)), ", ")
	args := make([]any, len(forms))
	for i, f := range forms {
		args[i] = f
	}
	row := s.db.QueryRow(`SELECT id, `+bookColumns+` FROM books WHERE isbn IN (`+placeholders+`) ORDER BY id LIMIT 1`, args...)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: isbn %s", ErrNotFound, isbn)
	}
	return b, err
}

// FindByTitleAuthor returns the first book whose folded title and author
// equal the given ones.
func (s *Store) FindByTitleAuthor(title, author string) (*Book, error) {
	books, err := s.All()
	if err != nil {
		return nil, err
	}
	titleKey, authorKey := bookmeta.MatchKey(title), bookmeta.MatchKey(author)
	for i := range books {
		if bookmeta.MatchKey(books[i].Title) == titleKey && bookmeta.MatchKey(books[i].Author) == authorKey {
			return &books[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, title, author)
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	// Text matches title, author, series or ISBN, case-insensitively.
	Text   string
	Series string
	Owned  *bool
	Read   *bool
}

func (f Filter) matches(b Book) bool {
	if f.Owned != nil && b.Owned != *f.Owned {
		return false
	}
	if f.Read != nil && b.Read != *f.Read {
		return false
	}
	if f.Series != "" && bookmeta.MatchKey(b.Series) != bookmeta.MatchKey(f.Series) {
		return false
	}
	if text := bookmeta.MatchKey(f.Text); text != "" {
		haystack := bookmeta.MatchKey(strings.Join([]string{b.Title, b.Author, b.Series, b.ISBN}, " "))
		if !strings.Contains(haystack, text) {
			return false
		}
	}
	return true
}

// Query returns the books matching f ordered by sort title using the
// store's collation, then by series number and id.
func (s *Store) Query(f Filter) ([]Book, error) {
	books, err := s.All()
	if err != nil {
		return nil, err
	}

	matched := slices.DeleteFunc(books, func(b Book) bool { return !f.matches(b) })

	col := collate.New(s.collator, collate.IgnoreCase, collate.Numeric)
	slices.SortStableFunc(matched, func(a, b Book) int {
		if c := col.CompareString(a.SortTitle, b.SortTitle); c != 0 {
			return c
		}
		if c := col.CompareString(a.SeriesNumber, b.SeriesNumber); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return matched, nil
}

// MarkRead sets the read flag. Marking a book read records at as its finish
// time; marking it unread clears the finish time.
func (s *Store) MarkRead(id int64, read bool, at time.Time) error {
	var finished sql.NullTime
	if read {
		finished = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	return s.exec(id, `UPDATE books SET read = ?, finished_at = ? WHERE id = ?`, read, finished, id)
}

// MarkStarted records at as the time reading began.
func (s *Store) MarkStarted(id int64, at time.Time) error {
	return s.exec(id, `UPDATE books SET started_at = ? WHERE id = ?`, at.UTC(), id)
}

// MarkSent sets the flag recording that the book was sent to the e-reader.
func (s *Store) MarkSent(id int64, sent bool) error {
	return s.exec(id, `UPDATE books SET sent_to_reader = ? WHERE id = ?`, sent, id)
}

// MarkSynced sets the flag recording that the book was uploaded to the
// reader's cloud storage.
func (s *Store) MarkSynced(id int64, synced bool) error {
	return s.exec(id, `UPDATE books SET synced_to_cloud = ? WHERE id = ?`, synced, id)
}

// SetCoverPath records the local cover image of a book.
func (s *Store) SetCoverPath(id int64, path string) error {
	return s.exec(id, `UPDATE books SET cover_path = ? WHERE id = ?`, path, id)
}

func (s *Store) exec(id int64, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update book %d: %w", id, err)
	}
	return requireRow(result, id)
}
