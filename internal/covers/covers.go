// Package covers downloads book cover images and stores them as resized
// JPEG files named after the catalog id.
package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lepinkainen/shelf/internal/fileutil"
)

const (
	// DefaultMaxWidth is the width covers are scaled down to.
	DefaultMaxWidth = 600
	jpegQuality     = 85
)

// ErrNoCoverURL is returned when a book has no cover URL to download.
var ErrNoCoverURL = errors.New("book has no cover URL")

// HTTPDoer is the subset of *http.Client used for downloads.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store saves covers under a directory.
type Store struct {
	dir      string
	maxWidth int
	client   HTTPDoer
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithMaxWidth sets the width covers are scaled down to.
func WithMaxWidth(width int) Option {
	return func(s *Store) {
		if width > 0 {
			s.maxWidth = width
		}
	}
}

// New creates a cover store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		maxWidth: DefaultMaxWidth,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes the outcome of Download or Save.
type Result struct {
	// Path is the local cover file.
	Path string
	// Downloaded is false when an existing cover was kept.
	Downloaded bool
}

// Path returns the cover file of the book with the given id.
func (s *Store) Path(id int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(id, 10)+".jpg")
}

// Exists reports whether the book already has a local cover.
func (s *Store) Exists(id int64) bool {
	return fileutil.FileExists(s.Path(id))
}

// Download fetches coverURL and stores it as the cover of book id. An
// existing cover is kept unless force is set.
func (s *Store) Download(ctx context.Context, id int64, coverURL string, force bool) (*Result, error) {
	coverURL = strings.TrimSpace(coverURL)
	if coverURL == "" {
		return nil, ErrNoCoverURL
	}

	result := &Result{Path: s.Path(id)}
	if s.Exists(id) && !force {
		slog.Debug("Cover already exists, skipping download", "path", result.Path)
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cover request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d downloading cover from %s", resp.StatusCode, coverURL)
	}

	if err := s.write(id, resp.Body); err != nil {
		return nil, err
	}
	slog.Info("Downloaded cover", "id", id, "path", result.Path)
	result.Downloaded = true
	return result, nil
}

// Save decodes an image from r and stores it as the cover of book id,
// replacing any existing cover.
func (s *Store) Save(id int64, r io.Reader) (*Result, error) {
	if err := s.write(id, r); err != nil {
		return nil, err
	}
	return &Result{Path: s.Path(id), Downloaded: true}, nil
}

// Remove deletes the cover of book id. A missing cover is not an error.
func (s *Store) Remove(id int64) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cover: %w", err)
	}
	return nil
}

func (s *Store) write(id int64, r io.Reader) error {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode cover image: %w", err)
	}
	if img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create covers directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".cover-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create cover file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cover file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		return fmt.Errorf("failed to store cover: %w", err)
	}
	return nil
}
