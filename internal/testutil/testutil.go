// Package testutil holds the fixtures shared by the shelf tests: a sandboxed
// working directory, config isolation, loopback HTTP servers and in-memory
// ZIP archives.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestEnv is a per-test directory. Relative paths given to its methods are
// resolved inside it; paths escaping it fail the test.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

// NewTestEnv returns an environment rooted at t.TempDir().
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{t: t, rootDir: t.TempDir()}
}

// RootDir returns the directory backing the environment.
func (e *TestEnv) RootDir() string {
	return e.rootDir
}

// Path joins elem below the root and returns the absolute path.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()

	path := filepath.Join(append([]string{e.rootDir}, elem...)...)
	rel, err := filepath.Rel(e.rootDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", path, e.rootDir)
	}
	return path
}

// WriteFile writes content to path, creating parent directories.
func (e *TestEnv) WriteFile(path string, content []byte) {
	e.t.Helper()

	abs := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", abs, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		e.t.Fatalf("failed to write %q: %v", abs, err)
	}
}

// ReadFile returns the content of path.
func (e *TestEnv) ReadFile(path string) []byte {
	e.t.Helper()

	data, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read %q: %v", path, err)
	}
	return data
}

// MkdirAll creates path and its parents.
func (e *TestEnv) MkdirAll(path string) {
	e.t.Helper()

	if err := os.MkdirAll(e.Path(path), 0o755); err != nil {
		e.t.Fatalf("failed to create directory %q: %v", path, err)
	}
}

// FileExists reports whether path exists.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()

	_, err := os.Stat(e.Path(path))
	return err == nil
}

// RequireFileExists fails the test when path does not exist.
func (e *TestEnv) RequireFileExists(path string) {
	e.t.Helper()

	if !e.FileExists(path) {
		e.t.Fatalf("expected %q to exist", e.Path(path))
	}
}
