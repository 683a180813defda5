package testutil

import (
	"archive/zip"
	"bytes"
	"testing"
)

// ZipEntry is a file placed in an archive built by BuildZip.
type ZipEntry struct {
	Name    string
	Content string
	// Store disables compression for the entry.
	Store bool
}

// BuildZip returns an in-memory ZIP archive holding entries in order.
func BuildZip(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		method := zip.Deflate
		if entry.Store {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: method})
		if err != nil {
			t.Fatalf("failed to create zip entry %q: %v", entry.Name, err)
		}
		if _, err := fw.Write([]byte(entry.Content)); err != nil {
			t.Fatalf("failed to write zip entry %q: %v", entry.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

// ReadZip returns the entries of an archive keyed by name, plus the entry
// names in archive order.
func ReadZip(t *testing.T, data []byte) (map[string]string, []string) {
	t.Helper()

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open zip: %v", err)
	}

	contents := make(map[string]string, len(r.File))
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open zip entry %q: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			t.Fatalf("failed to read zip entry %q: %v", f.Name, err)
		}
		_ = rc.Close()
		contents[f.Name] = buf.String()
		names = append(names, f.Name)
	}
	return contents, names
}
