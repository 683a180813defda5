// Package epub rewrites the package metadata of EPUB files into the dialect
// expected by the target e-reader. The package document is edited as text so
// that every byte outside the rewritten spots is preserved.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const containerPath = "META-INF/container.xml"

// Result describes a successful patch.
type Result struct {
	// OPFPath is the package document path inside the archive.
	OPFPath string
	Version string
	// Changed is false when the package document needed no edits; the
	// original bytes are returned and no archive is written.
	Changed bool
}

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// Patch rewrites the EPUB in data. cleanTitle is optional. When nothing
// changes, data itself is returned.
func Patch(data []byte, cleanTitle string) ([]byte, *Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}

	opfPath, err := findOPFPath(zr)
	if err != nil {
		return nil, nil, err
	}

	opfFile, original, err := readOPF(zr, opfPath)
	if err != nil {
		return nil, nil, err
	}

	result := &Result{OPFPath: opfPath, Version: Version(original)}
	patched := PatchOPF(original, cleanTitle)
	if patched == original {
		return data, result, nil
	}
	result.Changed = true

	var buf bytes.Buffer
	if err := repackage(zr, opfFile, patched, &buf); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), result, nil
}

// PatchFile patches the EPUB at src and writes the result to dst, which may
// equal src. The output is written to a temporary file beside dst and renamed
// into place only after the archive is complete. Nothing is written when the
// file needs no changes or when patching fails.
func PatchFile(src, dst, cleanTitle string) (*Result, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &PatchError{Path: src, Err: err}
	}

	out, result, err := Patch(data, cleanTitle)
	if err != nil {
		return nil, &PatchError{Path: src, Err: err}
	}
	if !result.Changed {
		slog.Debug("EPUB already compatible, nothing to write", "path", src, "version", result.Version)
		return result, nil
	}

	if err := writeAtomic(dst, out); err != nil {
		return nil, &PatchError{Path: src, Err: err}
	}
	slog.Debug("Patched EPUB", "source", src, "output", dst, "version", result.Version, "opf", result.OPFPath)
	return result, nil
}

func findOPFPath(zr *zip.Reader) (string, error) {
	f, err := zr.Open(containerPath)
	if err != nil {
		return "", ErrContainerNotFound
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContainerNotFound, err)
	}

	var c container
	if err := xml.Unmarshal(raw, &c); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOPFNotFound, err)
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", ErrOPFNotFound
}

func readOPF(zr *zip.Reader, opfPath string) (*zip.File, string, error) {
	for _, f := range zr.File {
		if f.Name != opfPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrOPFUnreadable, err)
		}
		defer func() { _ = rc.Close() }()

		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrOPFUnreadable, err)
		}
		return f, string(raw), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrOPFUnreadable, opfPath)
}

// repackage copies every entry of zr to w unchanged except opfFile, whose
// content is replaced with opf. Entry order and compression are preserved.
func repackage(zr *zip.Reader, opfFile *zip.File, opf string, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, f := range zr.File {
		if f != opfFile {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}

		header := f.FileHeader
		fw, err := zw.CreateHeader(&header)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		if _, err := io.WriteString(fw, opf); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

func writeAtomic(dst string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}

// IsStructuralError reports whether err means the file is not a patchable
// EPUB, as opposed to an I/O failure.
func IsStructuralError(err error) bool {
	return errors.Is(err, ErrNotArchive) || errors.Is(err, ErrContainerNotFound) ||
		errors.Is(err, ErrOPFNotFound) || errors.Is(err, ErrOPFUnreadable)
}
