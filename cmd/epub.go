package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/lepinkainen/shelf/internal/config"
	"github.com/lepinkainen/shelf/internal/epub"
	"github.com/lepinkainen/shelf/internal/fileutil"
)

// EpubCmd groups the EPUB commands
type EpubCmd struct {
	Patch EpubPatchCmd `cmd:"" help:"Rewrite EPUB metadata for the e-reader (series tags, title sort)"`
}

// EpubPatchCmd patches one or more EPUB files
type EpubPatchCmd struct {
	Files   []string `arg:"" help:"EPUB files to patch" type:"existingfile"`
	Title   string   `help:"Clean display title to set, e.g. \"letzte Fähre, Die\""`
	Output  string   `short:"o" help:"Output file (single input only); defaults to <name>.patched.epub"`
	InPlace bool     `help:"Replace the input files"`
}

func (e *EpubPatchCmd) Run() error {
	if e.Output != "" && len(e.Files) > 1 {
		return errors.New("--output needs exactly one input file")
	}
	if e.Output != "" && e.InPlace {
		return errors.New("--output and --in-place are mutually exclusive")
	}

	var errs []error
	for _, src := range e.Files {
		if err := e.patch(src); err != nil {
			slog.Error("Failed to patch EPUB", "file", src, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *EpubPatchCmd) patch(src string) error {
	dst := e.Output
	switch {
	case e.InPlace:
		dst = src
	case dst == "":
		dst = patchedName(src)
	}
	if dst != src && fileutil.FileExists(dst) && !config.OverwriteFiles {
		return fmt.Errorf("%s already exists, use --overwrite to replace it", dst)
	}

	result, err := epub.PatchFile(src, dst, e.Title)
	if epub.IsStructuralError(err) {
		_, _ = fmt.Fprintf(out, "%s: not a patchable EPUB, left unchanged\n", src)
		return err
	}
	if err != nil {
		return err
	}
	if !result.Changed {
		_, _ = fmt.Fprintf(out, "%s: already compatible (EPUB %s)\n", src, result.Version)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s: patched EPUB %s metadata -> %s\n", src, result.Version, dst)
	return nil
}

func patchedName(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + ".patched" + ext
}
