package epub

import (
	"archive/zip"
	"bytes"
	"os"
	"testing"

	"github.com/lepinkainen/shelf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const chapterXHTML = `<html><body><p>Hildegunst von Mythenmetz</p></body></html>`

func buildEPUB(t *testing.T, opf string) []byte {
	t.Helper()
	return testutil.BuildZip(t,
		testutil.ZipEntry{Name: "mimetype", Content: "application/epub+zip", Store: true},
		testutil.ZipEntry{Name: "META-INF/container.xml", Content: containerXML},
		testutil.ZipEntry{Name: "OEBPS/content.opf", Content: opf},
		testutil.ZipEntry{Name: "OEBPS/chapter1.xhtml", Content: chapterXHTML},
	)
}

func TestPatch_RewritesOnlyPackageDocument(t *testing.T) {
	data := buildEPUB(t, epub3OPF)

	out, result, err := Patch(data, "letzte Fähre, Die")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "3.0", result.Version)
	assert.Equal(t, "OEBPS/content.opf", result.OPFPath)

	contents, names := testutil.ReadZip(t, out)
	assert.Equal(t, []string{"mimetype", "META-INF/container.xml", "OEBPS/content.opf", "OEBPS/chapter1.xhtml"}, names)
	assert.Equal(t, epub3PatchedWithTitle, contents["OEBPS/content.opf"])
	assert.Equal(t, "application/epub+zip", contents["mimetype"])
	assert.Equal(t, containerXML, contents["META-INF/container.xml"])
	assert.Equal(t, chapterXHTML, contents["OEBPS/chapter1.xhtml"])

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	assert.Equal(t, zip.Store, zr.File[0].Method, "mimetype must stay uncompressed")
	assert.Equal(t, zip.Deflate, zr.File[2].Method)
}

func TestPatch_SecondPassIsNoOp(t *testing.T) {
	first, result, err := Patch(buildEPUB(t, epub3OPF), "")
	require.NoError(t, err)
	require.True(t, result.Changed)

	second, result, err := Patch(first, "")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, first, second)
}

func TestPatch_NoChangesReturnsInput(t *testing.T) {
	data := buildEPUB(t, epub2Patched)

	out, result, err := Patch(data, "")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Same(t, &data[0], &out[0])
}

func TestPatch_StructuralErrors(t *testing.T) {
	noFullPath := `<container><rootfiles><rootfile media-type="application/oebps-package+xml"/></rootfiles></container>`

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "not an archive",
			data: []byte("definitely not a zip"),
			want: ErrNotArchive,
		},
		{
			name: "missing container",
			data: testutil.BuildZip(t, testutil.ZipEntry{Name: "OEBPS/content.opf", Content: epub3OPF}),
			want: ErrContainerNotFound,
		},
		{
			name: "rootfile without full-path",
			data: testutil.BuildZip(t,
				testutil.ZipEntry{Name: "META-INF/container.xml", Content: noFullPath},
				testutil.ZipEntry{Name: "OEBPS/content.opf", Content: epub3OPF},
			),
			want: ErrOPFNotFound,
		},
		{
			name: "malformed container",
			data: testutil.BuildZip(t, testutil.ZipEntry{Name: "META-INF/container.xml", Content: "<container><rootfiles>"}),
			want: ErrOPFNotFound,
		},
		{
			name: "package document missing",
			data: testutil.BuildZip(t, testutil.ZipEntry{Name: "META-INF/container.xml", Content: containerXML}),
			want: ErrOPFUnreadable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, result, err := Patch(tt.data, "")
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsStructuralError(err))
			assert.Nil(t, out)
			assert.Nil(t, result)
		})
	}
}

func TestPatchFile_WritesOutput(t *testing.T) {
	env := testutil.NewTestEnv(t)
	src := env.Path("book.epub")
	dst := env.Path("book.kobo.epub")
	original := buildEPUB(t, epub2OPF)
	require.NoError(t, os.WriteFile(src, original, 0o644))

	result, err := PatchFile(src, dst, "letzte Fähre, Die")
	require.NoError(t, err)
	assert.True(t, result.Changed)

	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	contents, _ := testutil.ReadZip(t, written)
	assert.Equal(t, epub2PatchedWithTitle, contents["OEBPS/content.opf"])

	unchanged, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, unchanged)

	entries, err := os.ReadDir(env.RootDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files may remain")
}

func TestPatchFile_InPlace(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("book.epub")
	require.NoError(t, os.WriteFile(path, buildEPUB(t, epub3OPF), 0o644))

	_, err := PatchFile(path, path, "")
	require.NoError(t, err)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	contents, _ := testutil.ReadZip(t, written)
	assert.Equal(t, epub3Patched, contents["OEBPS/content.opf"])
}

func TestPatchFile_NoChangesWritesNothing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	src := env.Path("book.epub")
	dst := env.Path("out.epub")
	require.NoError(t, os.WriteFile(src, buildEPUB(t, epub3Patched), 0o644))

	result, err := PatchFile(src, dst, "")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.NoFileExists(t, dst)
}

func TestPatchFile_MissingFullPathLeavesOriginal(t *testing.T) {
	env := testutil.NewTestEnv(t)
	src := env.Path("broken.epub")
	original := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "META-INF/container.xml", Content: `<container><rootfiles><rootfile/></rootfiles></container>`},
		testutil.ZipEntry{Name: "OEBPS/content.opf", Content: epub3OPF},
	)
	require.NoError(t, os.WriteFile(src, original, 0o644))

	_, err := PatchFile(src, src, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOPFNotFound)
	var patchErr *PatchError
	assert.ErrorAs(t, err, &patchErr)
	assert.Contains(t, err.Error(), src)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, after)

	entries, err := os.ReadDir(env.RootDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPatchFile_MissingSource(t *testing.T) {
	env := testutil.NewTestEnv(t)

	_, err := PatchFile(env.Path("nope.epub"), env.Path("out.epub"), "")
	require.Error(t, err)
	var patchErr *PatchError
	assert.ErrorAs(t, err, &patchErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
