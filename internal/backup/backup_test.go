package backup

import (
	"bytes"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lepinkainen/shelf/internal/catalog"
	"github.com/lepinkainen/shelf/internal/covers"
	"github.com/lepinkainen/shelf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	lib    *catalog.Store
	covers *covers.Store
}

func newFixture(t *testing.T, env *testutil.TestEnv, name string) fixture {
	t.Helper()

	lib, err := catalog.Open(env.Path(name + ".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return fixture{lib: lib, covers: covers.New(env.Path(name + "-covers"))}
}

func coverImage(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := imaging.New(40, 60, color.NRGBA{G: 128, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func seed(t *testing.T, f fixture) (withCover, withoutISBN *catalog.Book) {
	t.Helper()

	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	withCover = &catalog.Book{
		Title: "Die Stadt der Träumenden Bücher", Author: "Walter Moers", ISBN: "9783492045919",
		Series: "Zamonien", SeriesNumber: "4", Owned: true, Read: true, FinishedAt: &finished,
	}
	withoutISBN = &catalog.Book{Title: "Momo", Author: "Michael Ende", Owned: true}
	require.NoError(t, f.lib.CreateMany([]*catalog.Book{withoutISBN, withCover}))

	result, err := f.covers.Save(withCover.ID, bytes.NewReader(coverImage(t)))
	require.NoError(t, err)
	require.NoError(t, f.lib.SetCoverPath(withCover.ID, result.Path))
	return withCover, withoutISBN
}

func TestExportImport_RoundTrip(t *testing.T) {
	env := testutil.NewTestEnv(t)
	src := newFixture(t, env, "src")
	seed(t, src)

	var archive bytes.Buffer
	stats, err := Export(&archive, src.lib, src.covers)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Books)
	assert.Equal(t, 1, stats.Covers)

	contents, names := testutil.ReadZip(t, archive.Bytes())
	assert.Equal(t, []string{"library.yaml", "covers/2.jpg"}, names)
	assert.Contains(t, contents["library.yaml"], "version: 1")
	assert.Contains(t, contents["library.yaml"], "title: Momo")

	dst := newFixture(t, env, "dst")
	// Occupy id 1 so imported ids differ from the archive ids.
	require.NoError(t, dst.lib.Create(&catalog.Book{Title: "Krabat", Author: "Otfried Preußler"}))

	stats, err = Import(archive.Bytes(), dst.lib, dst.covers)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 1, stats.Covers)

	moers, err := dst.lib.FindByISBN("9783492045919")
	require.NoError(t, err)
	assert.NotEqual(t, int64(2), moers.ID)
	assert.Equal(t, "Zamonien", moers.Series)
	assert.True(t, moers.Read)
	require.NotNil(t, moers.FinishedAt)
	assert.True(t, moers.FinishedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, dst.covers.Path(moers.ID), moers.CoverPath)
	assert.True(t, dst.covers.Exists(moers.ID))

	momo, err := dst.lib.FindByTitleAuthor("Momo", "Michael Ende")
	require.NoError(t, err)
	assert.Empty(t, momo.CoverPath)

	all, err := dst.lib.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestImport_UpdatesExistingBooks(t *testing.T) {
	env := testutil.NewTestEnv(t)
	f := newFixture(t, env, "lib")
	withCover, withoutISBN := seed(t, f)

	var archive bytes.Buffer
	_, err := Export(&archive, f.lib, nil)
	require.NoError(t, err)

	withoutISBN.Read = true
	require.NoError(t, f.lib.Update(withoutISBN))

	stats, err := Import(archive.Bytes(), f.lib, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 2, stats.Updated)

	momo, err := f.lib.Get(withoutISBN.ID)
	require.NoError(t, err)
	assert.False(t, momo.Read, "archive values replace local ones")

	moers, err := f.lib.Get(withCover.ID)
	require.NoError(t, err)
	assert.Equal(t, f.covers.Path(withCover.ID), moers.CoverPath, "local cover path is kept")
}

func TestImport_InvalidArchives(t *testing.T) {
	env := testutil.NewTestEnv(t)
	f := newFixture(t, env, "lib")

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not a zip", data: []byte("plain text")},
		{name: "missing library", data: testutil.BuildZip(t, testutil.ZipEntry{Name: "covers/1.jpg", Content: "x"})},
		{name: "broken yaml", data: testutil.BuildZip(t, testutil.ZipEntry{Name: "library.yaml", Content: "books: [unclosed"})},
		{name: "newer format", data: testutil.BuildZip(t, testutil.ZipEntry{Name: "library.yaml", Content: "version: 99\nbooks: []\n"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(tt.data, f.lib, f.covers)
			assert.ErrorIs(t, err, ErrInvalidArchive)
		})
	}
}

func TestImport_BadCoverIsSkipped(t *testing.T) {
	env := testutil.NewTestEnv(t)
	f := newFixture(t, env, "lib")

	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "library.yaml", Content: "version: 1\nbooks:\n  - id: 5\n    title: Krabat\n    author: Otfried Preußler\n"},
		testutil.ZipEntry{Name: "covers/5.jpg", Content: "not an image"},
	)

	stats, err := Import(data, f.lib, f.covers)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 0, stats.Covers)
}
