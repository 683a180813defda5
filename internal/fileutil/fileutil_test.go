package fileutil

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/lepinkainen/shelf/internal/testutil"
)

func TestFileExists(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("book.epub", []byte("data"))
	assert.NoError(t, os.MkdirAll(env.Path("covers"), 0755))

	assert.True(t, FileExists(env.Path("book.epub")))
	assert.False(t, FileExists(env.Path("missing.epub")))
	assert.False(t, FileExists(env.Path("covers")), "directories are not files")
}

func TestWriteFileWithOverwrite(t *testing.T) {
	env := testutil.NewTestEnv(t)

	testCases := []struct {
		name           string
		file           string
		overwrite      bool
		existingData   []byte
		expectedResult bool
		expectedData   string
	}{
		{name: "new file in new directory", file: "out/new.txt", expectedResult: true, expectedData: "new content"},
		{name: "existing file with overwrite", file: "overwrite.txt", overwrite: true, existingData: []byte("old content"), expectedResult: true, expectedData: "new content"},
		{name: "existing file without overwrite", file: "keep.txt", existingData: []byte("old content"), expectedResult: false, expectedData: "old content"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := env.Path(tc.file)
			if tc.existingData != nil {
				assert.NoError(t, os.WriteFile(path, tc.existingData, 0644))
			}

			written, err := WriteFileWithOverwrite(path, []byte("new content"), 0644, tc.overwrite)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedResult, written)

			data, err := os.ReadFile(path)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedData, string(data))
		})
	}
}

func TestWriteJSONFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("results", "search.json")

	type row struct {
		Title string `json:"title"`
	}

	written, err := WriteJSONFile([]row{{Title: "Momo"}}, path, false)
	assert.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	var rows []row
	assert.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, []row{{Title: "Momo"}}, rows)
	assert.Contains(t, string(data), "\n  {")

	written, err = WriteJSONFile([]row{{Title: "Krabat"}}, path, false)
	assert.NoError(t, err)
	assert.False(t, written)

	written, err = WriteJSONFile([]row{{Title: "Krabat"}}, path, true)
	assert.NoError(t, err)
	assert.True(t, written)

	_, err = WriteJSONFile(map[string]any{"bad": make(chan int)}, env.Path("bad.json"), true)
	assert.Error(t, err)
}
