package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/config"
	"github.com/lepinkainen/shelf/internal/resolver"
	"github.com/lepinkainen/shelf/internal/settings"
	"github.com/lepinkainen/shelf/internal/testutil"
	"github.com/lepinkainen/shelf/internal/tui"
)

type fakeSearcher struct {
	report  *resolver.Report
	err     error
	isbns   []string
	queries []bookmeta.TitleQuery
}

func (f *fakeSearcher) SearchByISBN(_ context.Context, isbn string) (*resolver.Report, error) {
	f.isbns = append(f.isbns, isbn)
	return f.report, f.err
}

func (f *fakeSearcher) SearchByTitleAuthor(_ context.Context, q bookmeta.TitleQuery) (*resolver.Report, error) {
	f.queries = append(f.queries, q)
	return f.report, f.err
}

// setupCmdTest points every file the commands touch into a sandbox, captures
// command output and installs searcher as the resolver.
func setupCmdTest(t *testing.T, searcher *fakeSearcher) (*testutil.TestEnv, *bytes.Buffer) {
	t.Helper()

	env := testutil.NewTestEnv(t)
	testutil.ResetConfig(t)
	origOut := out
	origSearcher := newSearcher
	origSelect := selectCandidate

	t.Cleanup(func() {
		out = origOut
		newSearcher = origSearcher
		selectCandidate = origSelect
		_ = cache.ResetGlobalCache()
	})

	config.SetDefaults()
	testutil.SetupTestCache(t, env)
	testutil.SetupTestCatalog(t, env)
	viper.Set("settings.file", env.Path("settings.yaml"))

	var buf bytes.Buffer
	out = &buf

	newSearcher = func(settings.Snapshot) (bookSearcher, error) {
		if searcher == nil {
			t.Fatal("unexpected resolver use")
		}
		return searcher, nil
	}
	selectCandidate = func(string, []bookmeta.SearchResult) (tui.SelectionResult, error) {
		t.Fatal("unexpected interactive selection")
		return tui.SelectionResult{}, nil
	}
	return env, &buf
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	cli := &CLI{}
	parser, err := newParser(cli, kong.Exit(func(code int) {
		t.Fatalf("unexpected Kong exit %d", code)
	}))
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

// run parses and executes a command line the way Execute does.
func run(t *testing.T, args ...string) error {
	t.Helper()

	cli, kctx := parseCLI(t, args...)
	updateGlobalConfig(cli)
	return runCommand(kctx)
}

func TestUpdateGlobalConfig(t *testing.T) {
	setupCmdTest(t, nil)

	cli := &CLI{
		Overwrite:     true,
		UpdateCovers:  true,
		CatalogDBFile: "/tmp/custom-shelf.db",
		CacheTTL:      "12h",
	}
	updateGlobalConfig(cli)

	assert.True(t, config.OverwriteFiles)
	assert.True(t, config.UpdateCovers)
	assert.Equal(t, "/tmp/custom-shelf.db", viper.GetString("catalog.dbfile"))
	assert.Equal(t, "12h", viper.GetString("cache.ttl"))
	assert.Contains(t, viper.GetString("cache.dbfile"), "test-cache.db", "unset flags keep the configured value")
}

func TestCLIFlagsParse(t *testing.T) {
	setupCmdTest(t, nil)

	cli, _ := parseCLI(t,
		"--verbose",
		"--overwrite",
		"--cache-db-file", "/custom/cache.db",
		"--cache-ttl", "24h",
		"--catalog-db-file", "/custom/shelf.db",
		"search", "--title", "Die Stadt", "-a", "Walter Moers", "--series", "Zamonien", "--json", "--add", "--no-interactive")

	assert.True(t, cli.Verbose)
	assert.True(t, cli.Overwrite)
	assert.Equal(t, "/custom/cache.db", cli.CacheDBFile)
	assert.Equal(t, "24h", cli.CacheTTL)
	assert.Equal(t, "/custom/shelf.db", cli.CatalogDBFile)
	assert.Equal(t, "Die Stadt", cli.Search.Title)
	assert.Equal(t, "Walter Moers", cli.Search.Author)
	assert.Equal(t, "Zamonien", cli.Search.Series)
	assert.True(t, cli.Search.JSON)
	assert.True(t, cli.Search.Add)
	assert.True(t, cli.Search.NoInteractive)
}

func TestCLIDefaultFlags(t *testing.T) {
	setupCmdTest(t, nil)

	cli, _ := parseCLI(t, "library", "list")

	assert.False(t, cli.Verbose)
	assert.False(t, cli.Overwrite)
	assert.False(t, cli.UpdateCovers)
	assert.Empty(t, cli.CacheDBFile)
	assert.Equal(t, "any", cli.Library.List.Read)
	assert.Equal(t, "any", cli.Library.List.Owned)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.in))
		})
	}
}

func TestInitLogging(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	t.Setenv("SHELF_LOG_LEVEL", "warn")
	require.NotPanics(t, func() { initLogging(false) })
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))

	require.NotPanics(t, func() { initLogging(true) })
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}

func TestCacheInvalidateCommand(t *testing.T) {
	setupCmdTest(t, nil)

	require.NoError(t, run(t, "cache", "invalidate", "googlebooks"))

	err := run(t, "cache", "invalidate", "amazon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache source")
}
