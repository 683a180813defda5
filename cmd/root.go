package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/shelf/internal/cache"
	"github.com/lepinkainen/shelf/internal/config"
	shelferrors "github.com/lepinkainen/shelf/internal/errors"
)

// out receives command output; tests replace it.
var out io.Writer = os.Stdout

// CLI represents the complete command structure for the shelf application
type CLI struct {
	// Global flags
	Verbose      bool `short:"v" help:"Enable debug logging"`
	Overwrite    bool `help:"Overwrite existing output files"`
	UpdateCovers bool `help:"Re-download cover images even if they already exist"`

	CatalogDBFile string `help:"Path to the catalog SQLite database file (default ./shelf.db)"`
	CacheDBFile   string `help:"Path to cache SQLite database file (default ./cache.db)"`
	CacheTTL      string `help:"Cache time-to-live duration, e.g. 720h for 30 days"`
	SettingsFile  string `help:"Path to the settings file (default ./settings.yaml)"`

	Search   SearchCmd   `cmd:"" help:"Look up book metadata by ISBN or title and author"`
	Scan     ScanCmd     `cmd:"" help:"Add a book from a scanned barcode"`
	Epub     EpubCmd     `cmd:"" help:"Work with EPUB files"`
	Library  LibraryCmd  `cmd:"" help:"Manage the book catalog"`
	Settings SettingsCmd `cmd:"" help:"Show and change settings"`
	Cache    CacheCmd    `cmd:"" help:"Manage the provider response cache"`
}

// CacheCmd groups the cache maintenance commands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Drop every cached response of one source"`
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("shelf"),
		kong.Description("Resolve book metadata, keep a local library and tidy EPUB metadata."),
		kong.UsageOnError(),
	}, options...)
	return kong.New(cli, options...)
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(false)
	initConfig()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		slog.Error("Failed to build command line parser", "error", err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if cli.Verbose {
		initLogging(true)
	}
	updateGlobalConfig(&cli)

	if err := runCommand(kctx); err != nil {
		if shelferrors.IsStopProcessingError(err) {
			slog.Info("Stopped", "reason", err)
			return
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// runCommand runs the selected command with a context cancelled on interrupt.
func runCommand(kctx *kong.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run()
}

func initConfig() {
	config.SetDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	// Bind specific environment variables to config keys
	for key, env := range map[string]string{
		"isbndb.api_key":      "ISBNDB_API_KEY",
		"googlebooks.api_key": "GOOGLE_BOOKS_API_KEY",
		"datasette.token":     "DATASETTE_TOKEN",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			slog.Error("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
		slog.Info("Config file not found, writing default config file...")
		if err := viper.SafeWriteConfig(); err != nil {
			slog.Error("Error writing config file", "error", err)
		}
	}

	// Initialize global config
	config.InitConfig()
}

// updateGlobalConfig applies the global flags. Path flags only override the
// config file when given.
func updateGlobalConfig(cli *CLI) {
	config.SetOverwriteFiles(cli.Overwrite)
	config.SetUpdateCovers(cli.UpdateCovers)

	for key, value := range map[string]string{
		"catalog.dbfile": cli.CatalogDBFile,
		"cache.dbfile":   cli.CacheDBFile,
		"cache.ttl":      cli.CacheTTL,
		"settings.file":  cli.SettingsFile,
	} {
		if value != "" {
			viper.Set(key, value)
		}
	}
}

func initLogging(verbose bool) {
	level := logLevel(os.Getenv("SHELF_LOG_LEVEL"))
	if verbose {
		level = slog.LevelDebug
	}

	// Create a human-readable handler for logging
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
