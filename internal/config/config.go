package config

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

// Default values for the configuration keys below.
const (
	DefaultCatalogDBFile   = "./shelf.db"
	DefaultCacheDBFile     = "./cache.db"
	DefaultCacheTTL        = "720h"
	DefaultCoversDir       = "./covers/"
	DefaultCoverMaxWidth   = 600
	DefaultResolverTimeout = 15 * time.Second
	DefaultMaxResults      = 10
	DefaultSettingsFile    = "./settings.yaml"
	DefaultLanguage        = "de"
)

// DefaultProviders lists the providers enabled when providers.enabled is unset,
// in priority order.
var DefaultProviders = []string{"dnb", "googlebooks", "isbndb", "openlibrary"}

// Global configuration variables
var (
	// OverwriteFiles controls whether existing output files should be overwritten
	OverwriteFiles bool
	// UpdateCovers forces cover downloads even when a local cover exists
	UpdateCovers bool
	// ISBNdbAPIKey is the API key for ISBNdb; blank disables the provider
	ISBNdbAPIKey string
	// GoogleBooksAPIKey is the optional API key for Google Books
	GoogleBooksAPIKey string
)

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("catalog.dbfile", DefaultCatalogDBFile)
	viper.SetDefault("cache.dbfile", DefaultCacheDBFile)
	viper.SetDefault("cache.ttl", DefaultCacheTTL)
	viper.SetDefault("covers.dir", DefaultCoversDir)
	viper.SetDefault("covers.maxwidth", DefaultCoverMaxWidth)
	viper.SetDefault("resolver.timeout", DefaultResolverTimeout.String())
	viper.SetDefault("resolver.max_results", DefaultMaxResults)
	viper.SetDefault("providers.enabled", DefaultProviders)
	viper.SetDefault("library.language", DefaultLanguage)
	viper.SetDefault("settings.file", DefaultSettingsFile)
	viper.SetDefault("overwrite_files", false)
}

// InitConfig initializes the global configuration
func InitConfig() {
	SetDefaults()

	// Get values from viper
	OverwriteFiles = viper.GetBool("overwrite_files")
	ISBNdbAPIKey = viper.GetString("isbndb.api_key")
	GoogleBooksAPIKey = viper.GetString("googlebooks.api_key")
}

// SetOverwriteFiles sets the OverwriteFiles flag
func SetOverwriteFiles(overwrite bool) {
	OverwriteFiles = overwrite
}

// SetUpdateCovers sets the UpdateCovers flag
func SetUpdateCovers(update bool) {
	UpdateCovers = update
}

// CatalogDBFile returns the path of the catalog database.
func CatalogDBFile() string {
	return stringOr("catalog.dbfile", DefaultCatalogDBFile)
}

// CacheDBFile returns the path of the provider response cache.
func CacheDBFile() string {
	return stringOr("cache.dbfile", DefaultCacheDBFile)
}

// SettingsFile returns the path of the user settings file.
func SettingsFile() string {
	return stringOr("settings.file", DefaultSettingsFile)
}

// Language returns the library language used for sort titles and collation.
func Language() string {
	return stringOr("library.language", DefaultLanguage)
}

// DatasetteURL returns the base URL of the Datasette instance books are
// pushed to.
func DatasetteURL() string {
	return viper.GetString("datasette.url")
}

// DatasetteToken returns the API token for the Datasette insert API.
func DatasetteToken() string {
	return viper.GetString("datasette.token")
}

// CoversDir returns the directory downloaded covers are stored in.
func CoversDir() string {
	return stringOr("covers.dir", DefaultCoversDir)
}

// CoverMaxWidth returns the width covers are scaled down to.
func CoverMaxWidth() int {
	if w := viper.GetInt("covers.maxwidth"); w > 0 {
		return w
	}
	return DefaultCoverMaxWidth
}

// ResolverTimeout returns the per-provider request budget. Zero disables it.
func ResolverTimeout() time.Duration {
	raw := viper.GetString("resolver.timeout")
	if raw == "" {
		return DefaultResolverTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("Invalid resolver timeout, using default", "timeout", raw, "error", err)
		return DefaultResolverTimeout
	}
	return d
}

// MaxResults returns the per-provider result cap.
func MaxResults() int {
	if n := viper.GetInt("resolver.max_results"); n > 0 {
		return n
	}
	return DefaultMaxResults
}

// EnabledProviders returns the configured provider names, lower-cased.
// A comma separated string (as set through the environment) is accepted too.
func EnabledProviders() []string {
	raw := strings.Join(viper.GetStringSlice("providers.enabled"), ",")
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	providers := make([]string, 0, len(fields))
	for _, p := range fields {
		providers = append(providers, strings.ToLower(p))
	}
	if len(providers) == 0 {
		return append([]string(nil), DefaultProviders...)
	}
	return providers
}

func stringOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}
