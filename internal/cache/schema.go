package cache

import "fmt"

// SQL schemas for cache tables
// All cache tables use "cache_key" as the primary key column for consistency.
// ttl_seconds stores the TTL chosen when the entry was written; 0 means the
// lookup TTL applies.

const (
	DNBCacheTable         = "dnb_cache"
	GoogleBooksCacheTable = "googlebooks_cache"
	ISBNdbCacheTable      = "isbndb_cache"
	OpenLibraryCacheTable = "openlibrary_cache"
)

func tableSchema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_cached_at ON %[1]s(cached_at);
`, table)
}

// DNBCacheSchema defines the schema for the Deutsche Nationalbibliothek SRU cache
var DNBCacheSchema = tableSchema(DNBCacheTable)

// GoogleBooksCacheSchema defines the schema for Google Books API cache
var GoogleBooksCacheSchema = tableSchema(GoogleBooksCacheTable)

// ISBNdbCacheSchema defines the schema for ISBNdb book cache
var ISBNdbCacheSchema = tableSchema(ISBNdbCacheTable)

// OpenLibraryCacheSchema defines the schema for OpenLibrary book cache
var OpenLibraryCacheSchema = tableSchema(OpenLibraryCacheTable)

// AllCacheSchemas contains all cache table schemas for easy initialization
var AllCacheSchemas = []string{
	DNBCacheSchema,
	GoogleBooksCacheSchema,
	ISBNdbCacheSchema,
	OpenLibraryCacheSchema,
}

// ValidCacheTableNames is the whitelist of allowed cache table names
// Used to prevent SQL injection when interpolating table names
var ValidCacheTableNames = map[string]bool{
	DNBCacheTable:         true,
	GoogleBooksCacheTable: true,
	ISBNdbCacheTable:      true,
	OpenLibraryCacheTable: true,
}

// SourceTables maps the source names accepted by "cache invalidate" to their
// cache table.
var SourceTables = map[string]string{
	"dnb":         DNBCacheTable,
	"googlebooks": GoogleBooksCacheTable,
	"isbndb":      ISBNdbCacheTable,
	"openlibrary": OpenLibraryCacheTable,
}
