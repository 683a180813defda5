package catalog

const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	publish_date TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	original_language TEXT NOT NULL DEFAULT '',
	series TEXT NOT NULL DEFAULT '',
	series_number TEXT NOT NULL DEFAULT '',
	isbn TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	cover_path TEXT NOT NULL DEFAULT '',
	owned INTEGER NOT NULL DEFAULT 1,
	read INTEGER NOT NULL DEFAULT 0,
	sort_title TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	added_at DATETIME NOT NULL,
	started_at DATETIME,
	finished_at DATETIME,
	sent_to_reader INTEGER NOT NULL DEFAULT 0,
	synced_to_cloud INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
`

// bookColumns lists the stored columns except id, in the order used by
// insert, update and scan.
const bookColumns = `title, author, description, publisher, publish_date, language, original_language,
	series, series_number, isbn, cover_url, cover_path, owned, read, sort_title, source,
	added_at, started_at, finished_at, sent_to_reader, synced_to_cloud`
