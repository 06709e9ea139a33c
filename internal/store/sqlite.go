package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at the given path.
// Foreign keys and a busy timeout are set per connection through the DSN so
// every pooled connection enforces them.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
