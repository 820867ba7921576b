package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the profile's gsm.db: cache buckets, local storage, the offline
// request queue and the conversation mirror.
type DB struct {
	*sql.DB
}

// Open opens the profile database in WAL mode. gsmd and gsmtui hold it open
// at the same time, so writers wait up to five seconds for the lock.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
