package store

import (
	"database/sql"
	"time"
)

// GetItem returns a local_storage value and whether it was present.
func (db *DB) GetItem(key string) (string, bool, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM local_storage WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetItem writes a local_storage value.
func (db *DB) SetItem(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// RemoveItems deletes the given keys.
func (db *DB) RemoveItems(keys ...string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.Exec(`DELETE FROM local_storage WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}
