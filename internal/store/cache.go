package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenBucket returns the id of the named bucket, creating it if needed.
func (db *DB) OpenBucket(name string) (int64, error) {
	return openBucket(db.DB, name)
}

type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func openBucket(q queryer, name string) (int64, error) {
	if _, err := q.Exec(`INSERT INTO cache_buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixMilli()); err != nil {
		return 0, fmt.Errorf("create bucket %s: %w", name, err)
	}
	var id int64
	if err := q.QueryRow(`SELECT id FROM cache_buckets WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup bucket %s: %w", name, err)
	}
	return id, nil
}

// PutEntry stores a response under (bucket, method, url). An existing entry
// for the key is replaced and moves to the newest position.
func (db *DB) PutEntry(e *Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	bucketID, err := openBucket(tx, e.Bucket)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM cache_entries WHERE bucket_id = ? AND method = ? AND url = ?`,
		bucketID, e.Method, e.URL); err != nil {
		return fmt.Errorf("replace entry: %w", err)
	}
	storedAt := e.StoredAt
	if storedAt == 0 {
		storedAt = time.Now().UnixMilli()
	}
	res, err := tx.Exec(`
		INSERT INTO cache_entries (bucket_id, method, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bucketID, e.Method, e.URL, e.Status, string(header), e.Body, storedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	e.StoredAt = storedAt
	return nil
}

// MatchEntry looks up a cached response. An empty bucket searches every
// bucket in creation order and returns the first hit. Returns nil if absent.
func (db *DB) MatchEntry(bucket, method, url string) (*Entry, error) {
	q := `
		SELECT e.id, b.name, e.method, e.url, e.status, e.header, e.body, e.stored_at
		FROM cache_entries e
		JOIN cache_buckets b ON b.id = e.bucket_id
		WHERE e.method = ? AND e.url = ?`
	args := []any{method, url}
	if bucket != "" {
		q += " AND b.name = ?"
		args = append(args, bucket)
	}
	q += " ORDER BY b.id ASC LIMIT 1"

	var (
		e      Entry
		header string
	)
	err := db.QueryRow(q, args...).Scan(&e.ID, &e.Bucket, &e.Method, &e.URL, &e.Status, &header, &e.Body, &e.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Header, err = decodeHeader(header); err != nil {
		return nil, err
	}
	return &e, nil
}

func decodeHeader(s string) (http.Header, error) {
	h := http.Header{}
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h == nil {
		h = http.Header{}
	}
	return h, nil
}

// BucketKeys returns the URLs stored in a bucket, oldest first.
func (db *DB) BucketKeys(bucket string) ([]string, error) {
	rows, err := db.Query(`
		SELECT e.url FROM cache_entries e
		JOIN cache_buckets b ON b.id = e.bucket_id
		WHERE b.name = ?
		ORDER BY e.id ASC`, bucket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CountEntries returns the number of entries in a bucket.
func (db *DB) CountEntries(bucket string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM cache_entries e
		JOIN cache_buckets b ON b.id = e.bucket_id
		WHERE b.name = ?`, bucket).Scan(&n)
	return n, err
}

// TrimBucket deletes the oldest entries until at most max remain and returns
// how many were removed. max <= 0 means unlimited.
func (db *DB) TrimBucket(bucket string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var bucketID int64
	err = tx.QueryRow(`SELECT id FROM cache_buckets WHERE name = ?`, bucket).Scan(&bucketID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE bucket_id = ?`, bucketID).Scan(&count); err != nil {
		return 0, err
	}
	if count <= max {
		return 0, nil
	}
	res, err := tx.Exec(`
		DELETE FROM cache_entries WHERE id IN (
			SELECT id FROM cache_entries WHERE bucket_id = ? ORDER BY id ASC LIMIT ?
		)`, bucketID, count-max)
	if err != nil {
		return 0, fmt.Errorf("trim bucket %s: %w", bucket, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteEntry removes one key from a bucket.
func (db *DB) DeleteEntry(bucket, method, url string) (bool, error) {
	res, err := db.Exec(`
		DELETE FROM cache_entries
		WHERE method = ? AND url = ?
		  AND bucket_id = (SELECT id FROM cache_buckets WHERE name = ?)`, method, url, bucket)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteBucket drops a bucket with all of its entries.
func (db *DB) DeleteBucket(name string) (bool, error) {
	res, err := db.Exec(`DELETE FROM cache_buckets WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete bucket %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListBuckets returns every bucket in creation order with its entry count.
func (db *DB) ListBuckets() ([]BucketInfo, error) {
	rows, err := db.Query(`
		SELECT b.name, COUNT(e.id)
		FROM cache_buckets b
		LEFT JOIN cache_entries e ON e.bucket_id = b.id
		GROUP BY b.id
		ORDER BY b.id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []BucketInfo
	for rows.Next() {
		var b BucketInfo
		if err := rows.Scan(&b.Name, &b.Entries); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
