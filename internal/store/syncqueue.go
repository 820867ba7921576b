package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnqueueRequest persists a request for background replay.
func (db *DB) EnqueueRequest(r *QueuedRequest) error {
	header, err := json.Marshal(r.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO sync_queue (request_id, method, url, header, body, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
		r.RequestID, r.Method, r.URL, string(header), r.Body, now, now)
	if err != nil {
		return err
	}
	r.ID, _ = res.LastInsertId()
	r.CreatedAt = now
	return nil
}

// PendingRequests returns queued requests oldest first.
func (db *DB) PendingRequests(limit int) ([]QueuedRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, request_id, method, url, header, body, attempts, last_error, created_at
		FROM sync_queue ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []QueuedRequest
	for rows.Next() {
		var (
			r      QueuedRequest
			header string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Method, &r.URL, &header, &r.Body, &r.Attempts, &r.LastError, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.Header, err = decodeHeader(header); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRequestFailed bumps the attempt counter and records the error.
func (db *DB) MarkRequestFailed(requestID, errMsg string) error {
	_, err := db.Exec(`
		UPDATE sync_queue SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE request_id = ?`, errMsg, time.Now().UnixMilli(), requestID)
	return err
}

// DeleteRequest removes a replayed request.
func (db *DB) DeleteRequest(requestID string) error {
	_, err := db.Exec(`DELETE FROM sync_queue WHERE request_id = ?`, requestID)
	return err
}

// QueueLength returns how many requests wait for replay.
func (db *DB) QueueLength() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}
