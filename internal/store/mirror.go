package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a mirrored conversation.
func (db *DB) UpsertConversation(c *Conversation) error {
	_, err := db.Exec(`
		INSERT INTO conversations (id, post_id, title, other_name, unread_count, last_message_at, last_message_preview, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			post_id = excluded.post_id,
			title = excluded.title,
			other_name = excluded.other_name,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		c.ID, c.PostID, c.Title, c.OtherName, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, payloadOrEmpty(c.Payload), time.Now().UnixMilli())
	return err
}

// ListConversations returns mirrored conversations, most recent first.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, post_id, title, other_name, unread_count, last_message_at, last_message_preview, payload
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.PostID, &c.Title, &c.OtherName, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.Payload); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns a mirrored conversation, or nil.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, post_id, title, other_name, unread_count, last_message_at, last_message_preview, payload
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.PostID, &c.Title, &c.OtherName, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertMessage inserts or updates a message (idempotent on conversation_id + id).
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, id, sender_id, content, is_own, is_read, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO UPDATE SET
			content = excluded.content,
			is_own = excluded.is_own,
			is_read = excluded.is_read,
			payload = excluded.payload`,
		m.ConversationID, m.ID, m.SenderID, m.Content, m.IsOwn, m.IsRead, m.CreatedAt, payloadOrEmpty(m.Payload))
	return err
}

// ListMessages returns the newest limit messages of a conversation created
// before beforeMs, in chronological order. beforeMs <= 0 means now.
func (db *DB) ListMessages(conversationID string, beforeMs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeMs <= 0 {
		beforeMs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, id, sender_id, content, is_own, is_read, created_at, payload FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND created_at < ?
			ORDER BY created_at DESC
			LIMIT ?
		) ORDER BY created_at ASC`, conversationID, beforeMs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.Content, &m.IsOwn, &m.IsRead, &m.CreatedAt, &m.Payload); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkOwnMessagesRead flags every own unread message of a conversation as read.
func (db *DB) MarkOwnMessagesRead(conversationID string) (int, error) {
	res, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND is_own = 1 AND is_read = 0`, conversationID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ConversationCount returns the number of mirrored conversations.
func (db *DB) ConversationCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

func payloadOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}
