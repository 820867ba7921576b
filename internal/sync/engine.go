// Package sync mirrors the conversations and messages seen by the chat
// controller into the local store so they can be shown offline.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Engine handles idempotent ingestion of chat traffic into the store.
// It subscribes to "chat." events on the bus.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	me     func() domain.ID
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a mirror engine. me resolves the signed-in user for
// own-message attribution; it may return "".
func NewEngine(db *store.DB, b *bus.Bus, me func() domain.ID, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if me == nil {
		me = func() domain.ID { return "" }
	}
	return &Engine{db: db, bus: b, me: me, logger: logger}
}

// Start subscribes to chat events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("chat.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindChatMessage, bus.KindChatSendAck:
		msg, ok := evt.Payload.(domain.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to mirror message", zap.Error(err), zap.String("msg_id", msg.ID.String()))
		}
	case bus.KindChatInbox:
		convs, ok := evt.Payload.([]domain.Conversation)
		if !ok {
			return
		}
		if err := e.IngestConversations(convs); err != nil {
			e.logger.Error("failed to mirror conversations", zap.Error(err), zap.Int("count", len(convs)))
		} else {
			e.logger.Debug("conversations mirrored", zap.Int("count", len(convs)))
		}
	case bus.KindChatReadReceipt:
		r, ok := evt.Payload.(domain.ReadReceipt)
		if !ok {
			return
		}
		if _, err := e.db.MarkOwnMessagesRead(r.ConversationID.String()); err != nil {
			e.logger.Error("failed to mirror read receipt", zap.Error(err))
		}
	}
}

// IngestMessage stores a message and moves its conversation's preview
// forward (idempotent).
func (e *Engine) IngestMessage(msg domain.Message) error {
	m, err := toStoreMessage(msg, e.me())
	if err != nil {
		return err
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if _, err := e.db.Exec(`
		UPDATE conversations SET
			last_message_at = ?,
			last_message_preview = ?,
			updated_at = ?
		WHERE id = ? AND last_message_at <= ?`,
		m.CreatedAt, truncate(m.Content, previewLen), time.Now().UnixMilli(), m.ConversationID, m.CreatedAt); err != nil {
		return fmt.Errorf("update conversation preview: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMirrorMessage,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": m.ConversationID,
			"msg_id":          m.ID,
		},
	})
	return nil
}

// IngestConversations upserts a page of conversations in one transaction.
// A stored preview newer than the incoming one is kept.
func (e *Engine) IngestConversations(convs []domain.Conversation) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, dc := range convs {
		c, err := toStoreConversation(dc)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, post_id, title, other_name, unread_count, last_message_at, last_message_preview, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				post_id = excluded.post_id,
				title = excluded.title,
				other_name = excluded.other_name,
				unread_count = excluded.unread_count,
				last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
				last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			c.ID, c.PostID, c.Title, c.OtherName, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, string(c.Payload), time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("upsert conversation in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMirrorBatch,
		Timestamp: time.Now(),
		Payload:   map[string]int{"conversations_count": len(convs)},
	})
	return nil
}

func toStoreMessage(msg domain.Message, me domain.ID) (*store.Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	own := msg.IsOwnMessage
	if !me.IsZero() {
		own = msg.Sender.ID == me
	}
	return &store.Message{
		ConversationID: msg.ConversationID.String(),
		ID:             msg.ID.String(),
		SenderID:       msg.Sender.ID.String(),
		Content:        msg.Content,
		IsOwn:          own,
		IsRead:         msg.IsRead,
		CreatedAt:      millis(msg.CreatedAt),
		Payload:        payload,
	}, nil
}

func toStoreConversation(c domain.Conversation) (*store.Conversation, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}
	var postID string
	if c.Post != nil {
		postID = c.Post.ID.String()
	}
	return &store.Conversation{
		ID:                 c.ID.String(),
		PostID:             postID,
		Title:              c.Title(),
		OtherName:          c.OtherParticipant.Name(),
		UnreadCount:        int(c.UnreadCount),
		LastMessageAt:      millis(c.LastMessageAt),
		LastMessagePreview: truncate(c.LastMessagePreview, previewLen),
		Payload:            payload,
	}, nil
}

func millis(t domain.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
