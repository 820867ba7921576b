package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func message(conv, id, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             domain.ID(id),
		ConversationID: domain.ID(conv),
		Sender:         domain.PublicUser{ID: domain.ID(sender)},
		Content:        content,
		CreatedAt:      domain.At(at),
	}
}

func me() domain.ID { return "1" }

func TestEngineIngestMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, me, nil)

	ch, unsub := b.Subscribe("mirror.", 10)
	defer unsub()

	if err := e.IngestConversations([]domain.Conversation{{ID: "7", LastMessageAt: domain.At(base), LastMessagePreview: "old"}}); err != nil {
		t.Fatal(err)
	}
	<-ch

	if err := e.IngestMessage(message("7", "m1", "1", "hello", base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("7", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" || !msgs[0].IsOwn {
		t.Fatalf("messages = %+v, want one own message", msgs)
	}
	c, err := db.GetConversation("7")
	if err != nil || c == nil {
		t.Fatalf("GetConversation() = %v, %v", c, err)
	}
	if c.LastMessagePreview != "hello" {
		t.Errorf("preview = %q, want hello", c.LastMessagePreview)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMirrorMessage {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindMirrorMessage)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for mirror.message_upserted event")
	}
}

func TestEngineIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), me, nil)

	m := message("7", "m1", "2", "v1", base)
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Content = "v2"
	m.IsRead = true
	if err := e.IngestMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("7", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Content != "v2" || msgs[0].IsOwn {
		t.Errorf("message = %+v, want content v2 from the other side", msgs[0])
	}
}

// An older page must not roll a conversation's preview back.
func TestEngineIngestConversationsKeepsNewerPreview(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), me, nil)

	newer := domain.Conversation{
		ID:                 "7",
		Post:               &domain.Post{ID: "30", Title: "PS5"},
		OtherParticipant:   domain.PublicUser{ID: "2", Username: "sara"},
		LastMessageAt:      domain.At(base.Add(time.Hour)),
		LastMessagePreview: "newer",
		UnreadCount:        3,
	}
	if err := e.IngestConversations([]domain.Conversation{newer, {ID: "8", LastMessageAt: domain.At(base)}}); err != nil {
		t.Fatal(err)
	}
	older := newer
	older.LastMessageAt = domain.At(base)
	older.LastMessagePreview = "older"
	older.UnreadCount = 0
	if err := e.IngestConversations([]domain.Conversation{older}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("7")
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessagePreview != "newer" || c.Title != "PS5" || c.OtherName != "sara" || c.PostID != "30" {
		t.Errorf("conversation = %+v", c)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want the latest server count 0", c.UnreadCount)
	}
	if n, _ := db.ConversationCount(); n != 2 {
		t.Errorf("ConversationCount() = %d, want 2", n)
	}
}

// TestEngineBusSubscription verifies the engine processes chat events
// published by the controller.
func TestEngineBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, me, zap.NewNop())

	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.KindChatInbox, []domain.Conversation{{ID: "9", LastMessageAt: domain.At(base)}})
	b.Emit(bus.KindChatSendAck, message("9", "s1", "1", "mine", base.Add(time.Second)))
	b.Emit(bus.KindChatMessage, message("9", "r1", "2", "theirs", base.Add(2*time.Second)))
	b.Emit(bus.KindChatMessage, "not a message")

	deadline := time.After(2 * time.Second)
	var msgs []store.Message
	for len(msgs) < 2 {
		select {
		case <-deadline:
			t.Fatalf("got %d messages, want 2 (bus subscription)", len(msgs))
		case <-time.After(20 * time.Millisecond):
		}
		msgs, _ = db.ListMessages("9", 0, 10)
	}

	b.Emit(bus.KindChatReadReceipt, domain.ReadReceipt{ConversationID: "9"})
	deadline = time.After(2 * time.Second)
	for {
		msgs, _ = db.ListMessages("9", 0, 10)
		if msgs[0].IsRead {
			break
		}
		select {
		case <-deadline:
			t.Fatal("read receipt not mirrored")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if msgs[1].IsRead {
		t.Error("the other side's message was marked read")
	}
}
