package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
)

type fakeSource struct {
	pages    [][]domain.Conversation
	messages map[domain.ID][]domain.Message
	listed   []int
	err      error
}

func (s *fakeSource) ListConversations(_ context.Context, page, _ int) (*domain.ConversationsPage, error) {
	s.listed = append(s.listed, page)
	if s.err != nil {
		return nil, s.err
	}
	p := &domain.ConversationsPage{}
	if page < len(s.pages) {
		p.Content = s.pages[page]
	}
	p.Last = page >= len(s.pages)-1
	return p, nil
}

func (s *fakeSource) GetMessages(_ context.Context, id, _ domain.ID, _ int) (*domain.MessagesPage, error) {
	return &domain.MessagesPage{Messages: s.messages[id]}, nil
}

func TestReconcileMirrorsPagesAndUnread(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), me, nil)
	full := make([]domain.Conversation, 20)
	for i := range full {
		full[i] = domain.Conversation{ID: domain.ID(string(rune('a' + i))), LastMessageAt: domain.At(base)}
	}
	full[0].UnreadCount = 1
	src := &fakeSource{
		pages: [][]domain.Conversation{full, {{ID: "z"}}},
		messages: map[domain.ID][]domain.Message{
			"a": {{ID: "m1", Content: "unread", CreatedAt: domain.At(base)}},
		},
	}
	r := NewReconciler(db, e, src, nil)

	if !r.LastReconciled().IsZero() {
		t.Error("LastReconciled() before any run should be zero")
	}
	n, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 21 || len(src.listed) != 2 {
		t.Errorf("Reconcile() = %d after pages %v", n, src.listed)
	}
	msgs, _ := db.ListMessages("a", 0, 10)
	if len(msgs) != 1 || msgs[0].ConversationID != "a" {
		t.Errorf("messages of a = %+v", msgs)
	}
	if since := time.Since(r.LastReconciled()); since < 0 || since > time.Minute {
		t.Errorf("LastReconciled() = %v", r.LastReconciled())
	}
}

func TestReconcileReportsListFailure(t *testing.T) {
	db := testDB(t)
	boom := errors.New("offline")
	r := NewReconciler(db, NewEngine(db, bus.New(), me, nil), &fakeSource{err: boom}, nil)
	if _, err := r.Reconcile(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Reconcile() error = %v", err)
	}
	if v, _ := r.GetCheckpoint("last_reconcile"); v != "" {
		t.Errorf("checkpoint = %q after failure", v)
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil, nil, nil)
	if err := r.UpdateCheckpoint("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateCheckpoint("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, err := r.GetCheckpoint("k"); err != nil || v != "v2" {
		t.Errorf("GetCheckpoint() = %q, %v", v, err)
	}
}
