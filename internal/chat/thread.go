// Package chat reconciles the messages of a conversation arriving over REST
// and over the real-time transport.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thegamersstation/gsm/internal/domain"
)

const (
	defaultPageSize = 50
	pendingPrefix   = "pending-"
)

// Pager fetches a page of messages older than cursor. *backend.Client
// satisfies it.
type Pager interface {
	GetMessages(ctx context.Context, id, cursor domain.ID, size int) (*domain.MessagesPage, error)
}

// Thread is the visible message list of one conversation. Messages are
// keyed by id and kept in arrival order; every id appears at most once.
type Thread struct {
	convID   domain.ID
	pager    Pager
	pageSize int

	mu      sync.Mutex
	me      domain.ID
	byID    map[domain.ID]*domain.Message
	order   []domain.ID
	cursor  domain.ID
	hasMore bool
	loaded  bool
}

// NewThread creates an empty thread for convID seen by user me.
func NewThread(convID, me domain.ID, pager Pager, pageSize int) *Thread {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Thread{
		convID:   convID,
		pager:    pager,
		pageSize: pageSize,
		me:       me,
		byID:     make(map[domain.ID]*domain.Message),
	}
}

// ConversationID returns the conversation this thread shows.
func (t *Thread) ConversationID() domain.ID { return t.convID }

// SetUser changes the viewer used for own-message attribution.
func (t *Thread) SetUser(me domain.ID) {
	t.mu.Lock()
	t.me = me
	t.mu.Unlock()
}

// LoadInitial fetches the newest page. Messages already present, for
// example pushed while the request was in flight, are kept.
func (t *Thread) LoadInitial(ctx context.Context) error {
	page, err := t.pager.GetMessages(ctx, t.convID, "", t.pageSize)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prepend(page.Messages)
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore
	t.loaded = true
	return nil
}

// LoadEarlier fetches the page before the oldest loaded message and
// prepends it. It returns the number of messages added, 0 when the start
// of the conversation was reached.
func (t *Thread) LoadEarlier(ctx context.Context) (int, error) {
	t.mu.Lock()
	cursor, more, loaded := t.cursor, t.hasMore, t.loaded
	t.mu.Unlock()
	if !loaded {
		return 0, t.LoadInitial(ctx)
	}
	if !more || cursor.IsZero() {
		return 0, nil
	}

	page, err := t.pager.GetMessages(ctx, t.convID, cursor, t.pageSize)
	if err != nil {
		return 0, fmt.Errorf("load earlier messages: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// A concurrent load already moved past this cursor.
	if t.cursor != cursor {
		return 0, nil
	}
	n := t.prepend(page.Messages)
	t.cursor = page.NextCursor
	t.hasMore = page.HasMore
	return n, nil
}

// HasMore reports whether older messages remain on the server.
func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// prepend adds the absent messages of an oldest-first page before the
// current list. t.mu must be held.
func (t *Thread) prepend(msgs []domain.Message) int {
	ids := make([]domain.ID, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, ok := t.byID[m.ID]; ok || m.ID.IsZero() {
			continue
		}
		t.normalize(&m)
		t.byID[m.ID] = &m
		ids = append(ids, m.ID)
	}
	t.order = append(ids, t.order...)
	return len(ids)
}

// insert appends m unless its id is present. t.mu must be held.
func (t *Thread) insert(m domain.Message) bool {
	if m.ID.IsZero() {
		return false
	}
	if _, ok := t.byID[m.ID]; ok {
		return false
	}
	t.byID[m.ID] = &m
	t.order = append(t.order, m.ID)
	return true
}

func (t *Thread) normalize(m *domain.Message) {
	if !t.me.IsZero() {
		m.IsOwnMessage = sameID(m.Sender.ID, t.me)
	}
	if m.Status == "" && m.IsOwnMessage {
		m.Status = domain.StatusSent
		if m.IsRead {
			m.Status = domain.StatusRead
		}
	}
}

// sameID compares ids by their text so 7 and "7" are equal.
func sameID(a, b domain.ID) bool {
	return strings.TrimSpace(a.String()) == strings.TrimSpace(b.String())
}

// AppendSent records the message returned by a REST send. It is a no-op
// when the real-time echo already delivered the same id.
func (t *Thread) AppendSent(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.IsOwnMessage = true
	if m.Status == "" {
		m.Status = domain.StatusSent
	}
	return t.insert(m)
}

// Receive records a message pushed by the transport and reports whether
// it was new. Own echoes take the place of the oldest pending message with
// the same content.
func (t *Thread) Receive(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !m.ConversationID.IsZero() && !sameID(m.ConversationID, t.convID) {
		return false
	}
	t.normalize(&m)
	if _, ok := t.byID[m.ID]; ok {
		return false
	}
	if m.IsOwnMessage {
		if pid, ok := t.oldestPending(m.Content); ok {
			t.replace(pid, m)
			return true
		}
	}
	return t.insert(m)
}

// AddPending shows content immediately under a temporary id until the
// send is confirmed.
func (t *Thread) AddPending(content string, now time.Time) domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := domain.Message{
		ID:             domain.ID(pendingPrefix + uuid.NewString()),
		ConversationID: t.convID,
		Sender:         domain.PublicUser{ID: t.me},
		Content:        content,
		CreatedAt:      domain.At(now),
		IsOwnMessage:   true,
		Status:         domain.StatusSending,
	}
	t.insert(m)
	return m
}

// Confirm resolves the pending message pid with the server's copy.
func (t *Thread) Confirm(pid domain.ID, m domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.IsOwnMessage = true
	if m.Status == "" {
		m.Status = domain.StatusSent
	}
	_, pending := t.byID[pid]
	_, present := t.byID[m.ID]
	switch {
	case pending && present:
		t.remove(pid)
	case pending:
		t.replace(pid, m)
	case !present:
		t.insert(m)
	}
}

// Fail marks the pending message pid as not delivered.
func (t *Thread) Fail(pid domain.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.byID[pid]; ok {
		m.Status = domain.StatusFailed
	}
}

// Dismiss drops a pending or failed message.
func (t *Thread) Dismiss(pid domain.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isPending(pid) {
		t.remove(pid)
	}
}

func isPending(id domain.ID) bool { return strings.HasPrefix(id.String(), pendingPrefix) }

func (t *Thread) oldestPending(content string) (domain.ID, bool) {
	for _, id := range t.order {
		m := t.byID[id]
		if isPending(id) && m.Status == domain.StatusSending && m.Content == content {
			return id, true
		}
	}
	return "", false
}

func (t *Thread) replace(old domain.ID, m domain.Message) {
	for i, id := range t.order {
		if id == old {
			t.order[i] = m.ID
			break
		}
	}
	delete(t.byID, old)
	t.byID[m.ID] = &m
}

func (t *Thread) remove(id domain.ID) {
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	delete(t.byID, id)
}

// ApplyReadReceipt marks every own unread message as read and returns
// how many changed.
func (t *Thread) ApplyReadReceipt(r domain.ReadReceipt) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !r.ConversationID.IsZero() && !sameID(r.ConversationID, t.convID) {
		return 0
	}
	n := 0
	for _, m := range t.byID {
		if !m.IsOwnMessage || m.IsRead || isPending(m.ID) {
			continue
		}
		m.IsRead = true
		m.ReadAt = r.ReadAt
		m.Status = domain.StatusRead
		n++
	}
	return n
}

// Messages returns a snapshot in display order.
func (t *Thread) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// Len returns the number of visible messages.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
