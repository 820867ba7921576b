package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
)

const (
	previewLen = 100
	// seenLimit bounds the message ids remembered for push dedupe.
	seenLimit = 512
)

// Lister pages through the caller's conversations. *backend.Client
// satisfies it.
type Lister interface {
	ListConversations(ctx context.Context, page, size int) (*domain.ConversationsPage, error)
}

// Inbox is the conversation list, newest activity first.
type Inbox struct {
	lister Lister
	size   int
	bus    *bus.Bus

	mu          sync.Mutex
	me          domain.ID
	convs       []domain.Conversation
	active      domain.ID
	totalUnread int64
	last        bool
	page        int
	seen        map[domain.ID]struct{}
	seenOrder   []domain.ID
}

// NewInbox creates an empty inbox for user me. Loaded pages are published
// on b as chat.inbox_loaded; b may be nil.
func NewInbox(l Lister, me domain.ID, pageSize int, b *bus.Bus) *Inbox {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Inbox{lister: l, me: me, size: pageSize, bus: b}
}

// Load replaces the list with the first page.
func (in *Inbox) Load(ctx context.Context) error {
	p, err := in.lister.ListConversations(ctx, 0, in.size)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	in.bus.Emit(bus.KindChatInbox, p.Content)
	in.mu.Lock()
	defer in.mu.Unlock()
	in.convs = append([]domain.Conversation(nil), p.Content...)
	in.totalUnread = p.TotalUnreadConversations
	in.last = p.Last || len(p.Content) < in.size
	in.page = 0
	in.sort()
	return nil
}

// LoadMore appends the next page and reports whether anything was added.
func (in *Inbox) LoadMore(ctx context.Context) (bool, error) {
	in.mu.Lock()
	if in.last {
		in.mu.Unlock()
		return false, nil
	}
	next := in.page + 1
	in.mu.Unlock()

	p, err := in.lister.ListConversations(ctx, next, in.size)
	if err != nil {
		return false, fmt.Errorf("load conversations page %d: %w", next, err)
	}
	in.bus.Emit(bus.KindChatInbox, p.Content)
	in.mu.Lock()
	defer in.mu.Unlock()
	seen := make(map[domain.ID]bool, len(in.convs))
	for _, c := range in.convs {
		seen[c.ID] = true
	}
	added := false
	for _, c := range p.Content {
		if !seen[c.ID] {
			in.convs = append(in.convs, c)
			added = true
		}
	}
	in.page = next
	in.last = p.Last || len(p.Content) < in.size
	in.sort()
	return added, nil
}

// SetActive names the conversation on screen; its pushes do not count as
// unread.
func (in *Inbox) SetActive(id domain.ID) {
	in.mu.Lock()
	in.active = id
	in.mu.Unlock()
}

// Apply folds a pushed message into its conversation and reports whether
// the conversation is known. Unknown conversations need a Load.
// A message id already applied is ignored.
func (in *Inbox) Apply(m domain.Message) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	i := in.index(m.ConversationID)
	if !in.remember(m.ID) {
		return i >= 0
	}
	if i < 0 {
		return false
	}
	c := &in.convs[i]
	c.LastMessagePreview = truncate(m.Content, previewLen)
	c.LastMessageAt = m.CreatedAt
	own := m.IsOwnMessage || (!in.me.IsZero() && sameID(m.Sender.ID, in.me))
	if !own && !sameID(c.ID, in.active) {
		if c.UnreadCount == 0 {
			in.totalUnread++
		}
		c.UnreadCount++
	}
	in.sort()
	return true
}

// MarkRead clears the unread count of id.
func (in *Inbox) MarkRead(id domain.ID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if i := in.index(id); i >= 0 && in.convs[i].UnreadCount > 0 {
		in.convs[i].UnreadCount = 0
		if in.totalUnread > 0 {
			in.totalUnread--
		}
	}
}

// Conversations returns a snapshot in display order.
func (in *Inbox) Conversations() []domain.Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]domain.Conversation(nil), in.convs...)
}

// TotalUnread is the number of conversations with unread messages.
func (in *Inbox) TotalUnread() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.totalUnread
}

// remember records id and reports whether it is new. Empty ids are always
// new.
func (in *Inbox) remember(id domain.ID) bool {
	if id.IsZero() {
		return true
	}
	if in.seen == nil {
		in.seen = make(map[domain.ID]struct{}, seenLimit)
	}
	if _, dup := in.seen[id]; dup {
		return false
	}
	in.seen[id] = struct{}{}
	in.seenOrder = append(in.seenOrder, id)
	if len(in.seenOrder) > seenLimit {
		delete(in.seen, in.seenOrder[0])
		in.seenOrder = in.seenOrder[1:]
	}
	return true
}

func (in *Inbox) index(id domain.ID) int {
	for i := range in.convs {
		if sameID(in.convs[i].ID, id) {
			return i
		}
	}
	return -1
}

func (in *Inbox) sort() {
	sort.SliceStable(in.convs, func(i, j int) bool {
		return in.convs[i].LastMessageAt.After(in.convs[j].LastMessageAt.Time)
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
