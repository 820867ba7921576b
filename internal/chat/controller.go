package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"go.uber.org/zap"
)

// Backend is the REST side of a conversation. *backend.Client satisfies it.
type Backend interface {
	Pager
	SendMessage(ctx context.Context, id domain.ID, content string) (*domain.Message, error)
	MarkAsRead(ctx context.Context, id domain.ID) error
}

// Transport is the real-time side. *messaging.Client satisfies it.
type Transport interface {
	SubscribeToConversation(ctx context.Context, id domain.ID, fn func(domain.Message)) (func(), error)
	SubscribeToTyping(ctx context.Context, id domain.ID, fn func(domain.TypingStatus)) (func(), error)
	SubscribeToMessages(ctx context.Context, fn func(domain.Message)) (func(), error)
	SubscribeToReadReceipts(ctx context.Context, fn func(domain.ReadReceipt)) (func(), error)
	SendTypingStatus(ctx context.Context, id domain.ID, typing bool) error
}

// Session yields the signed-in user. *backend.Tokens satisfies it.
type Session interface {
	User() (*domain.User, error)
}

// Options tunes a Controller.
type Options struct {
	PageSize   int
	TypingIdle time.Duration
	// OnChange is called after any change to the visible state.
	OnChange func()
}

// Controller binds one conversation to the REST and real-time clients.
type Controller struct {
	backend   Backend
	transport Transport
	bus       *bus.Bus
	log       *zap.Logger
	onChange  func()

	thread *Thread
	typing *Typing
	me     domain.ID

	mu         sync.Mutex
	cleanups   []func()
	peerTyping bool
	closed     bool
}

// ReturnPath is the route the login screen sends the user back to.
func ReturnPath(convID domain.ID) string { return "/chat/" + convID.String() }

// Open loads the newest messages of convID and subscribes to its live
// updates. It fails with a *LoginRequiredError when the caller has no
// session or the backend rejects it. Subscription failures are logged and
// leave the controller working over REST only.
func Open(ctx context.Context, convID domain.ID, be Backend, tr Transport, s Session, b *bus.Bus, log *zap.Logger, opts Options) (*Controller, error) {
	if log == nil {
		log = zap.NewNop()
	}
	user, err := s.User()
	if err != nil || user == nil || user.UserID.IsZero() {
		return nil, &LoginRequiredError{ReturnPath: ReturnPath(convID), Err: err}
	}
	log = log.With(zap.String("conversation", convID.String()))

	c := &Controller{
		backend:   be,
		transport: tr,
		bus:       b,
		log:       log,
		onChange:  opts.OnChange,
		me:        user.UserID,
		thread:    NewThread(convID, user.UserID, be, opts.PageSize),
	}
	c.typing = NewTyping(func(ctx context.Context, typing bool) error {
		return tr.SendTypingStatus(ctx, convID, typing)
	}, opts.TypingIdle, log)

	if err := c.thread.LoadInitial(ctx); err != nil {
		return nil, loginRequired(ReturnPath(convID), err)
	}
	c.subscribe(ctx)
	if err := be.MarkAsRead(ctx, convID); err != nil {
		log.Debug("mark conversation read failed", zap.Error(err))
	}
	return c, nil
}

func (c *Controller) subscribe(ctx context.Context) {
	id := c.thread.ConversationID()
	steps := []struct {
		name string
		fn   func() (func(), error)
	}{
		{"conversation", func() (func(), error) { return c.transport.SubscribeToConversation(ctx, id, c.receive) }},
		{"typing", func() (func(), error) { return c.transport.SubscribeToTyping(ctx, id, c.peerTyped) }},
		{"messages", func() (func(), error) { return c.transport.SubscribeToMessages(ctx, c.receive) }},
		{"read-receipts", func() (func(), error) { return c.transport.SubscribeToReadReceipts(ctx, c.readReceipt) }},
	}
	for _, st := range steps {
		cleanup, err := st.fn()
		if err != nil {
			c.log.Warn("live updates unavailable", zap.String("subscription", st.name), zap.Error(err))
			continue
		}
		c.mu.Lock()
		c.cleanups = append(c.cleanups, cleanup)
		c.mu.Unlock()
	}
}

func (c *Controller) receive(m domain.Message) {
	if !c.thread.Receive(m) {
		return
	}
	c.bus.Emit(bus.KindChatMessage, m)
	c.changed()
}

func (c *Controller) peerTyped(st domain.TypingStatus) {
	if !st.UserID.IsZero() && sameID(st.UserID, c.me) {
		return
	}
	c.mu.Lock()
	changed := c.peerTyping != st.Typing
	c.peerTyping = st.Typing
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

func (c *Controller) readReceipt(r domain.ReadReceipt) {
	if c.thread.ApplyReadReceipt(r) == 0 {
		return
	}
	c.bus.Emit(bus.KindChatReadReceipt, r)
	c.changed()
}

func (c *Controller) changed() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed && c.onChange != nil {
		c.onChange()
	}
}

// Send shows text at once and posts it over REST. On failure the pending
// message stays marked FAILED and the returned error wraps one of
// ErrCannotMessageSelf, ErrProductNotFound or ErrSendFailed.
func (c *Controller) Send(ctx context.Context, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	c.typing.Blur()

	id := c.thread.ConversationID()
	pending := c.thread.AddPending(text, time.Now())
	c.changed()

	msg, err := c.backend.SendMessage(ctx, id, text)
	if err != nil {
		c.thread.Fail(pending.ID)
		c.changed()
		err = classifySend(err)
		c.log.Warn("send message failed", zap.Error(err))
		c.bus.Emit(bus.KindChatSendFailed, err)
		return nil, err
	}
	if msg.ConversationID.IsZero() {
		msg.ConversationID = id
	}
	c.thread.Confirm(pending.ID, *msg)
	c.bus.Emit(bus.KindChatSendAck, *msg)
	c.changed()
	return msg, nil
}

// Retry resends a FAILED message.
func (c *Controller) Retry(ctx context.Context, pendingID domain.ID) (*domain.Message, error) {
	for _, m := range c.thread.Messages() {
		if m.ID == pendingID && m.Status == domain.StatusFailed {
			c.thread.Dismiss(pendingID)
			return c.Send(ctx, m.Content)
		}
	}
	return nil, fmt.Errorf("retry %s: no failed message", pendingID)
}

// LoadEarlier prepends the previous page.
func (c *Controller) LoadEarlier(ctx context.Context) (int, error) {
	n, err := c.thread.LoadEarlier(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.changed()
	}
	return n, nil
}

// Keystroke and Blur drive the local typing indicator.
func (c *Controller) Keystroke() { c.typing.Keystroke() }
func (c *Controller) Blur()      { c.typing.Blur() }

// Messages returns the visible messages in display order.
func (c *Controller) Messages() []domain.Message { return c.thread.Messages() }

// HasMore reports whether LoadEarlier can return more.
func (c *Controller) HasMore() bool { return c.thread.HasMore() }

// PeerTyping reports whether the other participant is typing.
func (c *Controller) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}

// ConversationID returns the bound conversation.
func (c *Controller) ConversationID() domain.ID { return c.thread.ConversationID() }

// Close stops typing and releases every subscription. Safe to call twice.
// Neither step waits on the network, so the UI thread may call it.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	c.typing.Blur()
	for _, fn := range cleanups {
		fn()
	}
}
