// Package model holds gsmtui state independent of the widgets.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/backend"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/chat"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/status"
	"go.uber.org/zap"
)

const reloadTimeout = 15 * time.Second

// ErrInvalidPhone is returned for numbers that are not Saudi mobiles.
var ErrInvalidPhone = errors.New("invalid phone number")

// ErrNoConversation is returned by chat actions with no conversation open.
var ErrNoConversation = errors.New("no conversation open")

// Backend is the REST surface gsmtui uses. *backend.Client satisfies it.
type Backend interface {
	chat.Backend
	chat.Lister
	RequestOTP(ctx context.Context, phone string) (*backend.OTPRequested, error)
	VerifyOTP(ctx context.Context, phone, code string) (*domain.AuthResponse, error)
	Logout() error
	CurrentUser() (*domain.User, error)
	StartConversation(ctx context.Context, postID domain.ID, initialMessage string) (*domain.Conversation, error)
	SearchPosts(ctx context.Context, f domain.PostFilter) (*domain.Page[domain.Post], error)
}

// Options tunes the view model.
type Options struct {
	Lang      string
	InboxSize int
	Chat      chat.Options
}

// ViewModel owns the inbox and the open conversation.
type ViewModel struct {
	backend   Backend
	transport chat.Transport
	bus       *bus.Bus
	log       *zap.Logger
	opts      Options

	mu         sync.RWMutex
	inbox      *chat.Inbox
	active     *chat.Controller
	connection status.State
	worker     string
	lang       string
	onChange   func()
}

// New creates a view model. onChange runs after any state change, from any
// goroutine.
func New(be Backend, tr chat.Transport, b *bus.Bus, log *zap.Logger, opts Options, onChange func()) *ViewModel {
	if log == nil {
		log = zap.NewNop()
	}
	if onChange == nil {
		onChange = func() {}
	}
	lang := opts.Lang
	if lang == "" {
		lang = "ar"
	}
	vm := &ViewModel{
		backend:    be,
		transport:  tr,
		bus:        b,
		log:        log,
		opts:       opts,
		connection: status.Disconnected,
		lang:       lang,
		onChange:   onChange,
	}
	vm.inbox = chat.NewInbox(be, vm.me(), opts.InboxSize, b)
	return vm
}

func (vm *ViewModel) me() domain.ID {
	u, err := vm.backend.CurrentUser()
	if err != nil || u == nil {
		return ""
	}
	return u.UserID
}

// User returns the signed-in user, or nil.
func (vm *ViewModel) User() *domain.User {
	u, err := vm.backend.CurrentUser()
	if err != nil {
		return nil
	}
	return u
}

// LoggedIn reports whether a session user is stored.
func (vm *ViewModel) LoggedIn() bool {
	u := vm.User()
	return u != nil && !u.UserID.IsZero()
}

// Lang returns the display language, "ar" or "en".
func (vm *ViewModel) Lang() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.lang
}

// SetLang switches the display language.
func (vm *ViewModel) SetLang(lang string) {
	vm.mu.Lock()
	vm.lang = lang
	vm.mu.Unlock()
	vm.onChange()
}

// RequestCode normalizes phone and asks the backend to send a code. It
// returns the normalized number.
func (vm *ViewModel) RequestCode(ctx context.Context, phone string) (string, error) {
	phone = backend.FormatPhone(phone)
	if !backend.ValidatePhone(phone) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhone, phone)
	}
	if _, err := vm.backend.RequestOTP(ctx, phone); err != nil {
		return "", err
	}
	return phone, nil
}

// Verify exchanges the code for a session and loads the inbox for the new
// user.
func (vm *ViewModel) Verify(ctx context.Context, phone, code string) error {
	if _, err := vm.backend.VerifyOTP(ctx, phone, code); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.inbox = chat.NewInbox(vm.backend, vm.me(), vm.opts.InboxSize, vm.bus)
	vm.mu.Unlock()
	return vm.LoadInbox(ctx)
}

// Logout closes the open conversation and clears the session.
func (vm *ViewModel) Logout() error {
	vm.CloseChat()
	return vm.backend.Logout()
}

// LoadInbox loads the first page of conversations.
func (vm *ViewModel) LoadInbox(ctx context.Context) error {
	if err := vm.currentInbox().Load(ctx); err != nil {
		return err
	}
	vm.onChange()
	return nil
}

// LoadMoreInbox appends the next page. It reports whether anything came.
func (vm *ViewModel) LoadMoreInbox(ctx context.Context) (bool, error) {
	more, err := vm.currentInbox().LoadMore(ctx)
	if more {
		vm.onChange()
	}
	return more, err
}

func (vm *ViewModel) currentInbox() *chat.Inbox {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.inbox
}

// Conversations returns the inbox, newest activity first.
func (vm *ViewModel) Conversations() []domain.Conversation {
	return vm.currentInbox().Conversations()
}

// TotalUnread is the number of conversations with unread messages.
func (vm *ViewModel) TotalUnread() int64 {
	return vm.currentInbox().TotalUnread()
}

// Pushed applies a message from the live feed to the inbox. A message for
// a conversation not listed yet reloads the first page.
func (vm *ViewModel) Pushed(m domain.Message) {
	if vm.currentInbox().Apply(m) {
		vm.onChange()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := vm.LoadInbox(ctx); err != nil {
			vm.log.Debug("reload inbox", zap.Error(err))
		}
	}()
}

// Open closes any open conversation and opens id.
func (vm *ViewModel) Open(ctx context.Context, id domain.ID) (*chat.Controller, error) {
	vm.CloseChat()
	opts := vm.opts.Chat
	opts.OnChange = vm.onChange
	c, err := chat.Open(ctx, id, vm.backend, vm.transport, userSource{vm.backend}, vm.bus, vm.log, opts)
	if err != nil {
		return nil, err
	}
	in := vm.currentInbox()
	in.SetActive(id)
	in.MarkRead(id)

	vm.mu.Lock()
	vm.active = c
	vm.mu.Unlock()
	vm.onChange()
	return c, nil
}

// Active returns the open conversation, or nil.
func (vm *ViewModel) Active() *chat.Controller {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// CloseChat releases the open conversation's subscriptions.
func (vm *ViewModel) CloseChat() {
	vm.mu.Lock()
	c := vm.active
	vm.active = nil
	vm.mu.Unlock()
	if c != nil {
		c.Close()
		vm.currentInbox().SetActive("")
	}
}

// Send sends text in the open conversation. Own messages update the inbox
// preview.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	c := vm.Active()
	if c == nil {
		return ErrNoConversation
	}
	m, err := c.Send(ctx, text)
	if err != nil {
		return err
	}
	vm.Pushed(*m)
	return nil
}

// RetryLast resends the newest failed message of the open conversation.
func (vm *ViewModel) RetryLast(ctx context.Context) error {
	c := vm.Active()
	if c == nil {
		return ErrNoConversation
	}
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == domain.StatusFailed {
			m, err := c.Retry(ctx, msgs[i].ID)
			if err != nil {
				return err
			}
			vm.Pushed(*m)
			return nil
		}
	}
	return nil
}

// StartConversation messages the seller of postID and opens the new
// conversation.
func (vm *ViewModel) StartConversation(ctx context.Context, postID domain.ID, text string) (*chat.Controller, error) {
	conv, err := vm.backend.StartConversation(ctx, postID, text)
	if err != nil {
		return nil, err
	}
	if err := vm.LoadInbox(ctx); err != nil {
		vm.log.Debug("reload inbox", zap.Error(err))
	}
	return vm.Open(ctx, conv.ID)
}

// Search returns posts matching q.
func (vm *ViewModel) Search(ctx context.Context, q string) ([]domain.Post, error) {
	p, err := vm.backend.SearchPosts(ctx, domain.PostFilter{Query: q})
	if err != nil {
		return nil, err
	}
	return p.Content, nil
}

// SetConnection records the messaging connection state.
func (vm *ViewModel) SetConnection(s status.State) {
	vm.mu.Lock()
	vm.connection = s
	vm.mu.Unlock()
	vm.onChange()
}

// Connection returns the last recorded messaging state.
func (vm *ViewModel) Connection() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connection
}

// SetWorker records the daemon's worker state, "" when unreachable.
func (vm *ViewModel) SetWorker(s string) {
	vm.mu.Lock()
	changed := vm.worker != s
	vm.worker = s
	vm.mu.Unlock()
	if changed {
		vm.onChange()
	}
}

// Worker returns the last recorded worker state.
func (vm *ViewModel) Worker() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.worker
}

type userSource struct{ be Backend }

func (u userSource) User() (*domain.User, error) { return u.be.CurrentUser() }
