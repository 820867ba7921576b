// Package messaging is the STOMP-over-WebSocket transport for real-time chat.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNoToken is returned by Connect when no access token is stored.
	ErrNoToken = errors.New("No authentication token available")
	// ErrClosed is returned to an attempt that Disconnect overtook.
	ErrClosed = errors.New("messaging client disconnected")
)

const (
	dialTimeout        = 30 * time.Second
	unsubscribeTimeout = 2 * time.Second
)

// Session provides credentials. *backend.Tokens satisfies it.
type Session interface {
	AccessToken() string
	User() (*domain.User, error)
}

// Config configures the Client.
type Config struct {
	// Endpoint is the WebSocket URL, e.g. ws://host/api/v1/ws/websocket.
	Endpoint       string
	ReconnectDelay time.Duration
	HeartBeat      time.Duration
}

// attempt is one in-flight connection attempt shared by every caller.
type attempt struct {
	done chan struct{}
	err  error
}

// Client owns at most one STOMP connection and the subscriptions on it.
type Client struct {
	cfg     Config
	session Session
	log     *zap.Logger
	state   *status.Machine

	mu        sync.Mutex
	live      *session
	gen       uint64
	attempt   *attempt
	closed    bool
	retry     *time.Timer
	subs      map[string]*subscription
	observers map[int]func(bool)
	nextObs   int
}

// New creates a disconnected client. b may be nil.
func New(cfg Config, s Session, b *bus.Bus, log *zap.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Client{
		cfg:       cfg,
		session:   s,
		log:       log,
		state:     status.NewMachine(b, status.Connection),
		subs:      make(map[string]*subscription),
		observers: make(map[int]func(bool)),
	}
}

// Connect ensures a live connection. Concurrent callers share one attempt
// and one socket. A failed attempt is forgotten so the next call retries.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.live != nil {
		c.mu.Unlock()
		return nil
	}
	if a := c.attempt; a != nil {
		c.mu.Unlock()
		return wait(ctx, a)
	}
	token := c.session.AccessToken()
	if token == "" {
		c.mu.Unlock()
		return ErrNoToken
	}
	a := &attempt{done: make(chan struct{})}
	c.attempt = a
	c.closed = false
	c.mu.Unlock()

	c.transition(status.Connecting)
	go c.run(a, token)
	return wait(ctx, a)
}

func wait(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run dials on behalf of every caller waiting on a.
func (c *Client) run(a *attempt, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	s, err := dial(ctx, c.cfg.Endpoint, token, c.cfg.HeartBeat)

	var (
		gen     uint64
		pending []*subscription
	)
	c.mu.Lock()
	c.attempt = nil
	discard := err == nil && c.closed
	if err == nil && !discard {
		c.live = s
		c.gen++
		gen = c.gen
		for _, sub := range c.subs {
			if sub.stomp == nil {
				pending = append(pending, sub)
			}
		}
	}
	c.mu.Unlock()

	if discard {
		s.close()
		err = ErrClosed
	}
	if err != nil {
		c.log.Warn("messaging connect failed", zap.Error(err))
		c.transition(status.Disconnected)
		c.notify(false)
		a.err = err
		close(a.done)
		return
	}

	c.log.Info("messaging connected", zap.String("endpoint", c.cfg.Endpoint))
	c.transition(status.Connected)
	c.notify(true)
	for _, sub := range pending {
		c.resubscribe(s, sub)
	}
	go c.watch(gen, s)

	close(a.done)
}

// watch turns a wire failure into a drop followed by a delayed reconnect.
func (c *Client) watch(gen uint64, s *session) {
	<-s.wire.Dropped()

	c.mu.Lock()
	if c.gen != gen || c.live != s {
		c.mu.Unlock()
		return
	}
	c.live = nil
	for _, sub := range c.subs {
		sub.stomp = nil
	}
	closed := c.closed
	c.mu.Unlock()

	_ = s.ws.CloseNow()
	c.log.Warn("messaging connection dropped")
	c.transition(status.Disconnected)
	c.notify(false)
	if !closed {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	c.retry = time.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	err := c.Connect(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrClosed):
		c.log.Info("messaging reconnect stopped", zap.Error(err))
	default:
		c.scheduleReconnect()
	}
}

// Disconnect unsubscribes everything, closes the connection and stops
// reconnecting. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	s := c.live
	c.live = nil
	c.gen++
	subs := c.subs
	c.subs = make(map[string]*subscription)
	var active []*stomp.Subscription
	for _, sub := range subs {
		if sub.stomp != nil {
			active = append(active, sub.stomp)
			sub.stomp = nil
		}
	}
	c.mu.Unlock()

	for _, st := range active {
		unsubscribe(st)
	}
	if s == nil {
		return
	}
	s.close()
	c.log.Info("messaging disconnected")
	c.transition(status.Disconnected)
	c.notify(false)
}

// IsConnected reports whether a STOMP session is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

// State returns the connection state.
func (c *Client) State() status.State { return c.state.Current() }

// OnConnectionChange registers fn for connect (true) and disconnect (false)
// transitions. It returns a func that removes fn.
func (c *Client) OnConnectionChange(fn func(connected bool)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) notify(connected bool) {
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		c.safeCall(fn, connected)
	}
}

func (c *Client) safeCall(fn func(bool), connected bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("connection observer panicked", zap.Any("panic", r))
		}
	}()
	fn(connected)
}

func (c *Client) transition(to status.State) {
	if c.state.Current() == to {
		return
	}
	if err := c.state.Transition(to); err != nil {
		c.log.Debug("connection state", zap.Error(err))
	}
}

// Localize gives the user-facing copy for a messaging error.
func Localize(err error, lang string) string {
	if errors.Is(err, ErrNoToken) {
		return apperr.Lookup(apperr.Unauthorized).In(lang)
	}
	return apperr.Localize(err, lang)
}
