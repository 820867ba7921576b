package messaging

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/thegamersstation/gsm/internal/domain"
)

// wsListener hands server-side WebSocket connections to the STOMP broker.
type wsListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *wsListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

// broker is an in-process STOMP broker reachable at <url>/ws/websocket.
type broker struct {
	srv      *httptest.Server
	ln       *wsListener
	upgrades atomic.Int32

	mu    sync.Mutex
	token string
	auth  string
	live  []net.Conn
}

func newBroker(t *testing.T) *broker {
	t.Helper()
	b := &broker{ln: &wsListener{conns: make(chan net.Conn), closed: make(chan struct{})}}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ws/websocket" {
			http.NotFound(w, r)
			return
		}
		b.upgrades.Add(1)
		b.mu.Lock()
		b.token = r.URL.Query().Get("token")
		b.auth = r.Header.Get("Authorization")
		b.mu.Unlock()

		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ws.SetReadLimit(maxFrameSize)
		nc := websocket.NetConn(context.Background(), ws, websocket.MessageText)
		b.mu.Lock()
		b.live = append(b.live, nc)
		b.mu.Unlock()
		select {
		case b.ln.conns <- nc:
		case <-b.ln.closed:
			_ = nc.Close()
		}
	}))
	go func() { _ = server.Serve(b.ln) }()
	t.Cleanup(func() {
		_ = b.ln.Close()
		b.dropAll()
		b.srv.Close()
	})
	return b
}

func (b *broker) endpoint() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/v1/ws/websocket"
}

// dropAll kills every server-side socket, as a broker restart would.
func (b *broker) dropAll() {
	b.mu.Lock()
	live := b.live
	b.live = nil
	b.mu.Unlock()
	for _, c := range live {
		_ = c.Close()
	}
}

func (b *broker) handshake() (token, auth string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, b.auth
}

// peer is a second STOMP client standing in for the backend.
func (b *broker) peer(t *testing.T) *stomp.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := dial(ctx, b.endpoint(), "peer", 0)
	if err != nil {
		t.Fatalf("peer dial: %v", err)
	}
	t.Cleanup(s.close)
	return s.conn
}

// release drops a peer subscription; the test broker never sends the
// UNSUBSCRIBE receipt, so nothing waits for it.
func release(sub *stomp.Subscription) {
	go func() { _ = sub.Unsubscribe() }()
}

type fakeSession struct {
	mu    sync.Mutex
	token string
	user  *domain.User
}

func (s *fakeSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) User() (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, nil
}

// eventually repeats send until got yields a value or the deadline passes.
// Broker subscriptions register asynchronously, so a single send may race.
func eventually[T any](t *testing.T, send func(), got <-chan T) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	send()
	for {
		select {
		case v := <-got:
			return v
		case <-tick.C:
			send()
		case <-deadline:
			t.Fatal("timed out waiting for delivery")
			var zero T
			return zero
		}
	}
}
