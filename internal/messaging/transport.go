package messaging

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
)

const maxFrameSize = 1 << 20

// session is one live STOMP connection over one WebSocket.
type session struct {
	ws   *websocket.Conn
	conn *stomp.Conn
	wire *watchedConn
}

// dial opens the WebSocket and completes the STOMP handshake. It returns
// only after CONNECTED was received.
func dial(ctx context.Context, endpoint, token string, heartBeat time.Duration) (*session, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	ws.SetReadLimit(maxFrameSize)

	wire := newWatchedConn(websocket.NetConn(context.Background(), ws, websocket.MessageText))
	// stomp.Connect has no context; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = ws.CloseNow() })
	defer stop()

	conn, err := stomp.Connect(wire,
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.Header("token", token),
		stomp.ConnOpt.HeartBeat(heartBeat, heartBeat),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(unsubscribeTimeout),
	)
	if err != nil {
		_ = ws.CloseNow()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("stomp connect: %w", ctx.Err())
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	return &session{ws: ws, conn: conn, wire: wire}, nil
}

// close sends DISCONNECT and closes the socket.
func (s *session) close() {
	_ = s.conn.Disconnect()
	_ = s.ws.Close(websocket.StatusNormalClosure, "")
}

// watchedConn signals the first read or write failure on the wire.
type watchedConn struct {
	net.Conn
	once    sync.Once
	dropped chan struct{}
}

func newWatchedConn(c net.Conn) *watchedConn {
	return &watchedConn{Conn: c, dropped: make(chan struct{})}
}

func (w *watchedConn) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if err != nil {
		w.drop()
	}
	return n, err
}

func (w *watchedConn) Write(p []byte) (int, error) {
	n, err := w.Conn.Write(p)
	if err != nil {
		w.drop()
	}
	return n, err
}

func (w *watchedConn) Close() error {
	err := w.Conn.Close()
	w.drop()
	return err
}

func (w *watchedConn) drop() {
	w.once.Do(func() { close(w.dropped) })
}

// Dropped is closed once the wire has failed or been closed.
func (w *watchedConn) Dropped() <-chan struct{} { return w.dropped }
