package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-stomp/stomp/v3"
	"github.com/thegamersstation/gsm/internal/domain"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when the connection dropped between Connect
// and use.
var ErrNotConnected = errors.New("messaging client not connected")

// subscription is a tracked destination. It outlives the STOMP
// subscription so it can be re-issued after a reconnect.
type subscription struct {
	key    string
	dest   string
	handle func([]byte)
	stomp  *stomp.Subscription
}

// subscribe tracks dest under key and returns its cleanup. A later
// subscribe with the same key replaces the tracked entry; the earlier
// cleanup still releases its own subscription.
func (c *Client) subscribe(ctx context.Context, key, dest string, handle func([]byte)) (func(), error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	s := c.live
	if s == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	sub := &subscription{key: key, dest: dest, handle: handle}
	c.subs[key] = sub
	c.mu.Unlock()

	st, err := s.conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		c.mu.Lock()
		if c.subs[key] == sub {
			delete(c.subs, key)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", dest, err)
	}
	c.attach(s, sub, st)
	c.log.Debug("subscribed", zap.String("key", key), zap.String("destination", dest))

	var once sync.Once
	return func() {
		once.Do(func() { c.release(sub) })
	}, nil
}

func (c *Client) release(sub *subscription) {
	c.mu.Lock()
	if c.subs[sub.key] == sub {
		delete(c.subs, sub.key)
	}
	st := sub.stomp
	sub.stomp = nil
	c.mu.Unlock()
	if st != nil {
		unsubscribe(st)
	}
}

// attach binds st to sub unless the session dropped meanwhile, in which
// case sub stays pending for the next reconnect.
func (c *Client) attach(s *session, sub *subscription, st *stomp.Subscription) {
	c.mu.Lock()
	if c.live == s {
		sub.stomp = st
	}
	c.mu.Unlock()
	go c.read(sub, st)
}

func (c *Client) resubscribe(s *session, sub *subscription) {
	st, err := s.conn.Subscribe(sub.dest, stomp.AckAuto)
	if err != nil {
		c.log.Warn("resubscribe failed", zap.String("key", sub.key), zap.Error(err))
		return
	}
	c.mu.Lock()
	tracked := c.subs[sub.key] == sub
	c.mu.Unlock()
	if !tracked {
		unsubscribe(st)
		return
	}
	c.attach(s, sub, st)
	c.log.Debug("resubscribed", zap.String("key", sub.key))
}

func (c *Client) read(sub *subscription, st *stomp.Subscription) {
	for msg := range st.C {
		if msg.Err != nil {
			c.log.Debug("subscription ended", zap.String("key", sub.key), zap.Error(msg.Err))
			return
		}
		sub.handle(msg.Body)
	}
}

// unsubscribe sends UNSUBSCRIBE without waiting for the broker's receipt.
// The library gives up on the receipt after unsubscribeTimeout.
func unsubscribe(st *stomp.Subscription) {
	go func() { _ = st.Unsubscribe() }()
}

func decodeInto[T any](log *zap.Logger, dest string, fn func(T)) func([]byte) {
	return func(body []byte) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			log.Warn("skipping undecodable frame", zap.String("destination", dest), zap.Error(err))
			return
		}
		fn(v)
	}
}

// SubscribeToMessages delivers messages addressed to the current user.
// Without a current user nothing is subscribed.
func (c *Client) SubscribeToMessages(ctx context.Context, fn func(domain.Message)) (func(), error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if u, err := c.session.User(); err != nil || u == nil {
		return func() {}, nil
	}
	const dest = "/user/queue/messages"
	return c.subscribe(ctx, "messages", dest, decodeInto(c.log, dest, fn))
}

// SubscribeToReadReceipts delivers read receipts for the caller's messages.
func (c *Client) SubscribeToReadReceipts(ctx context.Context, fn func(domain.ReadReceipt)) (func(), error) {
	const dest = "/user/queue/read-receipts"
	return c.subscribe(ctx, "read-receipts", dest, decodeInto(c.log, dest, fn))
}

// SubscribeToTyping delivers typing indicators of a conversation.
func (c *Client) SubscribeToTyping(ctx context.Context, convID domain.ID, fn func(domain.TypingStatus)) (func(), error) {
	dest := "/topic/conversation." + convID.String() + ".typing"
	return c.subscribe(ctx, "typing-"+convID.String(), dest, decodeInto(c.log, dest, fn))
}

// SubscribeToConversation delivers every message posted to a conversation.
func (c *Client) SubscribeToConversation(ctx context.Context, convID domain.ID, fn func(domain.Message)) (func(), error) {
	dest := "/topic/conversation." + convID.String() + ".messages"
	return c.subscribe(ctx, "conv-msg-"+convID.String(), dest, decodeInto(c.log, dest, fn))
}

// SubscribeToConversationStatus asks for the other participant's presence.
func (c *Client) SubscribeToConversationStatus(ctx context.Context, convID domain.ID, fn func(domain.ConversationStatus)) (func(), error) {
	dest := "/app/conversations/" + convID.String() + "/status"
	return c.subscribe(ctx, "status-"+convID.String(), dest, decodeInto(c.log, dest, fn))
}

func (c *Client) publish(ctx context.Context, dest string, payload any) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", dest, err)
	}
	c.mu.Lock()
	s := c.live
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.conn.Send(dest, "application/json", body); err != nil {
		return fmt.Errorf("send %s: %w", dest, err)
	}
	return nil
}

// SendTypingStatus publishes the caller's typing state.
func (c *Client) SendTypingStatus(ctx context.Context, convID domain.ID, typing bool) error {
	return c.publish(ctx, "/app/conversations/"+convID.String()+"/typing", map[string]bool{"typing": typing})
}

// SendMessage posts a message over the socket instead of REST.
func (c *Client) SendMessage(ctx context.Context, convID domain.ID, content string) error {
	return c.publish(ctx, "/app/conversations/"+convID.String()+"/send", map[string]string{"content": content})
}

// MarkMessageRead acknowledges a single message.
func (c *Client) MarkMessageRead(ctx context.Context, messageID domain.ID) error {
	return c.publish(ctx, "/app/messages/"+messageID.String()+"/read", struct{}{})
}
