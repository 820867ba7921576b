package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/domain"
)

// slowTransport subscribes to the direct queue after a delay, like a
// transport that still has to dial.
type slowTransport struct {
	mu       sync.Mutex
	subs     int
	released int
	handlers []func(domain.Message)
}

func (t *slowTransport) SubscribeToMessages(_ context.Context, fn func(domain.Message)) (func(), error) {
	time.Sleep(20 * time.Millisecond)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs++
	t.handlers = append(t.handlers, fn)
	return func() {
		t.mu.Lock()
		t.released++
		t.mu.Unlock()
	}, nil
}

func (t *slowTransport) push(m domain.Message) {
	t.mu.Lock()
	fns := append(([]func(domain.Message))(nil), t.handlers...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (*slowTransport) SubscribeToConversation(context.Context, domain.ID, func(domain.Message)) (func(), error) {
	return func() {}, nil
}
func (*slowTransport) SubscribeToTyping(context.Context, domain.ID, func(domain.TypingStatus)) (func(), error) {
	return func() {}, nil
}
func (*slowTransport) SubscribeToReadReceipts(context.Context, func(domain.ReadReceipt)) (func(), error) {
	return func() {}, nil
}
func (*slowTransport) SendTypingStatus(context.Context, domain.ID, bool) error { return nil }

func TestFeedConcurrentStartSubscribesOnce(t *testing.T) {
	tr := &slowTransport{}
	f := newFeed(tr)

	var mu sync.Mutex
	deliveries := 0
	release, _ := f.SubscribeToMessages(context.Background(), func(domain.Message) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})
	defer release()

	// goOnline and the connection observer both start the feed.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Start(context.Background()); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	tr.push(domain.Message{ID: "1", ConversationID: "4"})
	mu.Lock()
	got := deliveries
	mu.Unlock()
	if got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
	if tr.subs != 1 {
		t.Errorf("queue subscriptions = %d, want 1", tr.subs)
	}

	f.Stop()
	f.Stop()
	if tr.released != 1 {
		t.Errorf("released = %d, want 1", tr.released)
	}
}

func TestFeedRestartAfterStop(t *testing.T) {
	tr := &slowTransport{}
	f := newFeed(tr)
	if err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.Stop()
	if err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.subs != 2 || tr.released != 1 {
		t.Errorf("subs/released = %d/%d, want 2/1", tr.subs, tr.released)
	}
}
