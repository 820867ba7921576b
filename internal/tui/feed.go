package tui

import (
	"context"
	"sync"

	"github.com/thegamersstation/gsm/internal/chat"
	"github.com/thegamersstation/gsm/internal/domain"
)

// feed shares the user's direct message queue between the inbox and the
// open conversation. The transport only keeps one subscription per
// destination, so the open conversation registers here instead.
type feed struct {
	chat.Transport

	// start serializes Start and Stop so the queue is subscribed at most
	// once.
	start sync.Mutex

	mu       sync.Mutex
	next     int
	handlers map[int]func(domain.Message)
	release  func()
}

func newFeed(t chat.Transport) *feed {
	return &feed{Transport: t, handlers: map[int]func(domain.Message){}}
}

// Start subscribes to the queue once. Calling it again after a failure
// retries.
func (f *feed) Start(ctx context.Context) error {
	f.start.Lock()
	defer f.start.Unlock()

	f.mu.Lock()
	running := f.release != nil
	f.mu.Unlock()
	if running {
		return nil
	}

	release, err := f.Transport.SubscribeToMessages(ctx, f.dispatch)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.release = release
	f.mu.Unlock()
	return nil
}

// Stop drops the queue subscription. Handlers stay registered.
func (f *feed) Stop() {
	f.start.Lock()
	defer f.start.Unlock()

	f.mu.Lock()
	release := f.release
	f.release = nil
	f.mu.Unlock()
	if release != nil {
		release()
	}
}

// SubscribeToMessages registers fn on the shared queue.
func (f *feed) SubscribeToMessages(_ context.Context, fn func(domain.Message)) (func(), error) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}, nil
}

func (f *feed) dispatch(m domain.Message) {
	f.mu.Lock()
	fns := make([]func(domain.Message), 0, len(f.handlers))
	for i := 0; i < f.next; i++ {
		if fn, ok := f.handlers[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}
