package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTypingIdle is how long after the last keystroke typing stops.
const DefaultTypingIdle = 3 * time.Second

// Typing debounces the local typing indicator: true is published on the
// first keystroke of an idle period, false once when the period ends.
// Keystroke and Blur never wait for the network; publishes run in order on
// a background goroutine.
type Typing struct {
	publish func(ctx context.Context, typing bool) error
	idle    time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    uint64

	queue   []bool
	sending bool
}

// NewTyping creates a debouncer. idle <= 0 means DefaultTypingIdle.
func NewTyping(publish func(ctx context.Context, typing bool) error, idle time.Duration, log *zap.Logger) *Typing {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typing{publish: publish, idle: idle, log: log}
}

// Keystroke marks input activity and rearms the idle timer.
func (t *Typing) Keystroke() {
	t.mu.Lock()
	start := !t.typing
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	if start {
		t.send(true)
	}
}

// Blur stops typing immediately.
func (t *Typing) Blur() { t.stop() }

func (t *Typing) expire(gen uint64) {
	t.mu.Lock()
	stale := gen != t.gen
	t.mu.Unlock()
	if !stale {
		t.stop()
	}
}

func (t *Typing) stop() {
	t.mu.Lock()
	was := t.typing
	t.typing = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if was {
		t.send(false)
	}
}

// Active reports whether the indicator is on.
func (t *Typing) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// send queues a publish and starts the drain goroutine when it is idle.
func (t *Typing) send(typing bool) {
	t.mu.Lock()
	t.queue = append(t.queue, typing)
	start := !t.sending
	t.sending = true
	t.mu.Unlock()
	if start {
		go t.drain()
	}
}

func (t *Typing) drain() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.sending = false
			t.mu.Unlock()
			return
		}
		typing := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.publish(ctx, typing); err != nil {
			t.log.Debug("typing status not sent", zap.Bool("typing", typing), zap.Error(err))
		}
		cancel()
	}
}
