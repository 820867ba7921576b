package bgsync

import (
	"context"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"go.uber.org/zap"
)

// Cacher stores fresh copies of URLs. *cache.Engine satisfies it.
type Cacher interface {
	CacheURLs(ctx context.Context, urls []string) int
}

// Refresher periodically refreshes key pages into the dynamic bucket.
type Refresher struct {
	cache    Cacher
	paths    []string
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

func NewRefresher(c Cacher, paths []string, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Refresher {
	return &Refresher{
		cache:    c,
		paths:    paths,
		interval: interval,
		bus:      b,
		logger:   logger,
	}
}

// Start begins refreshing on a ticker.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the refresh loop.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Refresher) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Refresh fetches every configured path and returns how many were stored.
func (r *Refresher) Refresh(ctx context.Context) int {
	n := r.cache.CacheURLs(ctx, r.paths)
	r.logger.Info("content refreshed", zap.Int("stored", n), zap.Int("paths", len(r.paths)))
	r.bus.Emit(bus.KindContentRefresh, n)
	return n
}
