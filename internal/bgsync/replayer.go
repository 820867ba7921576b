// Package bgsync runs the worker's background jobs: replaying POSTs queued
// while offline and refreshing key content on a schedule.
package bgsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

// Doer performs network requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Queue is the persisted offline request queue.
type Queue interface {
	PendingRequests(limit int) ([]store.QueuedRequest, error)
	MarkRequestFailed(requestID, errMsg string) error
	DeleteRequest(requestID string) error
}

// Result summarizes one replay pass.
type Result struct {
	Replayed int
	Failed   int
}

const replayBatch = 100

// Replayer drains the offline queue against the origin.
type Replayer struct {
	queue    Queue
	client   Doer
	origin   *url.URL
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc

	mu sync.Mutex
}

// NewReplayer creates a replayer that retries every interval once started.
func NewReplayer(q Queue, client Doer, origin *url.URL, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Replayer {
	return &Replayer{
		queue:    q,
		client:   client,
		origin:   origin,
		interval: interval,
		bus:      b,
		logger:   logger,
	}
}

// Start begins replaying on a ticker.
func (r *Replayer) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the replay loop.
func (r *Replayer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Replayer) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Replay(ctx); err != nil {
				r.logger.Error("replay failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Replay sends every queued request oldest first. Requests answered 2xx are
// removed; the rest stay queued with their attempt count bumped. Concurrent
// calls run one after the other.
func (r *Replayer) Replay(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result
	pending, err := r.queue.PendingRequests(replayBatch)
	if err != nil {
		return res, fmt.Errorf("read sync queue: %w", err)
	}
	for _, q := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err := r.send(ctx, q); err != nil {
			res.Failed++
			r.logger.Warn("replay request failed", zap.String("request_id", q.RequestID), zap.String("url", q.URL), zap.Error(err))
			if merr := r.queue.MarkRequestFailed(q.RequestID, err.Error()); merr != nil {
				r.logger.Error("failed to mark request", zap.String("request_id", q.RequestID), zap.Error(merr))
			}
			r.bus.Emit(bus.KindBgSyncFailed, map[string]string{"request_id": q.RequestID, "error": err.Error()})
			continue
		}
		if err := r.queue.DeleteRequest(q.RequestID); err != nil {
			r.logger.Error("failed to dequeue request", zap.String("request_id", q.RequestID), zap.Error(err))
		}
		res.Replayed++
		r.logger.Info("request replayed", zap.String("request_id", q.RequestID), zap.String("url", q.URL))
		r.bus.Emit(bus.KindBgSyncReplayed, q.RequestID)
	}
	return res, nil
}

func (r *Replayer) send(ctx context.Context, q store.QueuedRequest) error {
	ref, err := url.Parse(q.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, q.Method, r.origin.ResolveReference(ref).String(), bytes.NewReader(q.Body))
	if err != nil {
		return err
	}
	for k, vv := range q.Header {
		req.Header[k] = vv
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
