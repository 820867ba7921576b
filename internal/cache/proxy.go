package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

// Queue persists POSTs that could not reach the origin.
type Queue interface {
	EnqueueRequest(r *store.QueuedRequest) error
}

const maxQueuedBody = 8 << 20

// Proxy is the local caching reverse proxy in front of the origin.
type Proxy struct {
	engine   *Engine
	upstream *httputil.ReverseProxy
	queue    Queue
	bus      *bus.Bus
	log      *zap.Logger
}

type queuedBodyKey struct{}

// NewProxy creates a proxy. transport may be nil for http.DefaultTransport.
func NewProxy(e *Engine, origin *url.URL, transport http.RoundTripper, q Queue, b *bus.Bus, log *zap.Logger) *Proxy {
	p := &Proxy{engine: e, queue: q, bus: b, log: log}
	p.upstream = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(origin)
			r.SetXForwarded()
		},
		Transport:    transport,
		ErrorHandler: p.upstreamError,
	}
	return p
}

// ServeHTTP answers cacheable requests through the engine once it controls,
// and proxies everything else.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/sw-status" || !p.engine.Controlling() {
		p.upstream.ServeHTTP(w, r)
		return
	}
	if Cacheable(r) {
		p.serveCached(w, r)
		return
	}
	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/") {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxQueuedBody+1))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if len(body) > maxQueuedBody {
			// Too large to queue: stream it through as is.
			r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
		} else {
			r.Body = io.NopCloser(bytes.NewReader(body))
			r = r.WithContext(context.WithValue(r.Context(), queuedBodyKey{}, body))
		}
	}
	p.upstream.ServeHTTP(w, r)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (p *Proxy) serveCached(w http.ResponseWriter, r *http.Request) {
	resp, err := p.engine.Handle(r.Context(), r)
	if err != nil {
		p.log.Debug("request failed", zap.String("url", r.URL.RequestURI()), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, ErrOffline) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = vv
	}
	if resp.Cached {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// upstreamError queues failed /api/ POSTs for background replay and answers
// 202. Other failures are 502.
func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	body, ok := r.Context().Value(queuedBodyKey{}).([]byte)
	if !ok || errors.Is(err, context.Canceled) {
		p.log.Warn("upstream failed", zap.String("method", r.Method), zap.String("url", r.URL.RequestURI()), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	header := r.Header.Clone()
	removeHopHeaders(header)
	q := &store.QueuedRequest{
		RequestID: uuid.NewString(),
		Method:    r.Method,
		URL:       r.URL.RequestURI(),
		Header:    header,
		Body:      body,
	}
	if qerr := p.queue.EnqueueRequest(q); qerr != nil {
		p.log.Error("queue request", zap.String("url", q.URL), zap.Error(qerr))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	p.log.Info("queued offline request", zap.String("url", q.URL), zap.String("request_id", q.RequestID))
	p.bus.Emit(bus.KindBgSyncQueued, q.RequestID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"queued": true, "requestId": q.RequestID})
}
