package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/status"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store is the persistence the engine needs.
type Store interface {
	PutEntry(e *store.Entry) error
	MatchEntry(bucket, method, url string) (*store.Entry, error)
	TrimBucket(bucket string, max int) (int, error)
	DeleteBucket(name string) (bool, error)
	ListBuckets() ([]store.BucketInfo, error)
}

// Config is the engine configuration.
type Config struct {
	Origin      *url.URL
	Version     string
	Limits      map[Class]int
	Precache    []string
	OfflinePage string
	SkipWaiting bool
}

// Bucket is a versioned bucket with its entry cap (0 = unlimited).
type Bucket struct {
	Name       string
	MaxEntries int
}

// Response is a buffered response from the network or the cache.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Cached bool
}

// ErrOffline is returned when the network fails and nothing cached can answer.
var ErrOffline = errors.New("network unavailable and no cached response")

const revalidateTimeout = 30 * time.Second

// Engine answers requests with network-first or cache-first strategies
// backed by versioned buckets.
type Engine struct {
	store Store
	fetch Fetcher
	cfg   Config
	state *status.Machine
	bus   *bus.Bus
	log   *zap.Logger

	bg sync.WaitGroup
}

// NewEngine creates an engine in the Installing state.
func NewEngine(st Store, f Fetcher, cfg Config, b *bus.Bus, log *zap.Logger) *Engine {
	return &Engine{
		store: st,
		fetch: f,
		cfg:   cfg,
		state: status.NewMachine(b, status.Worker),
		bus:   b,
		log:   log,
	}
}

// Bucket returns the current-version bucket of a class.
func (e *Engine) Bucket(c Class) Bucket {
	return Bucket{Name: BucketName(c, e.cfg.Version), MaxEntries: e.cfg.Limits[c]}
}

// Buckets returns every current-version bucket.
func (e *Engine) Buckets() []Bucket {
	return []Bucket{e.Bucket(Static), e.Bucket(Dynamic), e.Bucket(Image), e.Bucket(API)}
}

// Version returns the cache version.
func (e *Engine) Version() string { return e.cfg.Version }

// State returns the worker lifecycle state.
func (e *Engine) State() status.State { return e.state.Current() }

// Controlling reports whether the engine should intercept requests.
func (e *Engine) Controlling() bool { return e.state.Current() == status.Active }

// Install precaches the static manifest and the offline page. Any failure
// fails install and the worker becomes redundant.
func (e *Engine) Install(ctx context.Context) error {
	urls := slices.Clone(e.cfg.Precache)
	if e.cfg.OfflinePage != "" && !slices.Contains(urls, e.cfg.OfflinePage) {
		urls = append(urls, e.cfg.OfflinePage)
	}
	static := e.Bucket(Static)

	g, gctx := errgroup.WithContext(ctx)
	for _, raw := range urls {
		g.Go(func() error {
			req, err := e.newRequest(gctx, raw)
			if err != nil {
				return err
			}
			resp, err := e.network(req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", raw, err)
			}
			if resp.Status != http.StatusOK {
				return fmt.Errorf("precache %s: status %d", raw, resp.Status)
			}
			if err := e.store.PutEntry(entryFor(static, req, resp)); err != nil {
				return fmt.Errorf("precache %s: %w", raw, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = e.state.Transition(status.Redundant)
		return fmt.Errorf("install: %w", err)
	}
	if err := e.state.Transition(status.Waiting); err != nil {
		return err
	}
	e.log.Info("worker installed", zap.String("version", e.cfg.Version), zap.Int("precached", len(urls)))
	if e.cfg.SkipWaiting {
		return e.Activate(ctx)
	}
	return nil
}

// SkipWaiting activates a waiting worker. An already active worker is left as is.
func (e *Engine) SkipWaiting(ctx context.Context) error {
	switch e.state.Current() {
	case status.Active:
		return nil
	case status.Waiting:
		return e.Activate(ctx)
	default:
		return fmt.Errorf("skip waiting: worker is %s", e.state.Current())
	}
}

// Activate deletes buckets of other versions and takes control.
func (e *Engine) Activate(ctx context.Context) error {
	current := map[string]bool{}
	for _, b := range e.Buckets() {
		current[b.Name] = true
	}
	existing, err := e.store.ListBuckets()
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for _, b := range existing {
		if current[b.Name] {
			continue
		}
		if _, err := e.store.DeleteBucket(b.Name); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		e.log.Info("deleted stale bucket", zap.String("bucket", b.Name))
		e.bus.Emit(bus.KindCacheCleared, b.Name)
	}
	if err := e.state.Transition(status.Active); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// Handle answers a request. Non-cacheable requests go to the network.
func (e *Engine) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	if !Cacheable(req) {
		return e.network(e.outgoing(ctx, req))
	}
	route := Select(req.URL)
	bucket := e.Bucket(route.Class)
	if route.Strategy == CacheFirst {
		return e.cacheFirst(ctx, req, bucket)
	}
	return e.networkFirst(ctx, req, bucket)
}

func (e *Engine) networkFirst(ctx context.Context, req *http.Request, bucket Bucket) (*Response, error) {
	out := e.outgoing(ctx, req)
	resp, err := e.network(out)
	if err == nil {
		if resp.Status == http.StatusOK {
			e.put(bucket, out, resp)
		}
		return resp, nil
	}
	e.log.Debug("network failed, trying cache", zap.String("url", out.URL.RequestURI()), zap.Error(err))
	if cached := e.match(out.URL.RequestURI()); cached != nil {
		return cached, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrOffline, err)
}

func (e *Engine) cacheFirst(ctx context.Context, req *http.Request, bucket Bucket) (*Response, error) {
	out := e.outgoing(ctx, req)
	if cached := e.match(out.URL.RequestURI()); cached != nil {
		e.revalidate(out, bucket)
		return cached, nil
	}
	resp, err := e.network(out)
	if err == nil {
		if resp.Status == http.StatusOK {
			e.put(bucket, out, resp)
		}
		return resp, nil
	}
	if IsNavigation(req) && e.cfg.OfflinePage != "" {
		if page := e.match(e.offlineKey()); page != nil {
			return page, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrOffline, err)
}

// revalidate refreshes a cache hit in the background. Errors are logged.
func (e *Engine) revalidate(req *http.Request, bucket Bucket) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), revalidateTimeout)
		defer cancel()
		resp, err := e.network(req.Clone(ctx))
		if err != nil {
			e.log.Debug("revalidate failed", zap.String("url", req.URL.RequestURI()), zap.Error(err))
			return
		}
		if resp.Status == http.StatusOK {
			e.put(bucket, req, resp)
		}
	}()
}

// Wait blocks until background revalidations finish.
func (e *Engine) Wait() { e.bg.Wait() }

// ClearAll deletes every bucket.
func (e *Engine) ClearAll(ctx context.Context) error {
	buckets, err := e.store.ListBuckets()
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.store.DeleteBucket(b.Name); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	e.log.Info("cache cleared", zap.Int("buckets", len(buckets)))
	e.bus.Emit(bus.KindCacheCleared, "*")
	return nil
}

// CacheURLs fetches each URL into the dynamic bucket and returns how many
// were stored. Per-URL failures are logged and skipped.
func (e *Engine) CacheURLs(ctx context.Context, urls []string) int {
	dynamic := e.Bucket(Dynamic)
	var (
		mu     sync.Mutex
		stored int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, raw := range urls {
		g.Go(func() error {
			req, err := e.newRequest(gctx, raw)
			if err != nil {
				e.log.Warn("cache url", zap.String("url", raw), zap.Error(err))
				return nil
			}
			resp, err := e.network(req)
			if err != nil || resp.Status != http.StatusOK {
				e.log.Debug("cache url skipped", zap.String("url", raw), zap.Error(err))
				return nil
			}
			if e.put(dynamic, req, resp) {
				mu.Lock()
				stored++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return stored
}

// Stats returns every stored bucket with its entry count.
func (e *Engine) Stats() ([]store.BucketInfo, error) {
	return e.store.ListBuckets()
}

// put stores a copy and trims the bucket. Failures are logged; serving never waits on them.
func (e *Engine) put(bucket Bucket, req *http.Request, resp *Response) bool {
	if err := e.store.PutEntry(entryFor(bucket, req, resp)); err != nil {
		e.log.Warn("cache write failed", zap.String("bucket", bucket.Name), zap.Error(err))
		return false
	}
	e.bus.Emit(bus.KindCacheStored, req.URL.RequestURI())
	if bucket.MaxEntries > 0 {
		n, err := e.store.TrimBucket(bucket.Name, bucket.MaxEntries)
		if err != nil {
			e.log.Warn("cache trim failed", zap.String("bucket", bucket.Name), zap.Error(err))
		} else if n > 0 {
			e.bus.Emit(bus.KindCacheTrimmed, bucket.Name)
		}
	}
	return true
}

func (e *Engine) match(key string) *Response {
	ent, err := e.store.MatchEntry("", http.MethodGet, key)
	if err != nil {
		e.log.Warn("cache read failed", zap.String("url", key), zap.Error(err))
		return nil
	}
	if ent == nil {
		return nil
	}
	return &Response{Status: ent.Status, Header: ent.Header, Body: ent.Body, Cached: true}
}

func (e *Engine) network(req *http.Request) (*Response, error) {
	resp, err := e.fetch.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.RequestURI(), err)
	}
	header := resp.Header.Clone()
	removeHopHeaders(header)
	return &Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}

// offlineKey is the cache key Install stored the offline page under.
func (e *Engine) offlineKey() string {
	req, err := e.newRequest(context.Background(), e.cfg.OfflinePage)
	if err != nil {
		return e.cfg.OfflinePage
	}
	return req.URL.RequestURI()
}

// newRequest builds a GET for a path or an absolute URL on the origin.
func (e *Engine) newRequest(ctx context.Context, raw string) (*http.Request, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Origin.ResolveReference(ref).String(), nil)
}

// outgoing rewrites an incoming request to target the origin.
func (e *Engine) outgoing(ctx context.Context, in *http.Request) *http.Request {
	out := in.Clone(ctx)
	out.RequestURI = ""
	out.Host = ""
	u := *e.cfg.Origin
	u.Path = in.URL.Path
	u.RawPath = in.URL.RawPath
	u.RawQuery = in.URL.RawQuery
	out.URL = &u
	removeHopHeaders(out.Header)
	return out
}

func entryFor(b Bucket, req *http.Request, resp *Response) *store.Entry {
	return &store.Entry{
		Bucket: b.Name,
		Method: http.MethodGet,
		URL:    req.URL.RequestURI(),
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
	}
}

var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
