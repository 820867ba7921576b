package api_test

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/api"
	"github.com/thegamersstation/gsm/internal/bgsync"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/status"
	"github.com/thegamersstation/gsm/internal/store"
	"github.com/thegamersstation/gsm/internal/tui/client"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeCache struct {
	state   status.State
	cleared int
	cached  []string
	skipErr error
}

func (c *fakeCache) SkipWaiting(context.Context) error {
	if c.skipErr != nil {
		return c.skipErr
	}
	c.state = status.Active
	return nil
}

func (c *fakeCache) ClearAll(context.Context) error { c.cleared++; return nil }

func (c *fakeCache) CacheURLs(_ context.Context, urls []string) int {
	c.cached = append(c.cached, urls...)
	return len(urls)
}

func (c *fakeCache) State() status.State { return c.state }
func (c *fakeCache) Version() string     { return "v2" }

func (c *fakeCache) Stats() ([]store.BucketInfo, error) {
	return []store.BucketInfo{{Name: "static-cache-v2", Entries: 4}, {Name: "image-cache-v2", Entries: 1}}, nil
}

type fakeReplayer struct{ calls int }

func (r *fakeReplayer) Replay(context.Context) (bgsync.Result, error) {
	r.calls++
	return bgsync.Result{Replayed: 2, Failed: 1}, nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type harness struct {
	cache    *fakeCache
	replayer *fakeReplayer
	db       *store.DB
	bus      *bus.Bus
	client   *client.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:    &fakeCache{state: status.Waiting},
		replayer: &fakeReplayer{},
		db:       testDB(t),
		bus:      bus.New(),
	}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterWorkerServer(srv, api.NewWorkerService("main", h.cache, h.replayer, h.db, h.bus, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	h.client = c
	return h
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestWorkerMessages(t *testing.T) {
	h := newHarness(t)

	if err := h.client.SkipWaiting(ctx(t)); err != nil {
		t.Fatalf("SkipWaiting() error = %v", err)
	}
	if h.cache.state != status.Active {
		t.Errorf("state = %s after SkipWaiting", h.cache.state)
	}

	ok, err := h.client.ClearCache(ctx(t))
	if err != nil || !ok || h.cache.cleared != 1 {
		t.Errorf("ClearCache() = %v, %v (cleared %d)", ok, err, h.cache.cleared)
	}

	ok, err = h.client.CacheURLs(ctx(t), []string{"/a", "", "/b"})
	if err != nil || !ok {
		t.Fatalf("CacheURLs() = %v, %v", ok, err)
	}
	if len(h.cache.cached) != 2 || h.cache.cached[1] != "/b" {
		t.Errorf("cached = %v", h.cache.cached)
	}
}

func TestSkipWaitingFailure(t *testing.T) {
	h := newHarness(t)
	h.cache.skipErr = errors.New("worker is REDUNDANT")

	err := h.client.SkipWaiting(ctx(t))
	if grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("SkipWaiting() code = %v, want FailedPrecondition", grpcstatus.Code(err))
	}
}

func TestStatusAndSync(t *testing.T) {
	h := newHarness(t)
	if err := h.db.EnqueueRequest(&store.QueuedRequest{RequestID: "r1", Method: "POST", URL: "/api/posts"}); err != nil {
		t.Fatal(err)
	}

	st, err := h.client.Status(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "WAITING" || st.Version != "v2" || st.Profile != "main" {
		t.Errorf("status = %+v", st)
	}
	if st.Buckets["static-cache-v2"] != 4 || st.Buckets["image-cache-v2"] != 1 || st.QueuedRequests != 1 {
		t.Errorf("buckets = %v, queued = %d", st.Buckets, st.QueuedRequests)
	}

	replayed, failed, err := h.client.Sync(ctx(t))
	if err != nil || replayed != 2 || failed != 1 || h.replayer.calls != 1 {
		t.Errorf("Sync() = %d, %d, %v", replayed, failed, err)
	}
}

func TestMirrorQueries(t *testing.T) {
	h := newHarness(t)
	if err := h.db.UpsertConversation(&store.Conversation{ID: "7", Title: "PS5", LastMessageAt: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := h.db.UpsertMessage(&store.Message{ConversationID: "7", ID: "m1", Content: "hi", CreatedAt: 1000, Payload: []byte(`{"id":"m1"}`)}); err != nil {
		t.Fatal(err)
	}

	convs, err := h.client.ListConversations(ctx(t), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0]["title"] != "PS5" {
		t.Errorf("conversations = %v", convs)
	}

	msgs, err := h.client.ListMessages(ctx(t), "7", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0]["content"] != "hi" {
		t.Errorf("messages = %v", msgs)
	}
	if p, _ := msgs[0]["payload"].(map[string]any); p["id"] != "m1" {
		t.Errorf("payload = %v", msgs[0]["payload"])
	}

	if _, err := h.client.ListMessages(ctx(t), "", 10); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("ListMessages without id code = %v", grpcstatus.Code(err))
	}
}

func TestWatchEvents(t *testing.T) {
	h := newHarness(t)
	events, err := h.client.WatchEvents(ctx(t), "cache.")
	if err != nil {
		t.Fatal(err)
	}

	// The subscription is registered asynchronously on the server.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			if evt.Kind != bus.KindCacheCleared || evt.Payload != "*" || evt.ID == "" {
				t.Errorf("event = %+v", evt)
			}
			return
		case <-tick.C:
			h.bus.Emit(bus.KindBgSyncQueued, "ignored")
			h.bus.Emit(bus.KindCacheCleared, "*")
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
