package bgsync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type seenRequest struct {
	Path, Body, Auth string
}

// upstream accepts every POST except /api/v1/reject.
func upstream(t *testing.T) (*url.URL, func() []seenRequest) {
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{r.URL.Path, string(b), r.Header.Get("Authorization")})
		mu.Unlock()
		if r.URL.Path == "/api/v1/reject" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return u, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func enqueue(t *testing.T, db *store.DB, id, path, body string) {
	t.Helper()
	err := db.EnqueueRequest(&store.QueuedRequest{
		RequestID: id, Method: http.MethodPost, URL: path,
		Header: http.Header{"Authorization": {"Bearer t"}, "Content-Type": {"application/json"}},
		Body:   []byte(body),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReplayDeletesAcceptedKeepsRejected(t *testing.T) {
	db := testDB(t)
	origin, seen := upstream(t)
	b := bus.New()
	ch, unsub := b.Subscribe("bgsync.", 10)
	defer unsub()

	enqueue(t, db, "r1", "/api/v1/posts", `{"title":"a"}`)
	enqueue(t, db, "r2", "/api/v1/reject", `{}`)
	enqueue(t, db, "r3", "/api/v1/conversations", `{"postId":1}`)

	r := NewReplayer(db, http.DefaultClient, origin, time.Hour, b, zap.NewNop())
	res, err := r.Replay(context.Background())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Replayed != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 replayed 1 failed", res)
	}

	got := seen()
	if len(got) != 3 || got[0].Path != "/api/v1/posts" || got[2].Path != "/api/v1/conversations" {
		t.Fatalf("upstream order = %+v", got)
	}
	if got[0].Body != `{"title":"a"}` || got[0].Auth != "Bearer t" {
		t.Errorf("replayed request = %+v", got[0])
	}

	pending, _ := db.PendingRequests(10)
	if len(pending) != 1 || pending[0].RequestID != "r2" || pending[0].Attempts != 1 {
		t.Errorf("pending = %+v, want r2 with 1 attempt", pending)
	}

	kinds := map[string]int{}
	for len(ch) > 0 {
		kinds[(<-ch).Kind]++
	}
	if kinds[bus.KindBgSyncReplayed] != 2 || kinds[bus.KindBgSyncFailed] != 1 {
		t.Errorf("events = %v", kinds)
	}
}

func TestReplayKeepsRequestsWhileOffline(t *testing.T) {
	db := testDB(t)
	origin, _ := upstream(t)
	offline, _ := url.Parse("http://127.0.0.1:1")
	enqueue(t, db, "r1", "/api/v1/posts", `{}`)

	r := NewReplayer(db, http.DefaultClient, offline, time.Hour, bus.New(), zap.NewNop())
	if res, _ := r.Replay(context.Background()); res.Failed != 1 {
		t.Errorf("offline result = %+v", res)
	}
	if n, _ := db.QueueLength(); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}

	r = NewReplayer(db, http.DefaultClient, origin, time.Hour, bus.New(), zap.NewNop())
	if res, _ := r.Replay(context.Background()); res.Replayed != 1 {
		t.Errorf("online result = %+v", res)
	}
	if n, _ := db.QueueLength(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestReplayerLoop(t *testing.T) {
	db := testDB(t)
	origin, _ := upstream(t)
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindBgSyncReplayed, 1)
	defer unsub()
	enqueue(t, db, "r1", "/api/v1/posts", `{}`)

	r := NewReplayer(db, http.DefaultClient, origin, 20*time.Millisecond, b, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("queued request was not replayed by the loop")
	}
}

type fakeCacher struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeCacher) CacheURLs(_ context.Context, urls []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, urls)
	return len(urls)
}

func TestRefresherRefreshesConfiguredPaths(t *testing.T) {
	c := &fakeCacher{}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindContentRefresh, 1)
	defer unsub()

	paths := []string{"/", "/api/posts", "/api/categories"}
	r := NewRefresher(c, paths, time.Hour, b, zap.NewNop())
	if n := r.Refresh(context.Background()); n != 3 {
		t.Errorf("Refresh() = %d, want 3", n)
	}
	if len(c.calls) != 1 || len(c.calls[0]) != 3 {
		t.Errorf("calls = %v", c.calls)
	}
	select {
	case ev := <-ch:
		if ev.Payload != 3 {
			t.Errorf("payload = %v", ev.Payload)
		}
	default:
		t.Error("no refresh event")
	}
}
