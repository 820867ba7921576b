package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"go.uber.org/zap"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: map[string]string{}} }

func (k *memKV) GetItem(key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok, nil
}

func (k *memKV) SetItem(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	return nil
}

func (k *memKV) RemoveItems(keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.m, key)
	}
	return nil
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *Tokens, *bus.Bus) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := NewTokens(newMemKV())
	b := bus.New()
	return New(srv.URL, tokens, b, zap.NewNop()), tokens, b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDoAttachesBearer(t *testing.T) {
	var got string
	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeJSON(w, 200, []domain.Category{{ID: "1", NameEn: "Consoles"}})
	}))
	if err := tokens.SetTokens("acc", "ref"); err != nil {
		t.Fatal(err)
	}

	cats, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if got != "Bearer acc" {
		t.Errorf("Authorization = %q", got)
	}
	if len(cats) != 1 || cats[0].NameEn != "Consoles" {
		t.Errorf("categories = %+v", cats)
	}
}

// Concurrent callers rejected with a stale token share one refresh.
func TestDoSharesRefresh(t *testing.T) {
	const callers = 5
	var rejected, refreshes atomic.Int32
	allRejected := make(chan struct{})
	var once sync.Once

	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshes.Add(1)
			if r.Header.Get("Authorization") != "Bearer ref" {
				writeJSON(w, 401, map[string]string{"message": "bad refresh"})
				return
			}
			select {
			case <-allRejected:
			case <-time.After(2 * time.Second):
			}
			writeJSON(w, 200, domain.AuthResponse{AccessToken: "new", RefreshToken: "ref2"})
		default:
			if r.Header.Get("Authorization") != "Bearer new" {
				if rejected.Add(1) == callers {
					once.Do(func() { close(allRejected) })
				}
				writeJSON(w, 401, map[string]string{"message": "expired"})
				return
			}
			writeJSON(w, 200, domain.Post{ID: "9", Title: "PS5"})
		}
	}))
	if err := tokens.SetTokens("old", "ref"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Post(context.Background(), "9")
			if err == nil && p.Title != "PS5" {
				err = errors.New("wrong post " + p.Title)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Post() error = %v", err)
		}
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
	if tokens.AccessToken() != "new" || tokens.RefreshToken() != "ref2" {
		t.Errorf("tokens = %q/%q", tokens.AccessToken(), tokens.RefreshToken())
	}
}

func TestDoSecondRejectionEndsSession(t *testing.T) {
	var calls atomic.Int32
	c, tokens, b := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			writeJSON(w, 200, domain.AuthResponse{AccessToken: "new", RefreshToken: "ref2"})
			return
		}
		calls.Add(1)
		writeJSON(w, 403, map[string]string{"message": "Forbidden"})
	}))
	_ = tokens.SetTokens("old", "ref")
	_ = tokens.SetUser(domain.User{UserID: "7"})
	_ = tokens.SetLanguage("en")
	events, unsub := b.Subscribe("auth.", 4)
	defer unsub()

	_, err := c.Profile(context.Background())
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("Profile() error = %v, want 403 APIError", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
	if c.IsAuthenticated() {
		t.Error("session should be cleared")
	}
	if u, _ := tokens.User(); u != nil {
		t.Errorf("user = %+v, want nil", u)
	}
	if tokens.Language() != "en" {
		t.Error("language preference should survive logout")
	}

	select {
	case ev := <-events:
		nav, ok := ev.Payload.(bus.Navigation)
		if ev.Kind != bus.KindAuthLogout || !ok || nav.To != "/login" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no auth.logout event")
	}
}

func TestDoRefreshFailureEndsSession(t *testing.T) {
	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			writeJSON(w, 401, map[string]string{"message": "refresh expired"})
			return
		}
		writeJSON(w, 401, map[string]string{"message": "expired"})
	}))
	_ = tokens.SetTokens("old", "ref")

	err := c.MarkAsRead(context.Background(), "3")
	if apperr.StatusOf(err) != 401 {
		t.Fatalf("MarkAsRead() error = %v, want 401", err)
	}
	if c.IsAuthenticated() || tokens.RefreshToken() != "" {
		t.Error("tokens should be cleared")
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	c, _, _ := newTestClient(t, http.NotFoundHandler())
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Refresh() error = %v, want ErrNoRefreshToken", err)
	}
}

func TestErrorCarriesServerMessage(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]string{"messageAr": "المنتج غير موجود", "messageEn": "Post not found"})
	}))

	_, err := c.Post(context.Background(), "404")
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	m := apperr.Parse(err)
	if m.En != "Post not found" || m.Ar != "المنتج غير موجود" {
		t.Errorf("Parse() = %+v", m)
	}
}

func TestVerifyOTPStoresSession(t *testing.T) {
	var body map[string]string
	c, tokens, b := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/otp/verify" || r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected %s %s auth=%q", r.Method, r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, 200, map[string]any{
			"accessToken": "a", "refreshToken": "r", "userId": 7,
			"phoneNumber": "+966512345678", "role": "USER", "profileCompleted": false, "isNewUser": true,
		})
	}))
	events, unsub := b.Subscribe("auth.login", 1)
	defer unsub()

	if _, err := c.VerifyOTP(context.Background(), "+966512345678", "1234"); err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if body["code"] != "1234" || body["phoneNumber"] != "+966512345678" {
		t.Errorf("body = %v", body)
	}
	if tokens.AccessToken() != "a" || tokens.RefreshToken() != "r" {
		t.Error("tokens not stored")
	}
	u, err := c.CurrentUser()
	if err != nil || u == nil || u.UserID != "7" || !u.IsNewUser {
		t.Errorf("CurrentUser() = %+v, %v", u, err)
	}
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Error("no auth.login event")
	}
}

func TestQueries(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		writeJSON(w, 200, map[string]any{})
	}))
	ctx := context.Background()
	page, size := 2, 10

	_, _ = c.GetMessages(ctx, "5", "", 0)
	_, _ = c.GetMessages(ctx, "5", "88", 30)
	_ = c.Mute(ctx, "5", true)
	_ = c.Block(ctx, "5", false)
	_, _ = c.SearchPosts(ctx, domain.PostFilter{Query: "ps5", CityID: "3", Page: &page, Size: &size})
	_, _ = c.Posts(ctx, domain.PostFilter{Query: "ignored"})
	_ = c.DeleteMessage(ctx, "5", "77")

	want := []string{
		"GET /conversations/5/messages?size=20",
		"GET /conversations/5/messages?cursor=88&size=30",
		"PUT /conversations/5/mute?muted=true",
		"PUT /conversations/5/block?blocked=false",
		"GET /posts/search?cityId=3&page=2&q=ps5&size=10",
		"GET /posts",
		"DELETE /conversations/5/messages/77",
	}
	if len(seen) != len(want) {
		t.Fatalf("requests = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestUnreadCount(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("size") != "1" {
			t.Errorf("size = %q", r.URL.Query().Get("size"))
		}
		writeJSON(w, 200, map[string]any{"content": []any{}, "totalUnreadConversations": 3})
	}))
	if n := c.UnreadCount(context.Background()); n != 3 {
		t.Errorf("UnreadCount() = %d, want 3", n)
	}

	down, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, nil)
	}))
	if n := down.UnreadCount(context.Background()); n != 0 {
		t.Errorf("UnreadCount() on error = %d, want 0", n)
	}
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0512345678", "+966512345678"},
		{"512345678", "+966512345678"},
		{"966512345678", "+966512345678"},
		{"+966 51 234 5678", "+966512345678"},
		{"(051) 234-5678", "+966512345678"},
	}
	for _, tt := range tests {
		got := FormatPhone(tt.in)
		if got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !ValidatePhone(got) {
			t.Errorf("ValidatePhone(%q) = false", got)
		}
	}
	for _, bad := range []string{"+96651234567", "+9665123456789", "0512345678", strings.Repeat("9", 12)} {
		if ValidatePhone(bad) {
			t.Errorf("ValidatePhone(%q) = true", bad)
		}
	}
}
