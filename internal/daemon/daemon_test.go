package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/config"
	"github.com/thegamersstation/gsm/internal/lock"
	"github.com/thegamersstation/gsm/internal/profile"
	"github.com/thegamersstation/gsm/internal/tui/client"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// testHome points GSM_HOME at a short temp dir to stay under the Unix
// socket path limit.
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "gsm-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(profile.HomeEnv, dir)
	return dir
}

func writeConfig(t *testing.T, name, origin string) {
	t.Helper()
	cfg := config.Default()
	cfg.API.Origin = origin
	cfg.Worker.Listen = "127.0.0.1:0"
	cfg.Worker.SkipWaiting = true
	if err := config.Save(profile.ConfigPath(name), cfg); err != nil {
		t.Fatal(err)
	}
}

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"content":[]}`)
			return
		}
		_, _ = fmt.Fprintf(w, "page %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitState(t *testing.T, c *client.Client, want string) *client.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		st, err := c.Status(ctx)
		cancel()
		if err == nil && st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never reached %s (last %+v, err %v)", want, st, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	origin := newOrigin(t)
	writeConfig(t, "test", origin.URL)

	var (
		srv   *Server
		proxy *ProxyServer
	)
	app := fxtest.New(t, fx.NopLogger, Module(Params{Profile: "test"}), fx.Populate(&srv, &proxy))
	app.RequireStart()

	c, err := client.New(srv.SocketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	st := waitState(t, c, "ACTIVE")
	if st.Profile != "test" || st.Version != "v1.0.0" {
		t.Errorf("status = %+v", st)
	}
	if st.Buckets["static-cache-v1.0.0"] == 0 {
		t.Errorf("static bucket empty after install: %v", st.Buckets)
	}

	resp, err := http.Get("http://" + proxy.Addr() + "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "page /index.html" {
		t.Errorf("proxy GET = %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Cache") == "" {
		t.Error("controlled response missing X-Cache")
	}

	app.RequireStop()

	if _, err := os.Stat(srv.SocketPath()); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
	if pid, err := lock.Holder(profile.Dir("test")); err != nil || pid != 0 {
		t.Errorf("lock still held after stop: pid %d, err %v", pid, err)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	testHome(t)
	writeConfig(t, "busy", newOrigin(t).URL)

	lk, err := lock.Acquire(profile.Dir("busy"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	app := fx.New(fx.NopLogger, Module(Params{Profile: "busy"}))
	if err := app.Err(); err == nil || !strings.Contains(err.Error(), "profile lock held") {
		t.Fatalf("app.Err() = %v, want lock held", err)
	}
}

func TestInvalidOrigin(t *testing.T) {
	testHome(t)
	writeConfig(t, "bad", "localhost:8080")

	app := fx.New(fx.NopLogger, Module(Params{Profile: "bad"}))
	if err := app.Err(); err == nil || !strings.Contains(err.Error(), "parse origin") {
		t.Fatalf("app.Err() = %v, want origin error", err)
	}
}
