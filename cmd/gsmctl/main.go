package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/thegamersstation/gsm/internal/backend"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/config"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/lock"
	"github.com/thegamersstation/gsm/internal/logging"
	"github.com/thegamersstation/gsm/internal/profile"
	"github.com/thegamersstation/gsm/internal/store"
	"github.com/thegamersstation/gsm/internal/tui/client"
	"github.com/thegamersstation/gsm/internal/tui/views"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	offline := flag.Bool("offline", false, "read conversations from the daemon mirror")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ctl := &ctl{profile: name, json: *jsonFlag, offline: *offline}
	defer ctl.close()

	switch args[0] {
	case "status":
		ctl.status(ctx)
	case "cache":
		if len(args) < 2 {
			usage("gsmctl cache <clear|urls <url...>>")
		}
		ctl.cache(ctx, args[1], args[2:])
	case "skip-waiting":
		must(ctl.daemon().SkipWaiting(ctx))
		fmt.Println("Worker activated.")
	case "sync":
		ctl.sync(ctx)
	case "login":
		ctl.login(ctx, args[1:])
	case "logout":
		must(ctl.backend().Logout())
		fmt.Println("Logged out.")
	case "conversations":
		if len(args) < 2 || args[1] != "list" {
			usage("gsmctl conversations list")
		}
		ctl.conversations(ctx)
	case "messages":
		if len(args) < 2 {
			usage("gsmctl messages <conversation-id>")
		}
		ctl.messages(ctx, args[1])
	case "send":
		if len(args) < 3 {
			usage("gsmctl send <conversation-id> <text>")
		}
		ctl.send(ctx, args[1], args[2])
	case "share":
		if len(args) < 2 {
			usage("gsmctl share <post-id>")
		}
		ctl.share(args[1])
	case "profiles":
		if len(args) < 2 || args[1] != "list" {
			usage("gsmctl profiles list")
		}
		ctl.profiles()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: gsmctl [--profile <name>] [--json] [--offline] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "daemon commands:")
	fmt.Fprintln(os.Stderr, "  status                      Show worker status")
	fmt.Fprintln(os.Stderr, "  cache clear                 Delete every cache bucket")
	fmt.Fprintln(os.Stderr, "  cache urls <url...>         Pre-cache URLs")
	fmt.Fprintln(os.Stderr, "  skip-waiting                Activate a waiting worker")
	fmt.Fprintln(os.Stderr, "  sync                        Replay queued offline requests")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "account commands:")
	fmt.Fprintln(os.Stderr, "  login request-otp <phone>   Send a login code")
	fmt.Fprintln(os.Stderr, "  login verify <phone> <code> Complete login")
	fmt.Fprintln(os.Stderr, "  logout                      Sign out")
	fmt.Fprintln(os.Stderr, "  conversations list          List conversations")
	fmt.Fprintln(os.Stderr, "  messages <id>               Show mirrored messages")
	fmt.Fprintln(os.Stderr, "  send <id> <text>            Send a message")
	fmt.Fprintln(os.Stderr, "  share <post-id>             Print a QR code for a listing")
	fmt.Fprintln(os.Stderr, "  profiles list               List known profiles")
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func must(err error) {
	if err != nil {
		fatal(err)
	}
}

// ctl lazily opens the daemon connection or the local store, whichever the
// command needs.
type ctl struct {
	profile string
	json    bool
	offline bool

	dc *client.Client
	db *store.DB
	be *backend.Client
}

func (c *ctl) daemon() *client.Client {
	if c.dc != nil {
		return c.dc
	}
	dc, err := client.New(profile.SocketPath(c.profile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", c.profile, err)
		os.Exit(1)
	}
	c.dc = dc
	return dc
}

func (c *ctl) backend() *backend.Client {
	if c.be != nil {
		return c.be
	}
	must(profile.EnsureDir(c.profile))
	cfg, err := config.Load(profile.ConfigPath(c.profile))
	must(err)
	logger, err := logging.New(profile.LogPath(c.profile, "gsmctl"), c.profile, "gsmctl", logging.Options{Console: io.Discard})
	must(err)

	db, err := store.Open(profile.DBPath(c.profile))
	must(err)
	_, err = db.Migrate()
	must(err)
	c.db = db
	c.be = backend.New(cfg.API.BaseURL(), backend.NewTokens(db), bus.New(), logger, backend.WithTimeout(cfg.API.Timeout.Duration))
	return c.be
}

func (c *ctl) close() {
	if c.dc != nil {
		_ = c.dc.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func (c *ctl) status(ctx context.Context) {
	st, err := c.daemon().Status(ctx)
	must(err)
	if c.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile: %s\n", st.Profile)
	fmt.Printf("Worker:  %s (%s)\n", st.State, st.Version)
	fmt.Printf("Uptime:  %dms\n", st.UptimeMs)
	fmt.Printf("Queued:  %d\n", st.QueuedRequests)
	fmt.Printf("Mirror:  %d conversations\n", st.MirroredConversations)
	names := make([]string, 0, len(st.Buckets))
	for n := range st.Buckets {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  %-32s %d\n", n, st.Buckets[n])
	}
}

func (c *ctl) cache(ctx context.Context, sub string, urls []string) {
	var (
		ok  bool
		err error
	)
	switch sub {
	case "clear":
		ok, err = c.daemon().ClearCache(ctx)
	case "urls":
		if len(urls) == 0 {
			usage("gsmctl cache urls <url...>")
		}
		ok, err = c.daemon().CacheURLs(ctx, urls)
	default:
		fmt.Fprintf(os.Stderr, "unknown cache subcommand: %s\n", sub)
		os.Exit(1)
	}
	must(err)
	if c.json {
		outputJSON(map[string]bool{"success": ok})
		return
	}
	fmt.Printf("Success: %v\n", ok)
}

func (c *ctl) sync(ctx context.Context) {
	replayed, failed, err := c.daemon().Sync(ctx)
	must(err)
	if c.json {
		outputJSON(map[string]int{"replayed": replayed, "failed": failed})
		return
	}
	fmt.Printf("Replayed: %d\nFailed:   %d\n", replayed, failed)
}

func (c *ctl) login(ctx context.Context, args []string) {
	if len(args) < 2 {
		usage("gsmctl login <request-otp <phone>|verify <phone> <code>>")
	}
	phone := backend.FormatPhone(args[1])
	if !backend.ValidatePhone(phone) {
		fatal(fmt.Errorf("invalid phone number %q, expected +966 followed by 9 digits", args[1]))
	}
	switch args[0] {
	case "request-otp":
		res, err := c.backend().RequestOTP(ctx, phone)
		must(err)
		if c.json {
			outputJSON(res)
			return
		}
		fmt.Printf("Code sent to %s (expires in %ds)\n", phone, res.ExpiresInSeconds)
	case "verify":
		if len(args) < 3 {
			usage("gsmctl login verify <phone> <code>")
		}
		res, err := c.backend().VerifyOTP(ctx, phone, args[2])
		must(err)
		if c.json {
			outputJSON(map[string]any{"user_id": res.UserID, "phone": res.PhoneNumber})
			return
		}
		fmt.Printf("Logged in as user %s\n", res.UserID)
	default:
		fmt.Fprintf(os.Stderr, "unknown login subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func (c *ctl) conversations(ctx context.Context) {
	if !c.offline {
		page, err := c.backend().ListConversations(ctx, 0, 50)
		if err == nil {
			c.printConversations(page.Content)
			return
		}
		fmt.Fprintf(os.Stderr, "warning: %v; reading the daemon mirror\n", err)
	}
	rows, err := c.daemon().ListConversations(ctx, 50, 0)
	must(err)
	if c.json {
		outputJSON(rows)
		return
	}
	for _, r := range rows {
		fmt.Printf("%-8v %-32v %-16v %v\n", r["id"], r["title"], r["other_name"], r["last_message_preview"])
	}
}

func (c *ctl) printConversations(convs []domain.Conversation) {
	if c.json {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, cv := range convs {
		unread := ""
		if cv.UnreadCount > 0 {
			unread = "(" + strconv.FormatInt(cv.UnreadCount, 10) + ")"
		}
		fmt.Printf("%-8s %-32s %-16s %-5s %s\n", cv.ID, cv.Title(), cv.OtherParticipant.Name(), unread, cv.LastMessagePreview)
	}
}

func (c *ctl) messages(ctx context.Context, id string) {
	rows, err := c.daemon().ListMessages(ctx, id, 50)
	must(err)
	if c.json {
		outputJSON(rows)
		return
	}
	for _, r := range rows {
		who := "them"
		if own, _ := r["is_own"].(bool); own {
			who = "me"
		}
		at := ""
		if ms, ok := r["created_at"].(float64); ok && ms > 0 {
			at = time.UnixMilli(int64(ms)).Format("01/02 15:04")
		}
		fmt.Printf("%-11s %-4s %v\n", at, who, r["content"])
	}
}

func (c *ctl) send(ctx context.Context, id, text string) {
	be := c.backend()
	if !be.IsAuthenticated() {
		fatal(errors.New("not logged in, run gsmctl login first"))
	}
	m, err := be.SendMessage(ctx, domain.ID(id), text)
	must(err)
	if c.json {
		outputJSON(m)
		return
	}
	fmt.Printf("Sent message %s\n", m.ID)
}

func (c *ctl) share(postID string) {
	cfg, err := config.Load(profile.ConfigPath(c.profile))
	must(err)
	link := views.ShareURL(cfg.API.Origin, domain.ID(postID))
	if c.json {
		outputJSON(map[string]string{"url": link})
		return
	}
	qr, err := views.RenderQR(link)
	must(err)
	fmt.Print(qr)
	fmt.Println(link)
}

type profileInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"daemon_running"`
	PID     int    `json:"pid,omitempty"`
}

func (c *ctl) profiles() {
	names, err := profile.List()
	must(err)
	infos := make([]profileInfo, 0, len(names))
	for _, n := range names {
		pi := profileInfo{Name: n, Path: profile.Dir(n)}
		if pid, err := lock.Holder(pi.Path); err == nil && pid > 0 {
			pi.Running, pi.PID = true, pid
		}
		infos = append(infos, pi)
	}
	if c.json {
		outputJSON(infos)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No profiles found.")
		return
	}
	for _, pi := range infos {
		running := "stopped"
		if pi.Running {
			running = fmt.Sprintf("running, pid %d", pi.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", pi.Name, pi.Path, running)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
