package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/backend"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/chat"
	"github.com/thegamersstation/gsm/internal/config"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/logging"
	"github.com/thegamersstation/gsm/internal/messaging"
	"github.com/thegamersstation/gsm/internal/profile"
	"github.com/thegamersstation/gsm/internal/store"
	intsync "github.com/thegamersstation/gsm/internal/sync"
	"github.com/thegamersstation/gsm/internal/tui"
	"github.com/thegamersstation/gsm/internal/tui/client"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	noDaemon := flag.Bool("no-daemon", false, "do not start or use gsmd")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal("error: %v", err)
	}
	if err := profile.EnsureDir(name); err != nil {
		fatal("create profile dir: %v", err)
	}
	cfg, err := config.Load(profile.ConfigPath(name))
	if err != nil {
		fatal("load config: %v", err)
	}
	logger, err := logging.New(profile.LogPath(name, "gsmtui"), name, "gsmtui", logging.Options{Debug: *debug, Console: io.Discard})
	if err != nil {
		fatal("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var daemon *client.Client
	if !*noDaemon {
		daemon, err = connectDaemon(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v; continuing without the cache daemon\n", err)
			logger.Warn("daemon unavailable", zap.Error(err))
		} else {
			defer func() { _ = daemon.Close() }()
		}
	}

	db, err := store.Open(profile.DBPath(name))
	if err != nil {
		fatal("open store: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatal("migrate store: %v", err)
	}

	b := bus.New()
	tokens := backend.NewTokens(db)
	be := backend.New(cfg.API.BaseURL(), tokens, b, logger.Named("backend"), backend.WithTimeout(cfg.API.Timeout.Duration))
	transport := messaging.New(messaging.Config{
		Endpoint:       cfg.API.WSURL(),
		ReconnectDelay: cfg.Messaging.ReconnectDelay.Duration,
		HeartBeat:      cfg.Messaging.HeartBeat.Duration,
	}, tokens, b, logger.Named("messaging"))

	me := func() domain.ID {
		u, err := tokens.User()
		if err != nil || u == nil {
			return ""
		}
		return u.UserID
	}
	mirror := intsync.NewEngine(db, b, me, logger.Named("mirror"))

	lang := cfg.UI.Language
	if stored := tokens.Language(); stored != "" {
		lang = apperr.MatchLanguage(stored)
	}

	app := tui.NewApp(tui.Deps{
		Profile:    name,
		Origin:     cfg.API.Origin,
		Lang:       lang,
		Bus:        b,
		Backend:    be,
		Transport:  transport,
		Mirror:     mirror,
		Reconciler: intsync.NewReconciler(db, mirror, be, logger.Named("mirror")),
		Daemon:     daemon,
		Logger:     logger,
		Chat:       chat.Options{TypingIdle: cfg.Messaging.TypingIdle.Duration},
	})
	if err := app.Run(); err != nil {
		fatal("error: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// connectDaemon returns a client for the profile's gsmd, starting one when
// none answers.
func connectDaemon(name string) (*client.Client, error) {
	socketPath := profile.SocketPath(name)
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			return nil, fmt.Errorf("daemon did not become ready")
		}
	}
	return client.New(socketPath)
}

// probeDaemon reports whether a daemon answers Status on the socket.
func probeDaemon(socketPath string) bool {
	c, err := client.New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	gsmd := filepath.Join(filepath.Dir(executable), "gsmd")
	if _, err := os.Stat(gsmd); err != nil {
		gsmd = "gsmd"
	}

	cmd := exec.Command(gsmd, "--profile", name)
	// stderr is inherited so startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
