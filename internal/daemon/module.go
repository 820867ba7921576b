package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/thegamersstation/gsm/internal/api"
	"github.com/thegamersstation/gsm/internal/bgsync"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/cache"
	"github.com/thegamersstation/gsm/internal/config"
	"github.com/thegamersstation/gsm/internal/lock"
	"github.com/thegamersstation/gsm/internal/logging"
	"github.com/thegamersstation/gsm/internal/profile"
	"github.com/thegamersstation/gsm/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
	Debug      bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideOrigin,
			provideHTTPClient,
			provideEngine,
			provideProxy,
			provideReplayer,
			provideRefresher,
			provideWorkerService,
			NewServer,
			NewProxyServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath(p.Profile))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile, "gsmd"), p.Profile, "gsmd", logging.Options{Debug: p.Debug})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// The lock parameter orders the store after the lock so a second daemon
// never migrates a database it does not own.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideOrigin(cfg *config.Config) (*url.URL, error) {
	u, err := url.Parse(cfg.API.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse origin: %q is not an absolute URL", cfg.API.Origin)
	}
	return u, nil
}

func provideHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.API.Timeout.Duration}
}

func provideEngine(cfg *config.Config, origin *url.URL, db *store.DB, client *http.Client, b *bus.Bus, logger *zap.Logger) *cache.Engine {
	l := cfg.Worker.Limits
	return cache.NewEngine(db, client, cache.Config{
		Origin:  origin,
		Version: cfg.Worker.CacheVersion,
		Limits: map[cache.Class]int{
			cache.Static:  l.Static,
			cache.Dynamic: l.Dynamic,
			cache.Image:   l.Images,
			cache.API:     l.API,
		},
		Precache:    cfg.Worker.Precache,
		OfflinePage: cfg.Worker.OfflinePage,
		SkipWaiting: cfg.Worker.SkipWaiting,
	}, b, logger.Named("cache"))
}

func provideProxy(e *cache.Engine, origin *url.URL, db *store.DB, b *bus.Bus, logger *zap.Logger) *cache.Proxy {
	return cache.NewProxy(e, origin, nil, db, b, logger.Named("proxy"))
}

func provideReplayer(cfg *config.Config, origin *url.URL, db *store.DB, client *http.Client, b *bus.Bus, logger *zap.Logger) *bgsync.Replayer {
	return bgsync.NewReplayer(db, client, origin, cfg.Worker.SyncInterval.Duration, b, logger.Named("replay"))
}

func provideRefresher(cfg *config.Config, e *cache.Engine, b *bus.Bus, logger *zap.Logger) *bgsync.Refresher {
	return bgsync.NewRefresher(e, cfg.Worker.RefreshPaths, cfg.Worker.RefreshInterval.Duration, b, logger.Named("refresh"))
}

func provideWorkerService(p Params, e *cache.Engine, r *bgsync.Replayer, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.WorkerService {
	return api.NewWorkerService(p.Profile, e, r, db, b, logger.Named("rpc"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	proxy *ProxyServer,
	lk *lock.Lock,
	db *store.DB,
	engine *cache.Engine,
	replayer *bgsync.Replayer,
	refresher *bgsync.Refresher,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	installed := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				if err := proxy.Start(); err != nil {
					logger.Error("proxy server error", zap.Error(err))
				}
			}()

			// The proxy passes everything through until install completes.
			go func() {
				defer close(installed)
				if err := engine.Install(ctx); err != nil {
					logger.Error("worker install failed", zap.Error(err))
				}
			}()
			replayer.Start(ctx)
			refresher.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-installed
			replayer.Stop()
			refresher.Stop()
			proxy.Stop(stopCtx)
			srv.Stop(stopCtx)
			engine.Wait()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
