// Package app wires the Parley server runtime: config, logging, stores, HTTP
// routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	authapi "parley/cmd/internal/auth/api"
	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/profile"
	"parley/cmd/internal/realtime"
	"parley/cmd/security/password"
	"parley/cmd/security/token"
)

// App is the Parley server runtime: it owns the stores, the HTTP handler tree
// and the realtime gateway.
type App struct {
	cfg Config
	log Logger

	backends *backends
	sessions *session.Manager
	gateway  *realtime.Gateway
	handler  http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec([]byte(cfg.JWTSecret), token.WithIssuer(sessCfg.Issuer))
	if err != nil {
		return nil, err
	}

	var (
		reg      *prometheus.Registry
		gatherer prometheus.Gatherer
		// A nil Registerer leaves collectors unregistered.
		registerer prometheus.Registerer
	)
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer, registerer = reg, reg
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, b, codec, sessCfg, pwCfg, registerer, gatherer)
	if err != nil {
		_ = b.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func wire(
	cfg Config,
	log Logger,
	b *backends,
	codec *token.Codec,
	sessCfg session.Config,
	pwCfg password.Config,
	registerer prometheus.Registerer,
	gatherer prometheus.Gatherer,
) (*App, error) {
	sessions, err := session.NewManager(sessCfg, codec, b.revoked, b.accounts, pwCfg,
		session.WithLogger(log),
		session.WithMetrics(registerer),
	)
	if err != nil {
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), b.accounts, sessions, pwCfg)
	if err != nil {
		return nil, err
	}

	chatHandler, err := chat.NewHandler(log, b.messages, b.accounts, authHandler.Authenticate)
	if err != nil {
		return nil, err
	}

	profileHandler, err := profile.NewHandler(log, b.accounts, authHandler.Authenticate)
	if err != nil {
		return nil, err
	}

	gateway := realtime.NewGateway(log, realtime.LoadConfigFromEnv(), sessions, nil,
		realtime.WithPresence(b.accounts),
		realtime.WithMetrics(registerer),
	)

	mux := http.NewServeMux()
	registerHTTP(mux, log, routes{
		auth:    authHandler,
		chat:    chatHandler,
		profile: profileHandler,
		ws:      gateway,
		metrics: gatherer,
		checks:  b.checks,
	})

	handler := WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log)

	return &App{
		cfg:      cfg,
		log:      log,
		backends: b,
		sessions: sessions,
		gateway:  gateway,
		handler:  handler,
	}, nil
}

// Handler is the full HTTP handler tree, middleware included.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Close releases store connections.
func (a *App) Close(ctx context.Context) error {
	return a.backends.Close(ctx)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.StoreDriver, "redis", a.cfg.RedisURL != "")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
