package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gategin "github.com/PaulFidika/contentgate/adapters/gin"
	"github.com/PaulFidika/contentgate/adapters/gin/handlers"
	"github.com/PaulFidika/contentgate/adapters/ginutil"
	gatehttp "github.com/PaulFidika/contentgate/adapters/http"
	"github.com/PaulFidika/contentgate/assets"
	"github.com/PaulFidika/contentgate/config"
	core "github.com/PaulFidika/contentgate/core"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/identity"
	jwtkit "github.com/PaulFidika/contentgate/jwt"
	"github.com/PaulFidika/contentgate/metrics"
	"github.com/PaulFidika/contentgate/objectstore"
	oidckit "github.com/PaulFidika/contentgate/oidc"
	memorylimiter "github.com/PaulFidika/contentgate/ratelimit/memory"
	redislimiter "github.com/PaulFidika/contentgate/ratelimit/redis"
	memorystore "github.com/PaulFidika/contentgate/storage/memory"
	pgstore "github.com/PaulFidika/contentgate/storage/postgres"
	redisstore "github.com/PaulFidika/contentgate/storage/redis"
	"github.com/PaulFidika/contentgate/tracking"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the content API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, ctx.logger())
		},
	}
}

// app holds the wired service and everything that has to be shut down with it,
// in start order.
type app struct {
	handler http.Handler
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *app) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// close runs the closers in reverse order and logs failures.
func (a *app) close(ctx context.Context, log logrus.FieldLogger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			log.WithError(err).WithField("component", c.name).Warn("shutdown failed")
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}
	a.onClose("tracing", shutdownTracing)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("content api listening")
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	a.close(shutdownCtx, log)
	return serveErr
}

// buildApp wires the pipeline from configuration. On error everything opened
// so far is closed again.
func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close(context.Background(), log)
			a = nil
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return a, err
		}
		a.onClose("postgres", func(context.Context) error { pool.Close(); return nil })
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return a, fmt.Errorf("redis ping: %w", err)
		}
		a.onClose("redis", func(context.Context) error { return rdb.Close() })
	}

	var store entitlements.Store
	var pg *pgstore.Store
	if pool != nil {
		pg = pgstore.NewStore(pool, cfg.Database.Schema)
	}
	if cfg.Content.CatalogFile != "" {
		cat, cerr := memorystore.LoadCatalogFile(cfg.Content.CatalogFile)
		if cerr != nil {
			return a, cerr
		}
		store = cat
		log.WithField("file", cfg.Content.CatalogFile).Info("serving catalog from file")
	} else {
		store = pg
	}

	verifier, keys, err := buildVerifier(ctx, cfg, log)
	if err != nil {
		return a, err
	}

	backend, objects, err := buildBackend(cfg, log)
	if err != nil {
		return a, err
	}

	tracker, err := buildTracker(ctx, a, cfg, pool, pg, rdb, log)
	if err != nil {
		return a, err
	}
	checkerOpts := []entitlements.Option{entitlements.WithLogger(log)}
	if tracker != nil {
		checkerOpts = append(checkerOpts, entitlements.WithTracker(tracker))
	}

	locatorOpts := []assets.LocatorOption{
		assets.WithParallelProbing(cfg.Storage.ParallelProbe),
		assets.WithSignTTL(cfg.GrantTTL()),
		assets.WithLocatorLogger(log),
	}
	if len(cfg.Storage.VideoExtensions) > 0 {
		locatorOpts = append(locatorOpts, assets.WithExtensions(cfg.Storage.VideoExtensions...))
	}
	issuer := assets.NewIssuer(backend,
		assets.WithTTL(cfg.GrantTTL()),
		assets.WithProbeTimeout(cfg.ProbeTimeout()),
		assets.WithMaxRedirects(cfg.Storage.MaxRedirects),
		assets.WithIssuerLogger(log),
	)

	svc, err := core.NewService(core.Options{
		Verifier:         verifier,
		Checker:          entitlements.NewChecker(store, checkerOpts...),
		Locator:          assets.NewLocator(backend, locatorOpts...),
		Issuer:           issuer,
		DocumentClient:   objectstore.NewHTTPClient(30 * time.Second),
		MaxDocumentBytes: cfg.Content.MaxDocumentBytes,
		Logger:           log,
	})
	if err != nil {
		return a, err
	}

	var jwks http.Handler
	if cfg.Auth.PublishJWKS && len(keys.RSA) > 0 {
		if jwks, err = gatehttp.JWKSHandler(keys); err != nil {
			return a, err
		}
	}
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	router := gategin.NewRouter(gategin.RouterOptions{
		Service:      svc,
		RateLimiter:  buildRateLimiter(cfg, rdb),
		CookieName:   cfg.Auth.Cookie,
		Objects:      objects,
		JWKS:         jwks,
		HealthChecks: checks,
		Logger:       log,
	})
	a.handler = otelhttp.NewHandler(router, "contentgate",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return a, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		pcfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// buildVerifier prefers local keys, then the provider JWKS, then the
// provider's user endpoint. The loaded keys are returned for JWKS publishing.
func buildVerifier(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (identity.Verifier, jwtkit.VerificationKeys, error) {
	provider, err := identity.ParseProvider(cfg.Auth.Provider)
	if err != nil {
		return nil, jwtkit.VerificationKeys{}, err
	}
	keys, err := jwtkit.LoadVerificationKeys(cfg.Auth.Secret, cfg.Auth.KeysDir)
	if err != nil {
		return nil, jwtkit.VerificationKeys{}, err
	}
	opts := identity.Options{
		Provider: provider,
		Keys:     keys,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Skew:     cfg.Skew(),
		Logger:   log,
	}
	if keys.Empty() {
		ep := oidckit.Endpoints{JWKSURL: cfg.Auth.JWKSURL, Issuer: cfg.Auth.Issuer}
		if cfg.Auth.BaseURL != "" {
			resolved, err := oidckit.ResolveEndpoints(ctx, objectstore.NewHTTPClient(10*time.Second), cfg.Auth.Provider, cfg.Auth.BaseURL)
			if err != nil {
				return nil, keys, fmt.Errorf("resolve identity provider: %w", err)
			}
			if ep.JWKSURL == "" {
				ep.JWKSURL = resolved.JWKSURL
			}
			if ep.Issuer == "" {
				ep.Issuer = resolved.Issuer
			}
			ep.UserInfoURL = resolved.UserInfoURL
		}
		opts.Issuer = ep.Issuer
		if ep.JWKSURL != "" {
			ks, err := oidckit.NewKeySet(ctx, ep.JWKSURL,
				oidckit.WithIssuer(ep.Issuer),
				oidckit.WithAudience(cfg.Auth.Audience),
				oidckit.WithSkew(cfg.Skew()),
			)
			switch {
			case err == nil:
				opts.KeySet = ks
			case ep.UserInfoURL == "":
				return nil, keys, err
			default:
				log.WithError(err).Warn("jwks unavailable, verifying through the user endpoint")
			}
		}
		if opts.KeySet == nil && ep.UserInfoURL != "" {
			ui, err := oidckit.NewUserInfoClient(ep.UserInfoURL, oidckit.WithAPIKey(cfg.Auth.APIKey))
			if err != nil {
				return nil, keys, err
			}
			opts.UserInfo = ui
			log.WithField("endpoint", ui.Endpoint()).Info("verifying sessions remotely")
		}
	}
	v, err := identity.NewVerifier(opts)
	return v, keys, err
}

// buildBackend returns the object store and, for the local backend, the
// handler serving its signed URLs.
func buildBackend(cfg *config.Config, log logrus.FieldLogger) (objectstore.Backend, http.Handler, error) {
	s := cfg.Storage
	switch s.Backend {
	case "local":
		b, err := objectstore.NewLocalBackend(s.Root, cfg.HTTP.PublicBaseURL, []byte(s.Secret))
		if err != nil {
			return nil, nil, err
		}
		return b, gatehttp.ObjectsHandler(b, log), nil
	default:
		b, err := objectstore.NewHTTPBackend(s.BaseURL, s.Bucket, s.ServiceKey,
			objectstore.WithClient(objectstore.NewHTTPClient(cfg.ProbeTimeout())),
			objectstore.WithRateLimit(s.RequestsPerSecond, s.Burst),
		)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	}
}

// buildTracker starts the configured access recording path. A nil tracker
// means tracking is off.
func buildTracker(ctx context.Context, a *app, cfg *config.Config, pool *pgxpool.Pool, pg *pgstore.Store, rdb *redis.Client, log logrus.FieldLogger) (entitlements.Tracker, error) {
	t := cfg.Tracking
	var rec tracking.Recorder
	switch t.Mode {
	case "off":
		return nil, nil
	case "postgres":
		rec = pg
	case "redis":
		counter := redisstore.NewAccessCounter(rdb, "")
		flusher := tracking.NewFlusher(counter, pg, t.FlushSpec, log.WithField("component", "tracking_flush"))
		if err := flusher.Start(); err != nil {
			return nil, err
		}
		a.onClose("tracking_flush", flusher.Stop)
		rec = counter
	case "river":
		client, err := tracking.NewRiverClient(pool, pg, t.Workers)
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start river: %w", err)
		}
		a.onClose("river", client.Stop)
		rec = tracking.NewRiverRecorder(client)
	default:
		return nil, fmt.Errorf("unknown tracking mode %q", t.Mode)
	}
	effect := tracking.NewEffect(rec, t.Workers,
		tracking.WithQueueSize(t.QueueSize),
		tracking.WithEffectLogger(log.WithField("component", "tracking")),
		tracking.WithCounters(metrics.TrackingDropped.Inc, metrics.TrackingFailed.Inc),
	)
	a.onClose("tracking", effect.Close)
	log.WithField("mode", t.Mode).Info("access tracking enabled")
	return effect, nil
}

func buildRateLimiter(cfg *config.Config, rdb *redis.Client) ginutil.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if rdb != nil {
		return redislimiter.New(rdb, map[string]redislimiter.Limit{
			ginutil.RLContent: {Limit: cfg.RateLimit.Limit, Window: cfg.RateWindow()},
		})
	}
	return memorylimiter.New(map[string]memorylimiter.Limit{
		ginutil.RLContent: {Limit: cfg.RateLimit.Limit, Window: cfg.RateWindow()},
	})
}
