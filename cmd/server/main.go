// Command server runs the subscription API: GitHub sign-in, the catalog,
// embedded checkout, webhook reconciliation and self-service unsubscribe.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpmw "github.com/mihaimyh/gotier/middleware/http"
	"github.com/mihaimyh/gotier/pkg/api"
	"github.com/mihaimyh/gotier/pkg/auth"
	billingmetrics "github.com/mihaimyh/gotier/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/gotier/pkg/billing/stripe"
	"github.com/mihaimyh/gotier/pkg/config"
	"github.com/mihaimyh/gotier/pkg/gotier"
	zerologadapter "github.com/mihaimyh/gotier/pkg/gotier/logger/zerolog"
	gotiermetrics "github.com/mihaimyh/gotier/pkg/gotier/metrics/prometheus"
	"github.com/mihaimyh/gotier/storage/memory"
	"github.com/mihaimyh/gotier/storage/postgres"
	"github.com/mihaimyh/gotier/storage/redis"
)

const (
	redisConnectAttempts = 5
	redisConnectInterval = time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := zerologadapter.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger := zerologadapter.NewLogger(zl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := gotiermetrics.NewMetrics(reg, cfg.Metrics.Namespace)
	billingMetrics := billingmetrics.NewMetrics(reg, cfg.Metrics.Namespace)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	instrumented := gotier.NewInstrumentedStore(store, metrics)

	limiter, closeLimiter, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	provider, err := stripe.NewProvider(stripe.Config{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Prices:        cfg.Prices(),
		BaseURL:       cfg.App.BaseURL,
		Logger:        logger,
		Metrics:       billingMetrics,
	})
	if err != nil {
		return fmt.Errorf("stripe: %w", err)
	}
	if !cfg.Prices().Configured() {
		logger.Warn("stripe price ids are not configured; paid tiers cannot be resolved")
	}

	reconciler, err := gotier.NewReconciler(gotier.ReconcilerConfig{
		Store:    instrumented,
		Sessions: provider,
		Prices:   cfg.Prices(),
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessions(cfg.Auth.Secret, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}

	var authRoutes http.Handler
	if cfg.Auth.GitHubClientID != "" && cfg.Auth.GitHubClientSecret != "" {
		signIn, err := auth.NewHandler(auth.HandlerConfig{
			Provider: auth.NewGitHub(auth.GitHubConfig{
				ClientID:     cfg.Auth.GitHubClientID,
				ClientSecret: cfg.Auth.GitHubClientSecret,
				RedirectURL:  cfg.GitHubCallbackURL(),
			}),
			Sessions: sessions,
			Store:    instrumented,
			Logger:   logger,
			Secure:   cfg.SecureCookies(),
		})
		if err != nil {
			return err
		}
		authRoutes = signIn.Routes()
	} else {
		logger.Warn("github oauth is not configured; sign-in routes are disabled")
	}

	handler, err := api.NewHandler(api.Config{
		Store:           instrumented,
		Billing:         provider,
		Auth:            httpmw.Middleware(httpmw.Config{Sessions: sessions}),
		Prices:          cfg.Prices(),
		CheckoutLimiter: limiter,
		AllowedOrigins:  cfg.App.AllowedOrigins,
		Webhook:         provider.WebhookHandler(reconciler),
		AuthRoutes:      authRoutes,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(handler, reg, zl),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", gotier.F("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newRouter(handler *api.Handler, reg *prometheus.Registry, zl zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &accessLog{zl}, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", handler.Routes())
	return r
}

// accessLog feeds chi's request log lines into zerolog
type accessLog struct {
	logger zerolog.Logger
}

func (a *accessLog) Print(v ...interface{}) {
	a.logger.Info().Str("component", "http").Msg(fmt.Sprint(v...))
}

func openStore(ctx context.Context, cfg *config.Config, logger gotier.Logger) (gotier.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL is not set; using the in-memory store")
		return memory.New(), func() {}, nil
	}

	pgConfig := postgres.DefaultConfig()
	pgConfig.ConnectionString = cfg.Database.URL
	pgConfig.MaxConns = cfg.Database.MaxConns
	pgConfig.MinConns = cfg.Database.MinConns

	store, err := postgres.New(ctx, pgConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := store.Migrate(ctx, logger); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return store, store.Close, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, logger gotier.Logger) (gotier.RateLimiter, func(), error) {
	if cfg.Redis.URL == "" {
		return gotier.NewMemoryRateLimiter(cfg.CheckoutLimit()), func() {}, nil
	}

	client, err := redis.Connect(ctx, cfg.Redis.URL, redisConnectAttempts, redisConnectInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	rlConfig := redis.DefaultConfig()
	rlConfig.Limit = cfg.Checkout.RateLimit
	rlConfig.Window = cfg.Checkout.RateWindow

	limiter, err := redis.NewRateLimiter(client, rlConfig)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("using redis checkout rate limiter")
	return limiter, func() { _ = limiter.Close() }, nil
}
