package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sunelia/solar-funnel/internal/api/router"
	"github.com/sunelia/solar-funnel/internal/calculation"
	appconfig "github.com/sunelia/solar-funnel/internal/config"
	"github.com/sunelia/solar-funnel/internal/countdown"
	"github.com/sunelia/solar-funnel/internal/funnel"
	"github.com/sunelia/solar-funnel/internal/kits"
	"github.com/sunelia/solar-funnel/internal/observability/metrics"
	"github.com/sunelia/solar-funnel/internal/pvgis"
	"github.com/sunelia/solar-funnel/internal/results"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting solar-funnel API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	funnelMetrics := metrics.NewFunnelMetrics(registry)

	store := newSessionStore(ctx, cfg, logger)

	backend := pvgis.NewClient(cfg.BackendBaseURL, logger.WithComponent("pvgis")).
		WithTimeout(cfg.BackendTimeout)
	catalog := kits.NewCatalog(backend, logger.WithComponent("kits"))
	orchestrator := calculation.NewOrchestrator(backend, store, funnelMetrics, logger.WithComponent("calculation"))

	presenter := countdown.NewPresenter(countdownConfig(cfg))

	funnelHandler := funnel.NewHandler(store, catalog, orchestrator, backend,
		cfg.DefaultRegion, cfg.DefaultCalculationMode, funnelMetrics, logger.WithComponent("funnel"))
	countdownWS := countdown.NewStreamHandler(store, orchestrator, presenter,
		cfg.SuccessScreenDelay, logger.WithComponent("countdown"))
	resultsHandler := results.NewHandler(store, backend, cfg.ExpertEmail,
		cfg.NotificationDismiss, funnelMetrics, logger.WithComponent("results"))

	r := router.New(&router.Config{
		Logger:             logger,
		FunnelHandler:      funnelHandler,
		CountdownWS:        countdownWS,
		ResultsHandler:     resultsHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket streams outlive any fixed write deadline
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

// newSessionStore selects the session backend. Memory is the default; Redis
// is only needed when several instances share the funnel.
func newSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) funnel.Store {
	if cfg.SessionStore == "redis" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
		return funnel.NewRedisStore(redis.NewClient(opts), cfg.SessionTTL)
	}

	store := funnel.NewMemoryStore(cfg.SessionTTL)
	go store.StartJanitor(ctx, time.Minute)
	return store
}

// countdownConfig spreads the configured total duration evenly across the
// default four phases.
func countdownConfig(cfg *appconfig.Config) countdown.Config {
	c := countdown.DefaultConfig()
	c.DemoTickInterval = cfg.DemoTickInterval
	if cfg.CountdownDuration > 0 {
		per := cfg.CountdownDuration / time.Duration(len(c.Phases))
		for i := range c.Phases {
			c.Phases[i].Duration = per
		}
	}
	return c
}
