package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doohee323/chat-gateway/internal/config"
	"github.com/doohee323/chat-gateway/internal/domain"
	"github.com/doohee323/chat-gateway/internal/identity"
	"github.com/doohee323/chat-gateway/internal/metrics"
	"github.com/doohee323/chat-gateway/internal/provider"
	"github.com/doohee323/chat-gateway/internal/server"
	"github.com/doohee323/chat-gateway/internal/storage/sqldb"
	chatsync "github.com/doohee323/chat-gateway/internal/sync"
	"github.com/doohee323/chat-gateway/internal/telemetry"
	"github.com/doohee323/chat-gateway/internal/tenant"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the optional YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("chat-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no jwt secret configured, token authentication is unusable")
	}

	store, err := sqldb.New(sqldb.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	registry := tenant.NewRegistry(store)
	if err := registry.Refresh(context.Background()); err != nil {
		logger.Warn("initial tenant registry load failed", slog.String("error", err.Error()))
	}
	resolver := tenant.NewResolver(registry, cfg)

	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.APIKeysList(), resolver.AllowedTenantIDs)

	// Chat needs both a base URL and an API key; either missing means the
	// tenant is not usable, even if the other field resolved.
	providers := func(tenantID string) (server.ProviderClient, error) {
		resolved, err := resolver.Resolve(tenantID)
		if err != nil {
			return nil, err
		}
		if resolved.BaseURL == "" || resolved.APIKey == "" {
			return nil, domain.ErrNotConfigured("chat is not configured for this app")
		}
		return provider.NewClient(resolved.BaseURL, resolved.APIKey, provider.WithLogger(logger)), nil
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promRegistry)

	engine := chatsync.NewEngine(store, func(tenantID string) (chatsync.ProviderAPI, error) {
		client, err := providers(tenantID)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, m, logger)

	srv := server.New(server.Deps{
		Config:         cfg,
		Store:          store,
		Registry:       registry,
		Resolver:       resolver,
		Verifier:       verifier,
		Engine:         engine,
		Providers:      providers,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigCh:
		logger.Info("shutdown signal received, stopping gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}
