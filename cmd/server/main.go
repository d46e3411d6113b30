package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtrntr/papertrade/internal/api"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/metrics"
	"github.com/xtrntr/papertrade/internal/quote"
	"github.com/xtrntr/papertrade/internal/report"
	"github.com/xtrntr/papertrade/internal/trading"
)

// store is what both backends provide
type store interface {
	ledger.Store
	ledger.Users
}

// Main entry point: loads config, opens the ledger store and serves HTTP
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize ledger storage
	var st store
	switch cfg.Store {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		st = ledger.NewMemoryStore()
	default:
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close(context.Background())
		if err := database.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		st = database
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Quote provider
	quotes := quote.NewClient(cfg.APIKey, cfg.QuoteTimeout, logger, m)
	quotes.BaseURL = cfg.QuoteURL

	// Trading engine and read-side reports
	engine := trading.NewEngine(st, quotes, logger, m)
	engine.CostBasis = cfg.CostBasis
	reporter := report.NewReporter(st, quotes)

	// Initialize auth service
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("Failed to generate session secret", "error", err)
			os.Exit(1)
		}
	}
	authService := auth.NewAuthService(st, secret, cfg.StartingCash)

	// Initialize API handlers
	handler := api.NewHandler(st, engine, reporter, quotes, authService, logger)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting server", "addr", cfg.Addr, "store", cfg.Store)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
