package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantleap/funnelsight/internal/config"
	"github.com/quantleap/funnelsight/internal/database"
	"github.com/quantleap/funnelsight/internal/httpserver"
	"github.com/quantleap/funnelsight/internal/metrics"
	"github.com/quantleap/funnelsight/internal/middleware"
	"github.com/quantleap/funnelsight/internal/tracking"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to standard log
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting Funnelsight",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL (transactions, ad-object names)
	var db *database.PostgresDB
	db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		if cfg.IsProduction() {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		logger.Warn("PostgreSQL unavailable, using in-memory stores", zap.Error(err))
		db = nil
	}
	if db != nil {
		defer db.Close()
	}

	// Initialize Redis (day cache)
	var redis *database.RedisDB
	redis, err = database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		if cfg.IsProduction() {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Warn("Redis unavailable, using in-memory day cache", zap.Error(err))
		redis = nil
	}
	if redis != nil {
		defer redis.Close()
	}

	// Initialize ClickHouse (tracking-event log)
	var events *database.ClickHouseDB
	events, err = database.NewClickHouseDB(ctx, cfg.Events, logger)
	if err != nil {
		if cfg.IsProduction() {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		logger.Warn("ClickHouse unavailable, using in-memory event store", zap.Error(err))
		events = nil
	}
	if events != nil {
		defer events.Close()
	}

	// Initialize GeoIP (collector region enrichment)
	var geo tracking.GeoResolver
	if cfg.Geo.Enabled {
		resolver, err := tracking.NewMaxMindGeoResolver(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("failed to open GeoIP database, region enrichment disabled", zap.Error(err))
		} else {
			geo = resolver
			defer resolver.Close()
		}
	}

	m := metrics.NewMetrics("funnelsight")

	// Build dependencies
	deps := &httpserver.Dependencies{
		DB:      db,
		Redis:   redis,
		Events:  events,
		Geo:     geo,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: httpserver.ReadHeaderTimeout,
		ReadTimeout:       httpserver.ReadTimeout,
		WriteTimeout:      httpserver.WriteTimeout,
		IdleTimeout:       httpserver.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
}
