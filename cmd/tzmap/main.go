package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tzmap/internal/cities"
	"tzmap/internal/config"
	"tzmap/internal/engine"
	"tzmap/internal/handler"
	"tzmap/internal/hub"
	"tzmap/internal/middleware"
	"tzmap/internal/session"
	"tzmap/internal/timesource"
	"tzmap/internal/viewstate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tzmap server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"redis_enabled", cfg.RedisEnabled,
	)

	var directory *cities.Directory
	if cfg.CitiesPath != "" {
		directory, err = cities.LoadFile(cfg.CitiesPath, logger)
	} else {
		directory, err = cities.Load(logger)
	}
	if err != nil {
		logger.Error("failed to load city catalogue", "error", err)
		os.Exit(1)
	}
	logger.Info("city catalogue loaded", "cities", directory.Count(), "featured", len(directory.Featured()))

	var cameraStore viewstate.Store = viewstate.NewMemoryStore()
	if cfg.RedisEnabled {
		redisStore, err := viewstate.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CameraTTL)
		if err != nil {
			logger.Warn("redis unavailable, camera persistence is in-memory only", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisStore.Close()
			cameraStore = redisStore
			logger.Info("camera persistence backed by redis", "addr", cfg.RedisAddr)
		}
	}
	cameras := viewstate.NewManager(cameraStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Serve on the local clock immediately; swap in the authority-corrected
	// clock once the resync returns.
	clock := timesource.NewHolder(timesource.System())
	go func() {
		clock.Swap(timesource.Sync(ctx, timesource.System(), cfg.TimeAuthorityURL, cfg.TimeAuthorityTimeout, logger))
	}()

	registry := session.NewRegistry()
	wsHub := hub.NewHub(logger)
	eng := engine.New(clock, registry, wsHub, cfg, logger)

	httpHandler := handler.NewHTTPHandler(directory, clock)
	wsHandler := handler.NewWSHandler(wsHub, registry, eng, directory, cameras, clock, cfg, logger)
	healthHandler := handler.NewHealthHandler(eng, directory, clock)
	statsHandler := handler.NewStatsHandler(directory, registry, wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/cities", httpHandler.ListCities)
	mux.HandleFunc("GET /v1/cities/{id}", httpHandler.GetCity)
	mux.HandleFunc("GET /v1/cities/{id}/time", httpHandler.GetCityTime)
	mux.HandleFunc("GET /v1/featured", httpHandler.ListFeatured)
	mux.HandleFunc("GET /v1/meridians", httpHandler.ListMeridians)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	limiter := middleware.NewRateLimiter(ctx,
		cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist,
		handler.ServerStats.IncRateLimitBlocked, logger)

	root := limiter.Middleware(handler.CORSMiddleware(handler.GzipMiddleware(mux)))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go eng.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
