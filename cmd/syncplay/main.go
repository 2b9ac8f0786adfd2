package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncplay/internal/core/services"
	httphandlers "syncplay/internal/handlers/http"
	"syncplay/internal/infrastructure/middleware"
	"syncplay/internal/infrastructure/monitoring"
	"syncplay/internal/infrastructure/reliability"
	"syncplay/internal/infrastructure/repositories"
	"syncplay/internal/infrastructure/session"
	wssignal "syncplay/internal/infrastructure/signal"
	"syncplay/pkg/backup"
	"syncplay/pkg/circuitbreaker"
	"syncplay/pkg/config"
	"syncplay/pkg/distributed"
	"syncplay/pkg/logger"
	"syncplay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/syncplay/config.yaml",
	"config.yaml",
}

func main() {
	startTime := time.Now()

	cfg, err := config.LoadFirst(configPaths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracingConfig := tracing.DefaultConfig()
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.Version = version
	tracingConfig.JaegerURL = cfg.Tracing.JaegerEndpoint
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	tracerProvider, err := tracing.Init(tracingConfig)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	retryConfig, cbConfig := reliability.PoliciesFromConfig(cfg)
	roomRepo := reliability.NewRoomRepositoryWrapper(repoFactory.CreateRoomRepository(), retryConfig, cbConfig, log)
	eventLog := reliability.NewEventLogWrapper(repoFactory.CreateEventLog(), retryConfig, cbConfig, log)

	metrics := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	engine := services.NewRoomEngine(roomRepo, services.EngineConfig{
		HostOnlyPlayback: cfg.Sync.HostOnlyPlayback,
	}, log)
	roomService := services.NewRoomService(roomRepo, engine, eventLog, cfg.Sync.ActivityWindow, log)
	registry := session.NewRegistry()

	messageRouter := wssignal.NewRouter(engine, registry, eventLog, metrics, wssignal.RouterConfig{
		EventLogTimeout: cfg.Sync.EventLogTimeout,
	}, log)

	serverConfig := wssignal.ServerConfig{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBufferSize: cfg.Signal.SendBufferSize,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		serverConfig.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		serverConfig.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	wsServer := wssignal.NewWebSocketServer(messageRouter, serverConfig, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddStorageCheck(repoFactory.HealthCheck, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.HealthCheckTimeout)
	healthChecker.AddCheck("event_log_breaker", func(ctx context.Context) (bool, error) {
		return eventLog.BreakerState() != circuitbreaker.StateOpen, nil
	}, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.HealthCheckTimeout)
	healthChecker.AddCheck("room_store_breaker", func(ctx context.Context) (bool, error) {
		return roomRepo.BreakerState() != circuitbreaker.StateOpen, nil
	}, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.HealthCheckTimeout)
	healthChecker.StartBackgroundChecks(ctx)

	if cfg.Reaper.Enabled {
		var newLock func() services.RunLock
		if client := repoFactory.RedisClient(); client != nil {
			lockManager := distributed.NewLockManager(client, "syncplay:lock:")
			newLock = func() services.RunLock {
				return lockManager.AcquireLock("reaper", cfg.Reaper.LockTTL)
			}
		}

		reaper := services.NewReaperService(roomRepo, eventLog, engine, registry, newLock, services.ReaperConfig{
			Interval:    cfg.Reaper.Interval,
			MaxAge:      cfg.Reaper.MaxAge,
			SessionIdle: cfg.Reaper.SessionIdle,
		}, log)
		if cfg.Reaper.ArchiveDir != "" {
			storage, err := backup.NewFileStorage(cfg.Reaper.ArchiveDir)
			if err != nil {
				log.Fatalw("failed to open reaper archive directory", "error", err)
			}
			reaper.WithArchiver(backup.NewArchiveService(storage, version))
		}
		reaper.OnSweep(func(report *services.ReapReport) {
			metrics.RecordRoomsReaped(len(report.Deleted))
		})
		go reaper.Start(ctx)
		log.Infow("reaper started", "interval", cfg.Reaper.Interval, "max_age", cfg.Reaper.MaxAge)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	httphandlers.NewRoomHandler(roomService, messageRouter, cfg.Server.PublicURL).SetupRoutes(router)
	wsServer.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    monitoring.StatusHealthy,
			"timestamp": time.Now(),
			"version":   version,
			"uptime":    time.Since(startTime).String(),
			"sessions":  registry.Count(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.GetReadinessStatus(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting syncplay server",
			"address", cfg.Server.Address,
			"storage", repoFactory.Driver(),
			"host_only_playback", cfg.Sync.HostOnlyPlayback,
			"version", version,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down syncplay server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Hijacked websocket connections are not tracked by the http server.
	if closed := registry.CloseIdle(time.Now().Add(time.Hour)); closed > 0 {
		log.Infow("closed live sessions", "count", closed)
		waitForSessions(shutdownCtx, registry)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}

	log.Info("syncplay server stopped")
}

// waitForSessions gives disconnect handlers a chance to record leaves
// before the stores are closed.
func waitForSessions(ctx context.Context, registry *session.Registry) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for registry.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
