package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskrelay/internal/core/services"
	httphandlers "deskrelay/internal/handlers/http"
	"deskrelay/internal/infrastructure/middleware"
	"deskrelay/internal/infrastructure/monitoring"
	"deskrelay/internal/infrastructure/repositories/memory"
	wsignal "deskrelay/internal/infrastructure/signal"
	"deskrelay/pkg/config"
	"deskrelay/pkg/logger"
	"deskrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/deskrelay/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Monitoring.Tracing.Enabled,
		ServiceName: cfg.Monitoring.Tracing.ServiceName,
		JaegerURL:   cfg.Monitoring.Tracing.JaegerURL,
		SampleRate:  cfg.Monitoring.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Core state: in-memory only, rebuilt from scratch on restart.
	peerRegistry := memory.NewPeerRegistry()
	sessionStore := memory.NewSessionStore(cfg.Session.AuditLogLimit)
	collector := monitoring.NewPrometheusCollector()

	signalingService := services.NewSignalingService(peerRegistry, sessionStore, collector, log)
	reaper := services.NewSessionReaper(sessionStore, cfg.Session.MaxAge, cfg.Session.SweepInterval, collector, log)

	wsServer := wsignal.NewServer(signalingService, wsignal.Options{
		PingInterval:   cfg.Signal.PingInterval,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		MessageRate:    messageRate(cfg),
		MessageBurst:   cfg.RateLimiting.WebSocket.Burst,
	}, log)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("registry", func(ctx context.Context) error {
		_, err := peerRegistry.Count(ctx)
		return err
	}, 2*time.Second)
	healthChecker.AddCheck("sessions", func(ctx context.Context) error {
		_, err := sessionStore.Count(ctx)
		return err
	}, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	statusHandler := httphandlers.NewStatusHandler(signalingService, healthChecker)
	statusHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))

	// Periodic tasks share one lifecycle: both stop when this context is
	// cancelled on shutdown.
	tasksCtx, cancelTasks := context.WithCancel(context.Background())
	go wsServer.RunLivenessMonitor(tasksCtx)
	go reaper.Run(tasksCtx)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling server", "address", cfg.Server.Address, "ws_path", cfg.Signal.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		cancelTasks()
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	cancelTasks()
	wsServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("signaling server stopped")
}

func messageRate(cfg *config.Config) rate.Limit {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond)
}
