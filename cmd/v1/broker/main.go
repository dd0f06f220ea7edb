package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peerlink/signaling/internal/v1/auth"
	"github.com/peerlink/signaling/internal/v1/config"
	"github.com/peerlink/signaling/internal/v1/health"
	"github.com/peerlink/signaling/internal/v1/logging"
	"github.com/peerlink/signaling/internal/v1/ratelimit"
	"github.com/peerlink/signaling/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	connLimiter, err := ratelimit.NewConnectionLimiter(cfg.ConnectRatePerIP)
	if err != nil {
		slog.Error("Failed to create connection rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Create Broker ---
	hub := transport.NewHub(cfg, connLimiter)
	hub.Start()

	// --- Set up Server ---
	router := gin.Default()

	// CORS applies to the plain HTTP surface; WebSocket origin policy is
	// enforced by the broker itself.
	corsConfig := cors.DefaultConfig()
	allowedOrigins := auth.ParseAllowedOrigins(cfg.AllowedOrigins)
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Routing
	router.GET("/ws", hub.ServeWs)
	router.GET("/status", hub.Status)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(hub)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Signaling broker starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all client streams gracefully before stopping the HTTP server.
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during broker shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	slog.Info("Server exiting")
}
