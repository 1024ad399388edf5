// Warroom coordination server — keeps the mission board for a team of
// coding agents and streams board changes to connected viewers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ateamhq/warroom/pkg/activity"
	"github.com/ateamhq/warroom/pkg/api"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/claims"
	"github.com/ateamhq/warroom/pkg/cleanup"
	"github.com/ateamhq/warroom/pkg/config"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/hooks"
	"github.com/ateamhq/warroom/pkg/marker"
	"github.com/ateamhq/warroom/pkg/missions"
	"github.com/ateamhq/warroom/pkg/projects"
	"github.com/ateamhq/warroom/pkg/version"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "warroom.yaml", "Path to server configuration file")
	flag.Parse()

	// Load .env (optional; real deployments set the environment directly)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	ctx := context.Background()
	slog.Info("Starting", "version", version.Full())

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Event broker and mission marker
	broker := events.NewBroker(cfg.Broker.QueueCapacity)
	markerWriter := marker.NewWriter(cfg.Marker.Dir)

	// 4. Domain services
	boardService := board.NewService(dbClient, broker)
	projectService := projects.NewService(dbClient)
	hookService := hooks.NewService(dbClient, broker)
	svcs := api.Services{
		Projects: projectService,
		Board:    boardService,
		Claims:   claims.NewService(dbClient, broker, boardService),
		Missions: missions.NewService(dbClient, broker, boardService, markerWriter),
		Activity: activity.NewService(dbClient, broker),
		Hooks:    hookService,
	}
	slog.Info("Services initialized")

	// 5. Background hook telemetry retention
	cleanupService := cleanup.NewService(&cfg.Retention, projectService, hookService)
	cleanupService.Start(ctx)

	// 6. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, dbClient, broker, svcs)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown
	cleanupService.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
