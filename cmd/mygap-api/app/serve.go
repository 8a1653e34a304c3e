package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agridata-my/mygap-scraper-server/internal/api"
	"github.com/agridata-my/mygap-scraper-server/internal/config"
	"github.com/agridata-my/mygap-scraper-server/internal/httpclient"
	"github.com/agridata-my/mygap-scraper-server/internal/logger"
	"github.com/agridata-my/mygap-scraper-server/internal/scheduler"
	"github.com/agridata-my/mygap-scraper-server/internal/scrape"
	"github.com/agridata-my/mygap-scraper-server/internal/service"
	"github.com/agridata-my/mygap-scraper-server/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MyGAP data API server",
	Long: `Start the MyGAP data API server.

The server caches certification records for the five MyGAP data sources
as snapshot files, serves reads from fresh cache with a live fetch as
fallback, and runs a daily full refresh in the background.

Without --config the server runs with built-in defaults. See examples/
for a sample configuration.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 60 * time.Second // Data reads may trigger a live fetch
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 65 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}
}

// loadConfig builds the effective configuration from the config file (when
// given) and flag overrides
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		logger.Info("No config file given, using defaults")
		return config.Default(), nil
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Infof("Loaded configuration from %s", configPath)
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if address := viper.GetString("address"); address != "" {
		cfg.Address = address
	}

	logger.Infof("Starting MyGAP data API server on %s", cfg.Address)

	// Snapshot storage
	snapshots, err := store.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshot store: %w", err)
	}
	logger.Infof("Snapshot store at %s", cfg.DataDir)

	// Fetchers for the five fixed sources, all persisting through the store
	client := httpclient.NewDefaultClient(0)
	registry, err := scrape.NewHTTPRegistry(cfg.ExtractorEndpoint, client, snapshots)
	if err != nil {
		return fmt.Errorf("failed to build source registry: %w", err)
	}
	logger.Infof("Registered sources: %v (extractor at %s)",
		registry.SourceStrings(), cfg.ExtractorEndpoint)

	// Cache-or-fetch read path
	svc := service.New(registry, snapshots, cfg.GetStalenessThreshold())

	// Background daily refresh
	sched, err := scheduler.New(registry, cfg)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start(ctx)

	// HTTP router with middleware
	router := api.NewServer(svc, sched, snapshots,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server listening on %s", cfg.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop the scheduler first so no new batches start during shutdown
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
