package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/di"
	"github.com/mikey/mail-trust-filter/internal/ports"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	runErr := container.Invoke(run)

	// Release caches, history and model clients
	if err := di.Close(container); err != nil {
		fmt.Printf("Failed to release resources: %v\n", err)
	}

	if runErr != nil {
		fmt.Printf("Application error: %v\n", runErr)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
) error {
	defer logger.Sync()

	logger.Info("Starting trust filter",
		zap.String("filter_type", cfg.GetString("server.filter_type")),
		zap.String("source", cfg.GetString("source.type")),
		zap.String("explainer", cfg.GetString("explainer.provider")))

	// Start the filter
	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the filter
	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
