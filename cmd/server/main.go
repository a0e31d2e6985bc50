package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/system"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("openlab-server", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to the YAML config file")
	debug := flags.Bool("debug", false, "development logging")
	flags.String("storage.driver", config.DriverLocal, "storage driver: local, remote or postgres")
	flags.Int("server.http_port", 8080, "REST and websocket port")
	flags.Int("server.grpc_port", 50051, "gRPC health port")
	_ = flags.Parse(os.Args[1:])

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	logger, err := newLogger(*debug || os.Getenv("LOG_LEVEL") == "debug")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	logger.Info("Config loaded successfully", zap.String("driver", cfg.Storage.Driver))

	ctx := context.Background()
	components, err := system.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer components.Close()

	lifecycle := system.NewLifecycleManager(components, cfg, logger)
	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenLabManager started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenLabManager stopped successfully")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
