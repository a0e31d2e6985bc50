package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/live"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/storage/local"
	"github.com/KevinKickass/OpenLabManager/internal/storage/postgres"
	"github.com/KevinKickass/OpenLabManager/internal/storage/remote"
	"github.com/KevinKickass/OpenLabManager/internal/storage/seed"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// Components is the data layer both binaries build from the config.
type Components struct {
	Backend storage.Backend
	Repo    *repository.Repository
	Auth    *auth.Service
	Hasher  *auth.PasswordHasher
	Bus     *live.Bus
}

// Build opens the configured backend and wires the repository and the
// auth service on top of it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	hasher := auth.NewPasswordHasher(auth.HasherParams(cfg.Auth.Argon2))

	backend, err := OpenBackend(ctx, cfg, hasher, logger)
	if err != nil {
		return nil, err
	}

	bus := live.NewBus(logger)
	repo := repository.New(backend, repository.Options{
		Bus:    bus,
		Hasher: hasher,
		Files:  storage.NewDirFileStore(cfg.Attachments.Dir, cfg.Attachments.BaseURL),
		Logger: logger,
	})

	opts := auth.Options{ProvisionExternal: cfg.Auth.ProvisionExternal, Logger: logger}
	if ext, ok := backend.(storage.ExternalAuthenticator); ok {
		opts.External = ext
	}
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret(), cfg.Auth.SessionTTL)
	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret is the development default or too short")
	}

	return &Components{
		Backend: backend,
		Repo:    repo,
		Auth:    auth.NewService(repo, tokens, hasher, opts),
		Hasher:  hasher,
		Bus:     bus,
	}, nil
}

func (c *Components) Close() error {
	return c.Backend.Close()
}

// OpenBackend opens the storage driver named in the config.
func OpenBackend(ctx context.Context, cfg *config.Config, hasher *auth.PasswordHasher, logger *zap.Logger) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverLocal:
		return openLocal(cfg, hasher, logger)

	case config.DriverRemote:
		rc := cfg.Storage.Remote
		client := remote.New(remote.Config{
			URL:        rc.URL,
			APIKey:     rc.APIKey(),
			Timeout:    rc.Timeout,
			RetryCount: rc.RetryCount,
		}, logger)
		if err := client.Ping(ctx); err != nil {
			// The hosted service may come back; requests report it per call.
			logger.Warn("Remote backend not reachable", zap.String("url", rc.URL), zap.Error(err))
		}
		return client, nil

	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Storage.Database, logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func openLocal(cfg *config.Config, hasher *auth.PasswordHasher, logger *zap.Logger) (storage.Backend, error) {
	if dir := filepath.Dir(cfg.Storage.Local.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	data, err := seed.Default()
	if err != nil {
		return nil, err
	}
	hash, err := hasher.HashPassword(cfg.Seed.Password())
	if err != nil {
		return nil, fmt.Errorf("failed to hash seed password: %w", err)
	}

	return local.Open(cfg.Storage.Local.DSN(), local.Options{
		Seed:                     data,
		AdminPasswordHash:        hash,
		ForceAdminPasswordChange: cfg.Seed.ForcePasswordChange,
		Debug:                    cfg.Storage.Local.Debug,
		Logger:                   logger,
	})
}

// PollTables converts the configured table names, skipping unknown ones.
func PollTables(names []string, logger *zap.Logger) []types.Table {
	tables := make([]types.Table, 0, len(names))
	for _, n := range names {
		t, ok := types.ParseTable(n)
		if !ok {
			logger.Warn("Ignoring unknown poll table", zap.String("table", n))
			continue
		}
		tables = append(tables, t)
	}
	return tables
}
