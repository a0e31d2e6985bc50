package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/analysis"
	"github.com/KevinKickass/OpenLabManager/internal/api/rest"
	"github.com/KevinKickass/OpenLabManager/internal/api/websocket"
	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/interfaces"
	"github.com/KevinKickass/OpenLabManager/internal/live"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reporting backend
// reachability. The empty service reports the process itself.
const HealthService = "openlab.storage"

const healthCheckInterval = 10 * time.Second

type LifecycleManager struct {
	config     *config.Config
	components *Components
	analyzer   *analysis.Analyzer
	logger     *zap.Logger

	hub          *websocket.Hub
	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	redisClient  *redis.Client

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time

	cancel       context.CancelFunc
	workers      sync.WaitGroup
	shutdownOnce sync.Once
}

func NewLifecycleManager(components *Components, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	analyzer := analysis.New(analysis.Config{
		APIKey:  cfg.AI.APIKey(),
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, logger)

	return &LifecycleManager{
		config:       cfg,
		components:   components,
		analyzer:     analyzer,
		logger:       logger,
		currentState: StateInitializing,
	}
}

// Start starts the background workers and both servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenLabManager",
		zap.String("backend", lm.components.Backend.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	lm.hub = websocket.NewHub(lm.logger, lm.components.Auth, lm.components.Bus)
	lm.goWorker(func() { lm.hub.Run(ctx) })

	lm.startPollers(ctx)

	if err := lm.startRelay(ctx); err != nil {
		// Instances still work alone; they just miss each other's writes.
		lm.logger.Warn("Invalidation relay disabled", zap.Error(err))
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}
	lm.goWorker(func() { lm.watchBackend(ctx) })

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()
	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort))
	return nil
}

func (lm *LifecycleManager) goWorker(fn func()) {
	lm.workers.Add(1)
	go func() {
		defer lm.workers.Done()
		fn()
	}()
}

// startPollers keeps hosted tables fresh. The embedded store sees every
// write itself, so it needs none.
func (lm *LifecycleManager) startPollers(ctx context.Context) {
	if lm.components.Backend.Name() == "local" {
		return
	}
	tables := PollTables(lm.config.Live.PollTables, lm.logger)
	poller := live.NewPoller(lm.components.Bus, lm.config.Live.PollInterval, tables, lm.logger)
	lm.goWorker(func() { poller.Run(ctx) })
}

func (lm *LifecycleManager) startRelay(ctx context.Context) error {
	rc := lm.config.Redis
	if !rc.Enabled {
		return nil
	}

	lm.redisClient = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	relay := live.NewRedisRelay(lm.redisClient, rc.Channel, lm.components.Bus, lm.logger)
	return relay.Run(ctx)
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.healthServer = health.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// watchBackend mirrors backend reachability into the health service.
func (lm *LifecycleManager) watchBackend(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		lm.checkBackend(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (lm *LifecycleManager) checkBackend(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := lm.components.Repo.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		status = healthpb.HealthCheckResponse_NOT_SERVING
		lm.logger.Warn("Backend health check failed", zap.Error(err))
	}
	lm.healthServer.SetServingStatus(HealthService, status)
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub, lm.components.Auth, lm.analyzer)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.healthServer.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	// Background workers stop on cancel
	if lm.cancel != nil {
		lm.cancel()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.workers.Wait()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	if lm.redisClient != nil {
		if cerr := lm.redisClient.Close(); cerr != nil {
			lm.logger.Warn("Failed to close redis client", zap.Error(cerr))
		}
	}

	select {
	case rerr := <-errChan:
		if err == nil {
			err = rerr
		}
	default:
	}
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus(ctx context.Context) interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	backend := lm.components.Backend
	status := interfaces.SystemStatus{
		State:            state.String(),
		Backend:          backend.Name(),
		BackendReachable: true,
		Capabilities:     backend.Capabilities(),
	}
	if lm.hub != nil {
		status.ConnectedClients = lm.hub.GetClientCount()
	}
	if !startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := lm.components.Repo.Ping(pingCtx); err != nil {
		status.BackendReachable = false
		status.BackendError = err.Error()
	}
	return status
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Repository returns the data facade
func (lm *LifecycleManager) Repository() *repository.Repository {
	return lm.components.Repo
}

// HealthServer exposes the gRPC health service, nil before Start.
func (lm *LifecycleManager) HealthServer() *health.Server {
	return lm.healthServer
}
