package system

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Storage.Local.Path = filepath.Join(dir, "lab.db")
	cfg.Attachments.Dir = filepath.Join(dir, "files")
	cfg.Auth.Argon2 = config.Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Server.HTTPPort = 0
	cfg.Server.GRPCPort = 0
	return cfg
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	comps, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer comps.Close()

	lm := NewLifecycleManager(comps, cfg, zap.NewNop())
	require.NoError(t, lm.Start())
	assert.Equal(t, StateRunning, lm.State())

	status := lm.GetCurrentStatus(ctx)
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, "local", status.Backend)
	assert.True(t, status.BackendReachable)
	assert.True(t, status.Capabilities.Seeding)
	assert.Same(t, comps.Repo, lm.Repository())

	require.Eventually(t, func() bool {
		resp, err := lm.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(shutdownCtx))
	assert.Equal(t, StateStopped, lm.State())

	// Second call is a no-op.
	require.NoError(t, lm.Shutdown(shutdownCtx))
}

func TestBuildSeedsLocalStore(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	comps, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer comps.Close()

	sess, err := comps.Auth.Login(ctx, "admin@labmanager.local", "admin123")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, sess.User.Role)

	devices, err := comps.Repo.ListDevices(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, devices)
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateInitializing, StateRunning))
	assert.NoError(t, ValidateTransition(StateRunning, StateStopping))
	assert.NoError(t, ValidateTransition(StateStopping, StateStopped))
	assert.Error(t, ValidateTransition(StateStopped, StateRunning))
	assert.Error(t, ValidateTransition(StateRunning, StateInitializing))
}

func TestPollTablesSkipsUnknown(t *testing.T) {
	tables := PollTables([]string{"messages", "Users", "nope"}, zap.NewNop())
	assert.Equal(t, []types.Table{types.TableMessages, types.TableUsers}, tables)
}
