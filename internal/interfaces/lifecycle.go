package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string               `json:"state"`
	Backend          string               `json:"backend"`
	BackendReachable bool                 `json:"backend_reachable"`
	BackendError     string               `json:"backend_error,omitempty"`
	Capabilities     storage.Capabilities `json:"capabilities"`
	ConnectedClients int                  `json:"connected_clients"`
	UptimeSeconds    int64                `json:"uptime_seconds"`
}

type LifecycleManager interface {
	Config() *config.Config
	Repository() *repository.Repository
	GetCurrentStatus(ctx context.Context) SystemStatus
	Shutdown(ctx context.Context) error
}
