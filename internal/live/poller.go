package live

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// DefaultPollInterval matches the refresh rate of chat and presence.
const DefaultPollInterval = 3 * time.Second

// Poller invalidates tables on a fixed interval. Hosted backends cannot
// tell us about writes made by other clients, so their tables are treated
// as stale after every tick.
type Poller struct {
	bus      *Bus
	interval time.Duration
	tables   []types.Table
	logger   *zap.Logger
}

func NewPoller(bus *Bus, interval time.Duration, tables []types.Table, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{bus: bus, interval: interval, tables: tables, logger: logger}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if len(p.tables) == 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Poller started",
		zap.Duration("interval", p.interval),
		zap.Any("tables", p.tables))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return
		case <-ticker.C:
			p.bus.InvalidateRemote(p.tables...)
		}
	}
}
