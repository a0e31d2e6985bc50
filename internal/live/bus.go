// Package live keeps query results in step with writes. Writers invalidate
// tables on a Bus; live queries re-run when a table they read has moved.
package live

import (
	"sync"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// Bus tracks a version counter per table and fans invalidations out to
// subscribers.
type Bus struct {
	mu       sync.Mutex
	versions map[types.Table]uint64
	subs     map[uint64]*subscription
	hooks    map[uint64]func([]types.Table)
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	tables map[types.Table]struct{}
	ch     chan []types.Table
}

func (s *subscription) matches(tables []types.Table) bool {
	if len(s.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		versions: make(map[types.Table]uint64),
		subs:     make(map[uint64]*subscription),
		hooks:    make(map[uint64]func([]types.Table)),
		logger:   logger,
	}
}

// Invalidate marks tables as written. It notifies subscribers and runs
// the OnInvalidate hooks.
func (b *Bus) Invalidate(tables ...types.Table) {
	hooks := b.invalidate(tables)
	for _, hook := range hooks {
		hook(tables)
	}
}

// InvalidateRemote applies an invalidation that originated elsewhere. Hooks
// are skipped so relays do not echo it back.
func (b *Bus) InvalidateRemote(tables ...types.Table) {
	b.invalidate(tables)
}

func (b *Bus) invalidate(tables []types.Table) []func([]types.Table) {
	if len(tables) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range tables {
		b.versions[t]++
	}
	for _, sub := range b.subs {
		if !sub.matches(tables) {
			continue
		}
		// A pending notification already forces a re-run.
		select {
		case sub.ch <- tables:
		default:
		}
	}

	b.logger.Debug("Tables invalidated", zap.Any("tables", tables))

	hooks := make([]func([]types.Table), 0, len(b.hooks))
	for _, h := range b.hooks {
		hooks = append(hooks, h)
	}
	return hooks
}

// Subscribe returns a channel receiving the tables of every invalidation
// touching one of tables (all tables when none are given). Notifications
// coalesce when the receiver is slow.
func (b *Bus) Subscribe(tables ...types.Table) (<-chan []types.Table, func()) {
	sub := &subscription{
		tables: make(map[types.Table]struct{}, len(tables)),
		ch:     make(chan []types.Table, 1),
	}
	for _, t := range tables {
		sub.tables[t] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// OnInvalidate registers a hook called after every local invalidation.
func (b *Bus) OnInvalidate(hook func(tables []types.Table)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.hooks[id] = hook
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.hooks, id)
		b.mu.Unlock()
	}
}

// Versions snapshots the current version of each table.
func (b *Bus) Versions(tables ...types.Table) map[types.Table]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[types.Table]uint64, len(tables))
	for _, t := range tables {
		out[t] = b.versions[t]
	}
	return out
}

func (b *Bus) changedSince(seen map[types.Table]uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, v := range seen {
		if b.versions[t] != v {
			return true
		}
	}
	return false
}
