// Package repository is the single seam between callers and storage. It
// validates and normalizes input, keeps derived fields consistent, strips
// fields the active backend does not own and invalidates live queries
// after every committed write.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/live"
	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

type Options struct {
	Bus    *live.Bus
	Hasher PasswordHasher
	// Files stores attachments for backends that do not host files.
	Files  storage.FileStore
	Logger *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Repository struct {
	backend storage.Backend
	caps    storage.Capabilities
	bus     *live.Bus
	hasher  PasswordHasher
	files   storage.FileStore
	logger  *zap.Logger
	now     func() time.Time
	locks   *keyedMutex

	devices *live.Query[[]types.Device]
}

func New(backend storage.Backend, opts Options) *Repository {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = live.NewBus(opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	files := opts.Files
	if fs, ok := backend.(storage.FileStore); ok {
		files = fs
	}

	r := &Repository{
		backend: backend,
		caps:    backend.Capabilities(),
		bus:     opts.Bus,
		hasher:  opts.Hasher,
		files:   files,
		logger:  opts.Logger,
		now:     opts.Clock,
		locks:   newKeyedMutex(),
	}
	r.devices = live.NewQuery[[]types.Device](r.bus, r.ListDevices, types.TableDevices, types.TableLabs, types.TableSites)
	return r
}

func (r *Repository) Bus() *live.Bus { return r.bus }

func (r *Repository) Backend() storage.Backend { return r.backend }

func (r *Repository) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// Reset drops and reseeds the store. Every table is invalidated so callers
// reload from scratch.
func (r *Repository) Reset(ctx context.Context) error {
	if err := r.backend.Reset(ctx); err != nil {
		return err
	}
	r.logger.Warn("Store reset", zap.String("backend", r.backend.Name()))
	r.bus.Invalidate(types.AllTables...)
	return nil
}

// LoadStructure loads sites, labs and devices concurrently.
func (r *Repository) LoadStructure(ctx context.Context) (*types.Structure, error) {
	var st types.Structure
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sites, err := r.ListSites(gctx)
		st.Sites = sites
		return err
	})
	g.Go(func() error {
		labs, err := r.ListLabs(gctx)
		st.Labs = labs
		return err
	})
	g.Go(func() error {
		devices, err := r.ListDevices(gctx)
		st.Devices = devices
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repository) ListSites(ctx context.Context) ([]types.Site, error) {
	return r.backend.ListSites(ctx)
}

func (r *Repository) CreateSite(ctx context.Context, site types.Site) (int64, error) {
	site.Name = strings.TrimSpace(site.Name)
	if site.Name == "" {
		return 0, types.Missing("site", "name")
	}

	sites, err := r.backend.ListSites(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range sites {
		if strings.EqualFold(s.Name, site.Name) {
			return 0, types.Duplicate("site", "name")
		}
	}

	id, err := r.backend.CreateSite(ctx, site)
	if err != nil {
		return 0, err
	}
	r.bus.Invalidate(types.TableSites)
	return id, nil
}

func (r *Repository) UpdateSite(ctx context.Context, id int64, patch types.SitePatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return types.Missing("site", "name")
		}
		patch.Name = &name
	}
	if err := r.backend.UpdateSite(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableSites)
	return nil
}

// DeleteSite does not cascade; labs of the site must be removed first.
func (r *Repository) DeleteSite(ctx context.Context, id int64) error {
	if err := r.backend.DeleteSite(ctx, id); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableSites)
	return nil
}

func (r *Repository) ListLabs(ctx context.Context) ([]types.Lab, error) {
	return r.backend.ListLabs(ctx)
}

func (r *Repository) CreateLab(ctx context.Context, lab types.Lab) (int64, error) {
	lab.Name = strings.TrimSpace(lab.Name)
	if lab.Name == "" {
		return 0, types.Missing("lab", "name")
	}
	if lab.SiteID == 0 {
		return 0, types.Missing("lab", "siteId")
	}
	if err := r.checkSite(ctx, lab.SiteID); err != nil {
		return 0, err
	}

	id, err := r.backend.CreateLab(ctx, lab)
	if err != nil {
		return 0, err
	}
	r.bus.Invalidate(types.TableLabs)
	return id, nil
}

func (r *Repository) UpdateLab(ctx context.Context, id int64, patch types.LabPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return types.Missing("lab", "name")
		}
		patch.Name = &name
	}
	if patch.SiteID != nil {
		if err := r.checkSite(ctx, *patch.SiteID); err != nil {
			return err
		}
	}
	if err := r.backend.UpdateLab(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableLabs)
	return nil
}

func (r *Repository) DeleteLab(ctx context.Context, id int64) error {
	if err := r.backend.DeleteLab(ctx, id); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableLabs)
	return nil
}

func (r *Repository) checkSite(ctx context.Context, siteID int64) error {
	sites, err := r.backend.ListSites(ctx)
	if err != nil {
		return err
	}
	for _, s := range sites {
		if s.ID == siteID {
			return nil
		}
	}
	return types.Invalid("lab", "siteId")
}
