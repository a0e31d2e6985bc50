package postgres

import (
	"context"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

func (s *Store) ListSites(ctx context.Context) ([]types.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM sedes ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("list sites", err)
	}
	defer rows.Close()

	sites := make([]types.Site, 0)
	for rows.Next() {
		var site types.Site
		if err := rows.Scan(&site.ID, &site.Name); err != nil {
			return nil, types.Unavailable("list sites", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list sites", err)
	}
	return sites, nil
}

func (s *Store) CreateSite(ctx context.Context, site types.Site) (int64, error) {
	return s.insert(ctx, "create site", "site", "name",
		`INSERT INTO sedes (name) VALUES ($1) RETURNING id`, site.Name)
}

func (s *Store) UpdateSite(ctx context.Context, id int64, patch types.SitePatch) error {
	var cols []column
	if patch.Name != nil {
		cols = append(cols, column{"name", *patch.Name})
	}
	return s.update(ctx, s.db, "sedes", "site", "name", id, cols)
}

func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return s.remove(ctx, "sedes", "site", id)
}

func (s *Store) ListLabs(ctx context.Context) ([]types.Lab, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sedeid FROM labs ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("list labs", err)
	}
	defer rows.Close()

	labs := make([]types.Lab, 0)
	for rows.Next() {
		var lab types.Lab
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.SiteID); err != nil {
			return nil, types.Unavailable("list labs", err)
		}
		labs = append(labs, lab)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list labs", err)
	}
	return labs, nil
}

func (s *Store) CreateLab(ctx context.Context, lab types.Lab) (int64, error) {
	return s.insert(ctx, "create lab", "lab", "name",
		`INSERT INTO labs (name, sedeid) VALUES ($1, $2) RETURNING id`, lab.Name, lab.SiteID)
}

func (s *Store) UpdateLab(ctx context.Context, id int64, patch types.LabPatch) error {
	var cols []column
	if patch.Name != nil {
		cols = append(cols, column{"name", *patch.Name})
	}
	if patch.SiteID != nil {
		cols = append(cols, column{"sedeid", *patch.SiteID})
	}
	return s.update(ctx, s.db, "labs", "lab", "name", id, cols)
}

func (s *Store) DeleteLab(ctx context.Context, id int64) error {
	return s.remove(ctx, "labs", "lab", id)
}
