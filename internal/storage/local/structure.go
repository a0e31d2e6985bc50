package local

import (
	"context"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

func (s *Store) update(ctx context.Context, model interface{}, entity, uniqueField string, id any, updates map[string]interface{}) error {
	if len(updates) == 0 {
		ok, err := s.exists(ctx, model, id)
		if err != nil {
			return err
		}
		if !ok {
			return types.NotFound(entity, id)
		}
		return nil
	}

	res := s.conn(ctx).Model(model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate("update "+entity, entity, uniqueField, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, model interface{}, entity string, id any) error {
	res := s.conn(ctx).Where("id = ?", id).Delete(model)
	return checkAffected(res, "delete "+entity, entity, id)
}

func (s *Store) ListSites(ctx context.Context) ([]types.Site, error) {
	var rows []siteModel
	if err := s.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list sites", err)
	}
	sites := make([]types.Site, 0, len(rows))
	for _, r := range rows {
		sites = append(sites, types.Site{ID: r.ID, Name: r.Name})
	}
	return sites, nil
}

func (s *Store) CreateSite(ctx context.Context, site types.Site) (int64, error) {
	m := siteModel{Name: site.Name}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create site", "site", "name", err)
	}
	return m.ID, nil
}

func (s *Store) UpdateSite(ctx context.Context, id int64, patch types.SitePatch) error {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	return s.update(ctx, &siteModel{}, "site", "name", id, updates)
}

func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	return s.remove(ctx, &siteModel{}, "site", id)
}

func (s *Store) ListLabs(ctx context.Context) ([]types.Lab, error) {
	var rows []labModel
	if err := s.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list labs", err)
	}
	labs := make([]types.Lab, 0, len(rows))
	for _, r := range rows {
		labs = append(labs, types.Lab{ID: r.ID, Name: r.Name, SiteID: r.SiteID})
	}
	return labs, nil
}

func (s *Store) CreateLab(ctx context.Context, lab types.Lab) (int64, error) {
	m := labModel{Name: lab.Name, SiteID: lab.SiteID}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create lab", "lab", "name", err)
	}
	return m.ID, nil
}

func (s *Store) UpdateLab(ctx context.Context, id int64, patch types.LabPatch) error {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.SiteID != nil {
		updates["site_id"] = *patch.SiteID
	}
	return s.update(ctx, &labModel{}, "lab", "name", id, updates)
}

func (s *Store) DeleteLab(ctx context.Context, id int64) error {
	return s.remove(ctx, &labModel{}, "lab", id)
}
