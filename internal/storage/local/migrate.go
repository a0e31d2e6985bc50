package local

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaVersion is the latest schema version of the embedded store.
const SchemaVersion = 3

// Version 1 shapes of the tables that later versions extend.
type userV1 struct {
	ID           int64  `gorm:"primaryKey"`
	AuthID       string `gorm:"index"`
	Name         string
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	Avatar       string
	Role         string
	GroupID      *int64 `gorm:"index"`
	IsBlocked    bool
}

func (userV1) TableName() string { return "users" }

type taskV1 struct {
	ID          int64 `gorm:"primaryKey"`
	Title       string
	Description string
	Status      string `gorm:"index"`
	AssignedTo  *int64 `gorm:"index"`
	DueDate     string
	CreatedBy   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskV1) TableName() string { return "tasks" }

type messageV1 struct {
	ID         int64 `gorm:"primaryKey"`
	SenderID   int64 `gorm:"index"`
	ReceiverID int64 `gorm:"index"`
	Content    string
	Timestamp  time.Time `gorm:"index"`
}

func (messageV1) TableName() string { return "messages" }

type migrationStep struct {
	version     int
	description string
	apply       func(tx *gorm.DB) error
}

// Steps are additive only: they create tables, columns and indexes and
// never drop or rewrite rows.
var migrationSteps = []migrationStep{
	{
		version:     1,
		description: "base tables",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&siteModel{}, &labModel{}, &deviceModel{}, &userV1{}, &groupModel{}, &taskV1{}, &messageV1{})
		},
	},
	{
		version:     2,
		description: "task priority, scope and checklist; task children",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&taskModel{}, &subtaskModel{}, &commentModel{}, &attachmentModel{})
		},
	},
	{
		version:     3,
		description: "user presence and password policy; message read flag",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&userModel{}, &messageModel{})
		},
	},
}

// allModels lists every table, used by Reset.
var allModels = []interface{}{
	&schemaMeta{}, &siteModel{}, &labModel{}, &deviceModel{}, &userModel{}, &groupModel{},
	&taskModel{}, &subtaskModel{}, &commentModel{}, &attachmentModel{}, &messageModel{},
}

func currentVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&schemaMeta{}) {
		return 0, nil
	}
	var meta schemaMeta
	err := db.First(&meta, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return meta.Version, nil
}

// migrate brings the schema up to target, running only the missing steps.
func migrate(db *gorm.DB, target int, logger *zap.Logger) error {
	if err := db.AutoMigrate(&schemaMeta{}); err != nil {
		return fmt.Errorf("failed to create schema_meta: %w", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version > target {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, target)
	}

	for _, step := range migrationSteps {
		if step.version <= version || step.version > target {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.apply(tx); err != nil {
				return err
			}
			return tx.Save(&schemaMeta{ID: 1, Version: step.version, SeededAt: seededAt(tx)}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply schema version %d: %w", step.version, err)
		}

		logger.Info("Schema upgraded",
			zap.Int("from", version),
			zap.Int("to", step.version),
			zap.String("step", step.description))
		version = step.version
	}
	return nil
}

func seededAt(tx *gorm.DB) *time.Time {
	var meta schemaMeta
	if err := tx.First(&meta, 1).Error; err != nil {
		return nil
	}
	return meta.SeededAt
}

// seedIfEmpty populates a fresh store once. It is a no-op when the store
// was seeded before or already holds users.
func (s *Store) seedIfEmpty() error {
	if s.opts.Seed == nil {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var meta schemaMeta
		if err := tx.First(&meta, 1).Error; err != nil {
			return fmt.Errorf("failed to read schema_meta: %w", err)
		}
		if meta.SeededAt != nil {
			return nil
		}

		var users int64
		if err := tx.Model(&userModel{}).Count(&users).Error; err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}

		now := time.Now().UTC()
		if users > 0 {
			s.logger.Info("Store already populated, skipping seed")
			return tx.Model(&schemaMeta{}).Where("id = ?", 1).Update("seeded_at", now).Error
		}

		if err := s.populate(tx); err != nil {
			return err
		}
		return tx.Model(&schemaMeta{}).Where("id = ?", 1).Update("seeded_at", now).Error
	})
}

func (s *Store) populate(tx *gorm.DB) error {
	data := s.opts.Seed

	siteIDs := make(map[string]int64, len(data.Sites))
	for _, site := range data.Sites {
		m := siteModel{Name: site.Name}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed site %q: %w", site.Name, err)
		}
		siteIDs[site.Name] = m.ID
	}

	labIDs := make(map[string]int64, len(data.Labs))
	for _, lab := range data.Labs {
		m := labModel{Name: lab.Name, SiteID: siteIDs[lab.Site]}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed lab %q: %w", lab.Name, err)
		}
		labIDs[lab.Name] = m.ID
	}

	groupIDs := make(map[string]int64, len(data.Groups))
	for _, group := range data.Groups {
		perms := group.Permissions
		if perms == nil {
			perms = []types.Permission{}
		}
		m := groupModel{Name: group.Name, Description: group.Description, Permissions: encodeJSON(perms)}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed group %q: %w", group.Name, err)
		}
		groupIDs[group.Name] = m.ID
	}

	for _, dev := range data.Devices {
		logs := make([]types.LogEntry, 0, len(dev.Logs))
		for i, l := range dev.Logs {
			logs = append(logs, types.LogEntry{
				ID:          int64(i + 1),
				Date:        l.Date,
				Description: l.Description,
				Type:        types.LogType(l.Type),
			})
		}
		d := types.Device{
			ID:        dev.ID,
			Brand:     dev.Brand,
			Model:     dev.Model,
			Processor: dev.Processor,
			RAM:       dev.RAM,
			Storage:   dev.Storage,
			LabID:     labIDs[dev.Lab],
			Status:    types.DeviceStatus(dev.Status),
			LastCheck: dev.LastCheck,
			Logs:      logs,
		}
		d.Derive()
		m := deviceFrom(d)
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed device %q: %w", dev.ID, err)
		}
	}

	admin := userModel{
		Name:                data.Admin.Name,
		Email:               data.Admin.Email,
		PasswordHash:        s.opts.AdminPasswordHash,
		Avatar:              data.Admin.Avatar,
		Role:                string(types.RoleAdmin),
		ForceChangePassword: s.opts.ForceAdminPasswordChange,
		Status:              string(types.PresenceOffline),
	}
	if id, ok := groupIDs[data.Admin.Group]; ok {
		admin.GroupID = &id
	}
	if err := tx.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	s.logger.Info("Store seeded",
		zap.Int("sites", len(data.Sites)),
		zap.Int("labs", len(data.Labs)),
		zap.Int("groups", len(data.Groups)),
		zap.Int("devices", len(data.Devices)),
		zap.String("admin", data.Admin.Email))
	return nil
}
