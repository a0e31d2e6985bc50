package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/storage/seed"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options controls schema setup and first-run seeding.
type Options struct {
	// Seed is applied once on an empty store. Nil disables seeding.
	Seed *seed.Data
	// AdminPasswordHash is stored for the seeded admin user.
	AdminPasswordHash string
	// ForceAdminPasswordChange flags the seeded admin for a mandatory
	// password change on first login.
	ForceAdminPasswordChange bool
	Debug                    bool
	Logger                   *zap.Logger
}

// Store is the embedded SQLite backend.
type Store struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if needed) the store at dsn, upgrades the schema
// and seeds it on first use.
func Open(dsn string, opts Options) (*Store, error) {
	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection serializes writes.
	sqlDB.SetMaxOpenConns(1)

	return OpenDB(db, opts)
}

// OpenDB wraps an already opened gorm connection.
func OpenDB(db *gorm.DB, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{db: db, opts: opts, logger: opts.Logger}

	if err := migrate(db, SchemaVersion, s.logger); err != nil {
		return nil, err
	}
	if err := s.seedIfEmpty(); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}
	return s, nil
}

func (s *Store) Name() string { return "local" }

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		ForceChangePassword: true,
		PasswordHash:        true,
		DeviceHistory:       true,
		Seeding:             true,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return types.Unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return types.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Version reports the schema version recorded in the store.
func (s *Store) Version() (int, error) {
	return currentVersion(s.db)
}

// Reset drops every table, recreates the schema and seeds it again.
func (s *Store) Reset(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Migrator().DropTable(allModels...); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	if err := migrate(db, SchemaVersion, s.logger); err != nil {
		return err
	}
	if err := s.seedIfEmpty(); err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}
	s.logger.Warn("Local store reset")
	return nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps driver errors to the domain taxonomy.
func translate(op, entity, uniqueField string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return types.Duplicate(entity, uniqueField)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return types.Unavailable(op, err)
}

// checkAffected turns an update/delete that matched nothing into a
// NotFoundError.
func checkAffected(res *gorm.DB, op, entity string, id any) error {
	if res.Error != nil {
		return translate(op, entity, "", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}

// exists reports whether a row with the given primary key exists.
func (s *Store) exists(ctx context.Context, model interface{}, id any) (bool, error) {
	var n int64
	if err := s.conn(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, types.Unavailable("lookup", err)
	}
	return n > 0, nil
}
