// Package postgres stores the inventory directly in a PostgreSQL database
// laid out like the hosted schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type Store struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open connects a pgx pool, runs the embedded migrations and returns the
// store.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(db, logger); err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}

	s := New(db, logger)
	s.pool = pool
	return s, nil
}

// New wraps an open database whose schema is already current.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		PasswordHash:  true,
		DeviceHistory: true,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	return storage.ErrUnsupported
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// translate maps driver errors to the domain taxonomy.
func translate(op, entity, uniqueField string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return types.Duplicate(entity, uniqueField)
	}
	return types.Unavailable(op, err)
}

type column struct {
	name  string
	value any
}

// update runs UPDATE table SET ... WHERE id = $n. With no columns it only
// checks that the row exists.
func (s *Store) update(ctx context.Context, q querier, table, entity, uniqueField string, id any, cols []column) error {
	if len(cols) == 0 {
		var one int
		err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", table), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFound(entity, id)
		}
		if err != nil {
			return types.Unavailable("update "+entity, err)
		}
		return nil
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c.name, i+1))
		args = append(args, c.value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate("update "+entity, entity, uniqueField, err)
	}
	return checkAffected(res, "update "+entity, entity, id)
}

func (s *Store) remove(ctx context.Context, table, entity string, id any) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return types.Unavailable("delete "+entity, err)
	}
	return checkAffected(res, "delete "+entity, entity, id)
}

func checkAffected(res sql.Result, op, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return types.Unavailable(op, err)
	}
	if n == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}

// insert runs an INSERT ... RETURNING id.
func (s *Store) insert(ctx context.Context, op, entity, uniqueField, query string, args ...any) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, translate(op, entity, uniqueField, err)
	}
	return id, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Unavailable(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.Unavailable(op, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil || *v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
