package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS syncs (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	deal_id       TEXT NOT NULL DEFAULT '',
	contact_id    TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	mapped_fields JSONB NOT NULL DEFAULT '{}',
	warnings      JSONB NOT NULL DEFAULT '[]',
	utm_source    TEXT NOT NULL DEFAULT '',
	utm_campaign  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_syncs_status ON syncs(status);
CREATE INDEX IF NOT EXISTS idx_syncs_phone ON syncs(phone);
CREATE INDEX IF NOT EXISTS idx_syncs_created_at ON syncs(created_at DESC);
`

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordSync(ctx context.Context, rec *model.SyncRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	fields, warnings, err := encodeDetails(rec)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO syncs (`+syncColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.Name, rec.Phone, string(rec.Status), rec.DealID, rec.ContactID,
		rec.ErrorKind, rec.Error, fields, warnings,
		rec.UTMSource, rec.UTMCampaign, createdAt,
	)
	return eris.Wrapf(err, "postgres: record sync %s", rec.ID)
}

func (s *PostgresStore) GetSync(ctx context.Context, id string) (*model.SyncRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+syncColumns+` FROM syncs WHERE id = $1`, id)
	rec, err := scanPgSync(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get sync %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sync %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListSyncs(ctx context.Context, filter SyncFilter) ([]model.SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM syncs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		query += ` AND phone = $` + strconv.Itoa(len(args))
	}
	args = append(args, filter.limit())
	query += ` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var out []model.SyncRecord
	for rows.Next() {
		rec, err := scanPgSync(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list syncs")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list syncs iterate")
}

func scanPgSync(row pgx.Row) (*model.SyncRecord, error) {
	var (
		rec      model.SyncRecord
		status   string
		fields   []byte
		warnings []byte
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Phone, &status, &rec.DealID, &rec.ContactID,
		&rec.ErrorKind, &rec.Error, &fields, &warnings, &rec.UTMSource, &rec.UTMCampaign, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.SyncStatus(status)
	if err := decodeDetails(&rec, fields, warnings); err != nil {
		return nil, err
	}
	return &rec, nil
}
