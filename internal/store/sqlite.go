package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS syncs (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	deal_id       TEXT NOT NULL DEFAULT '',
	contact_id    TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	mapped_fields TEXT NOT NULL DEFAULT '{}',
	warnings      TEXT NOT NULL DEFAULT '[]',
	utm_source    TEXT NOT NULL DEFAULT '',
	utm_campaign  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_syncs_status ON syncs(status);
CREATE INDEX IF NOT EXISTS idx_syncs_phone ON syncs(phone);
CREATE INDEX IF NOT EXISTS idx_syncs_created_at ON syncs(created_at);
`

const syncColumns = `id, name, phone, status, deal_id, contact_id, error_kind, error, mapped_fields, warnings, utm_source, utm_campaign, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordSync(ctx context.Context, rec *model.SyncRecord) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO syncs (`+syncColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Phone, string(rec.Status), rec.DealID, rec.ContactID,
		rec.ErrorKind, rec.Error, string(fields), string(warnings),
		rec.UTMSource, rec.UTMCampaign, createdAt,
	)
	return eris.Wrapf(err, "sqlite: record sync %s", rec.ID)
}

func (s *SQLiteStore) GetSync(ctx context.Context, id string) (*model.SyncRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncColumns+` FROM syncs WHERE id = ?`, id)
	rec, err := scanSync(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get sync %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sync %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSyncs(ctx context.Context, filter SyncFilter) ([]model.SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM syncs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Phone != "" {
		query += ` AND phone = ?`
		args = append(args, filter.Phone)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncRecord
	for rows.Next() {
		rec, err := scanSync(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list syncs")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list syncs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSync(row scannable) (*model.SyncRecord, error) {
	var (
		rec      model.SyncRecord
		status   string
		fields   string
		warnings string
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Phone, &status, &rec.DealID, &rec.ContactID,
		&rec.ErrorKind, &rec.Error, &fields, &warnings, &rec.UTMSource, &rec.UTMCampaign, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.SyncStatus(status)
	if err := decodeDetails(&rec, []byte(fields), []byte(warnings)); err != nil {
		return nil, err
	}
	return &rec, nil
}
