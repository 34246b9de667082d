// Package store persists the sync journal.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/model"
)

// ErrNotFound is returned when a sync record does not exist.
var ErrNotFound = eris.New("sync not found")

// SyncFilter selects journal records. Zero fields match everything.
type SyncFilter struct {
	Status model.SyncStatus `json:"status,omitempty"`
	Phone  string           `json:"phone,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// DefaultListLimit caps ListSyncs when the filter sets no limit.
const DefaultListLimit = 100

func (f SyncFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store is the sync journal.
type Store interface {
	RecordSync(ctx context.Context, rec *model.SyncRecord) error
	GetSync(ctx context.Context, id string) (*model.SyncRecord, error)
	ListSyncs(ctx context.Context, filter SyncFilter) ([]model.SyncRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the journal backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the configured store and runs its migration. It returns a nil
// Store when the driver is "none" or empty.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
