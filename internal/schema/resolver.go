// Package schema discovers the CRM's custom deal fields and caches the result
// for the lifetime of the process.
package schema

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/pkg/bitrix"
)

// Resolver fetches the custom-field schema once and serves it from memory
// afterwards. Concurrent first calls may fetch more than once; the last
// successful fetch wins. Failed fetches are never cached.
type Resolver struct {
	client bitrix.Client
	cache  atomic.Pointer[model.FieldSchema]
}

// New creates a resolver backed by the given CRM client.
func New(client bitrix.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the cached schema, fetching it on first use.
func (r *Resolver) Resolve(ctx context.Context) (*model.FieldSchema, error) {
	if s := r.cache.Load(); s != nil {
		return s, nil
	}

	fields, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s := model.NewFieldSchema(Entries(fields))
	r.cache.Store(s)

	zap.L().Info("schema: resolved deal user fields",
		zap.Int("fields", s.Len()),
		zap.Int("enums", len(s.EnumMap)),
	)
	return s, nil
}

// Cached returns the current snapshot without any I/O, or nil.
func (r *Resolver) Cached() *model.FieldSchema {
	return r.cache.Load()
}

// Reset drops the cached schema so the next Resolve fetches it again.
func (r *Resolver) Reset() {
	r.cache.Store(nil)
}

func (r *Resolver) fetch(ctx context.Context) ([]bitrix.UserField, error) {
	fields, err := bitrix.ListDealUserFields(ctx, r.client)
	if err == nil {
		return fields, nil
	}
	if !bitrix.IsMethodUnavailable(err) {
		return nil, eris.Wrap(err, "schema: fetch deal user fields")
	}

	zap.L().Warn("schema: deal user field listing unavailable, using generic listing", zap.Error(err))

	fields, err = bitrix.ListUserFields(ctx, r.client, bitrix.EntityDeal)
	if err != nil {
		return nil, eris.Wrap(err, "schema: fetch user fields")
	}
	return fields, nil
}

// Entries converts CRM user field definitions to schema entries. Fields
// without an external identifier are left out.
func Entries(fields []bitrix.UserField) []model.FieldSchemaEntry {
	entries := make([]model.FieldSchemaEntry, 0, len(fields))
	for _, f := range fields {
		xmlID := strings.TrimSpace(f.XMLID)
		if xmlID == "" || f.FieldName == "" {
			continue
		}
		e := model.FieldSchemaEntry{ExternalID: xmlID, FieldKey: f.FieldName}
		if len(f.List) > 0 {
			e.Enum = make(model.EnumDictionary, len(f.List))
			for _, item := range f.List {
				label := strings.TrimSpace(item.Value)
				if label == "" || item.ID == "" {
					continue
				}
				e.Enum[label] = item.ID.String()
			}
		}
		entries = append(entries, e)
	}
	return entries
}
