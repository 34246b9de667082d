// Package mapping translates quiz answers into CRM custom field values.
package mapping

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadsync/pkg/notion"
)

// Table maps answer keys to CRM field keys. It is used for keys the live
// schema does not know about.
type Table map[string]string

// Lookup returns the field key for an answer key.
func (t Table) Lookup(key string) (string, bool) {
	v, ok := t[key]
	return v, ok && v != ""
}

// Merge returns a new table with the entries of every table, later tables
// overriding earlier ones. Blank keys and values are skipped.
func Merge(tables ...Table) Table {
	out := make(Table)
	for _, t := range tables {
		for k, v := range t {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k == "" || v == "" {
				continue
			}
			out[k] = v
		}
	}
	return out
}

// LoadTable reads a YAML file of "answer_key: UF_CRM_..." pairs.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read %s", path)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "mapping: parse %s", path)
	}
	return Merge(t), nil
}

// LoadNotionTable reads active rows of a Notion database with a "Key" title
// column and a "Field" rich text column.
func LoadNotionTable(ctx context.Context, client notion.Client, dbID string) (Table, error) {
	pages, err := notion.QueryByStatus(ctx, client, dbID, "Active")
	if err != nil {
		return nil, eris.Wrap(err, "mapping: load notion table")
	}

	t := make(Table, len(pages))
	for _, p := range pages {
		key := notion.TextProperty(p, "Key")
		field := notion.TextProperty(p, "Field")
		if key == "" || field == "" {
			zap.L().Warn("mapping: skipping incomplete notion row",
				zap.String("page_id", string(p.ID)),
			)
			continue
		}
		t[key] = field
	}
	return t, nil
}

// Sources lists where the static table comes from.
type Sources struct {
	Inline       map[string]string
	Path         string
	NotionClient notion.Client
	NotionDB     string
}

// LoadSources builds the static table from every configured source: inline
// entries first, then the YAML file, then the Notion database.
func LoadSources(ctx context.Context, src Sources) (Table, error) {
	tables := []Table{Table(src.Inline)}

	if src.Path != "" {
		t, err := LoadTable(src.Path)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	if src.NotionClient != nil && src.NotionDB != "" {
		t, err := LoadNotionTable(ctx, src.NotionClient, src.NotionDB)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	merged := Merge(tables...)
	zap.L().Debug("mapping: static table loaded", zap.Int("entries", len(merged)))
	return merged, nil
}
