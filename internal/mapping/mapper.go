package mapping

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/model"
)

// Result is the outcome of mapping one set of answers.
type Result struct {
	// Fields maps CRM field keys to values ready to send.
	Fields map[string]string
	// Dropped lists answer keys that matched neither the schema nor the
	// static table, sorted.
	Dropped []string
}

// Mapper translates answers using the live schema first and a static table
// second.
type Mapper struct {
	static Table
}

// NewMapper creates a mapper with the given static table, which may be nil.
func NewMapper(static Table) *Mapper {
	return &Mapper{static: static}
}

// Static returns the static table.
func (m *Mapper) Static() Table {
	return m.static
}

// Map resolves each non-empty answer to a CRM field. Enumerated fields get
// the choice id when the trimmed answer exactly matches a label, otherwise
// the raw answer is passed through. Unknown keys are dropped.
//
// When several answers land on one field, a schema match beats a static
// match, and among equals the key that sorts first wins.
func (m *Mapper) Map(answers map[string]string, schema *model.FieldSchema) Result {
	res := Result{Fields: make(map[string]string, len(answers))}

	keys := make([]string, 0, len(answers))
	for key := range answers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fromSchema := make(map[string]bool, len(answers))
	owner := make(map[string]string, len(answers))

	for _, key := range keys {
		raw := answers[key]
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		field, viaSchema := schema.FieldKey(key)
		ok := viaSchema
		if !ok {
			field, ok = m.static.Lookup(key)
		}
		if !ok {
			res.Dropped = append(res.Dropped, key)
			continue
		}

		if prev, taken := owner[field]; taken {
			if fromSchema[field] || !viaSchema {
				zap.L().Debug("mapping: field already set",
					zap.String("field", field),
					zap.String("kept", prev),
					zap.String("skipped", key),
				)
				continue
			}
		}
		owner[field] = key
		fromSchema[field] = viaSchema

		if id, ok := schema.EnumID(key, value); ok {
			res.Fields[field] = id
			continue
		}
		res.Fields[field] = raw
	}

	if len(res.Dropped) > 0 {
		zap.L().Warn("mapping: dropped unmapped answers", zap.Strings("keys", res.Dropped))
	}
	return res
}
