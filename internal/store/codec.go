package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadsync/internal/model"
)

// encodeDetails serializes the map and list columns of a record.
func encodeDetails(rec *model.SyncRecord) (fields, warnings []byte, err error) {
	fields, err = json.Marshal(nonNilMap(rec.MappedFields))
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal mapped fields")
	}
	warnings, err = json.Marshal(nonNilSlice(rec.Warnings))
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal warnings")
	}
	return fields, warnings, nil
}

func decodeDetails(rec *model.SyncRecord, fields, warnings []byte) error {
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.MappedFields); err != nil {
			return eris.Wrap(err, "store: unmarshal mapped fields")
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return eris.Wrap(err, "store: unmarshal warnings")
		}
	}
	if len(rec.Warnings) == 0 {
		rec.Warnings = nil
	}
	return nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func validateRecord(rec *model.SyncRecord) error {
	if rec == nil || rec.ID == "" {
		return eris.New("store: record id is required")
	}
	if rec.Status == "" {
		return eris.Errorf("store: record %s has no status", rec.ID)
	}
	return nil
}
