package model

import "strings"

// EnumDictionary maps the trimmed display label of an enumerated field's
// choice to the CRM's internal choice id. Label matching is exact.
type EnumDictionary map[string]string

// FieldSchemaEntry describes one CRM custom field discovered from the live
// schema.
type FieldSchemaEntry struct {
	ExternalID string         `json:"external_id" yaml:"external_id"`
	FieldKey   string         `json:"field_key" yaml:"field_key"`
	Enum       EnumDictionary `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// FieldSchema is the resolved custom-field schema: external identifier to
// internal field key, plus enum dictionaries keyed by external identifier.
// It is built once and must be treated as read-only afterwards.
type FieldSchema struct {
	FieldMap map[string]string         `json:"field_map" yaml:"field_map"`
	EnumMap  map[string]EnumDictionary `json:"enum_map" yaml:"enum_map"`
}

// NewFieldSchema indexes the given entries. Entries missing either the
// external identifier or the field key are skipped. Later duplicates win.
func NewFieldSchema(entries []FieldSchemaEntry) *FieldSchema {
	s := &FieldSchema{
		FieldMap: make(map[string]string, len(entries)),
		EnumMap:  make(map[string]EnumDictionary),
	}
	for _, e := range entries {
		if e.ExternalID == "" || e.FieldKey == "" {
			continue
		}
		s.FieldMap[e.ExternalID] = e.FieldKey
		if len(e.Enum) == 0 {
			continue
		}
		dict := make(EnumDictionary, len(e.Enum))
		for label, id := range e.Enum {
			dict[strings.TrimSpace(label)] = id
		}
		s.EnumMap[e.ExternalID] = dict
	}
	return s
}

// FieldKey returns the internal field key for an external identifier.
func (s *FieldSchema) FieldKey(externalID string) (string, bool) {
	if s == nil {
		return "", false
	}
	k, ok := s.FieldMap[externalID]
	return k, ok
}

// EnumID returns the choice id for a label of the enumerated field with the
// given external identifier. The label must match exactly.
func (s *FieldSchema) EnumID(externalID, label string) (string, bool) {
	if s == nil {
		return "", false
	}
	dict, ok := s.EnumMap[externalID]
	if !ok {
		return "", false
	}
	id, ok := dict[label]
	return id, ok
}

// Len returns the number of mapped fields.
func (s *FieldSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.FieldMap)
}
