package bitrix

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// ID is a Bitrix record id. Bitrix returns ids as strings in list results
// and as numbers from add methods; both decode into ID.
type ID string

// UnmarshalJSON accepts a string, a number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "bitrix: decode id")
	}
	switch t := v.(type) {
	case nil:
		*id = ""
	case string:
		*id = ID(t)
	case float64:
		*id = ID(strconv.FormatInt(int64(t), 10))
	default:
		return eris.Errorf("bitrix: unexpected id %s", string(data))
	}
	return nil
}

// String returns the id as text.
func (id ID) String() string {
	return string(id)
}

// Multifield is one entry of a Bitrix multi-value field such as PHONE.
type Multifield struct {
	ID        ID     `json:"ID,omitempty"`
	Value     string `json:"VALUE"`
	ValueType string `json:"VALUE_TYPE"`
}

// Contact is a crm.contact record as returned by crm.contact.list.
type Contact struct {
	ID       ID           `json:"ID"`
	Name     string       `json:"NAME"`
	LastName string       `json:"LAST_NAME,omitempty"`
	Phone    []Multifield `json:"PHONE,omitempty"`
}

// UserField is a custom field definition from crm.deal.userfield.list.
type UserField struct {
	ID         ID          `json:"ID"`
	EntityID   string      `json:"ENTITY_ID"`
	FieldName  string      `json:"FIELD_NAME"`
	XMLID      string      `json:"XML_ID"`
	UserTypeID string      `json:"USER_TYPE_ID"`
	Multiple   string      `json:"MULTIPLE,omitempty"`
	List       []EnumValue `json:"LIST,omitempty"`
}

// EnumValue is one choice of an enumeration user field.
type EnumValue struct {
	ID    ID     `json:"ID"`
	Value string `json:"VALUE"`
	XMLID string `json:"XML_ID,omitempty"`
	Def   string `json:"DEF,omitempty"`
}
