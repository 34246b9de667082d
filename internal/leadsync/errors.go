// Package leadsync synchronizes lead-form submissions into the CRM as a
// deduplicated contact and a deal carrying the mapped quiz answers.
package leadsync

import (
	"errors"
	"fmt"
)

// Kind classifies sync failures.
type Kind string

const (
	// KindValidation is a submission rejected before any CRM call.
	KindValidation Kind = "validation"
	// KindSchemaFetch is a failed custom-field discovery.
	KindSchemaFetch Kind = "schema_fetch"
	// KindCRMCall is a fatal CRM failure (contact lookup or deal creation).
	KindCRMCall Kind = "crm_call"
	// KindContactCreate is a failed contact creation. Not fatal.
	KindContactCreate Kind = "contact_create"
	// KindContactLink is a failed deal-contact link call. Not fatal.
	KindContactLink Kind = "contact_link"
)

// Error is a sync failure tagged with its kind and the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrPhoneRequired is returned when a submission carries no usable phone.
var ErrPhoneRequired = errors.New("phone is required")
