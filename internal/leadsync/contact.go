package leadsync

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/phone"
	"github.com/sells-group/leadsync/pkg/bitrix"
)

// LookupPolicy decides what happens when the phone lookup itself fails.
type LookupPolicy string

const (
	// LookupAbort fails the submission.
	LookupAbort LookupPolicy = "abort"
	// LookupCreate treats the failure as "no match" and creates a contact,
	// accepting a possible duplicate.
	LookupCreate LookupPolicy = "create"
)

// ParseLookupPolicy parses a configured policy. Empty means LookupAbort.
func ParseLookupPolicy(s string) (LookupPolicy, error) {
	switch p := LookupPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return LookupAbort, nil
	case LookupAbort, LookupCreate:
		return p, nil
	default:
		return "", eris.Errorf("leadsync: unknown lookup policy %q", s)
	}
}

// DefaultContactName is used for contacts created from nameless submissions.
const DefaultContactName = "No name"

// Resolution is the outcome of a contact resolution.
type Resolution struct {
	ContactID string
	Created   bool
	// Warning is set when a lookup failure was tolerated.
	Warning string
}

// ContactResolver finds the contact for a phone or creates one.
type ContactResolver struct {
	client      bitrix.Client
	defaultName string
	policy      LookupPolicy
}

// ContactOption configures a ContactResolver.
type ContactOption func(*ContactResolver)

// WithDefaultName sets the name of contacts created without one.
func WithDefaultName(name string) ContactOption {
	return func(r *ContactResolver) {
		if name = strings.TrimSpace(name); name != "" {
			r.defaultName = name
		}
	}
}

// WithLookupPolicy sets the lookup failure policy.
func WithLookupPolicy(p LookupPolicy) ContactOption {
	return func(r *ContactResolver) {
		if p != "" {
			r.policy = p
		}
	}
}

// NewContactResolver creates a resolver. Lookup failures abort by default.
func NewContactResolver(client bitrix.Client, opts ...ContactOption) *ContactResolver {
	r := &ContactResolver{
		client:      client,
		defaultName: DefaultContactName,
		policy:      LookupAbort,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first contact whose phone equals p, creating a contact
// when none exists. Each call creates at most one contact.
func (r *ContactResolver) Resolve(ctx context.Context, name string, p phone.Phone) (Resolution, error) {
	var res Resolution

	if !p.IsEmpty() {
		contacts, err := bitrix.ListContactsByPhone(ctx, r.client, p.String())
		switch {
		case err != nil && r.policy == LookupAbort:
			return res, &Error{Kind: KindCRMCall, Op: "find contact", Err: err}
		case err != nil:
			zap.L().Warn("leadsync: contact lookup failed, creating contact",
				zap.String("phone", p.String()),
				zap.Error(err),
			)
			res.Warning = "contact lookup failed: " + err.Error()
		default:
			for _, c := range contacts {
				if c.ID != "" {
					res.ContactID = c.ID.String()
					return res, nil
				}
			}
		}
	}

	if name = strings.TrimSpace(name); name == "" {
		name = r.defaultName
	}
	id, err := bitrix.AddContact(ctx, r.client, name, p.String())
	if err != nil {
		return res, &Error{Kind: KindContactCreate, Op: "create contact", Err: err}
	}
	res.ContactID = id
	res.Created = true
	return res, nil
}
