package bitrix

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// REST methods used by the lead sync.
const (
	MethodContactList       = "crm.contact.list"
	MethodContactAdd        = "crm.contact.add"
	MethodDealAdd           = "crm.deal.add"
	MethodDealUserFieldList = "crm.deal.userfield.list"
	MethodUserFieldList     = "crm.userfield.list"
	MethodDealContactAdd    = "crm.deal.contact.add"
)

// EntityDeal is the user-field entity id of CRM deals.
const EntityDeal = "CRM_DEAL"

// PhoneTypeWork is the VALUE_TYPE used for phones attached to new contacts.
const PhoneTypeWork = "WORK"

// maxListPages bounds pagination so a misbehaving "next" cannot loop forever.
const maxListPages = 100

// ListContactsByPhone returns contacts whose PHONE equals phone exactly, in the
// order Bitrix returns them.
func ListContactsByPhone(ctx context.Context, c Client, phone string) ([]Contact, error) {
	if phone == "" {
		return nil, eris.New("bitrix: phone is required for contact lookup")
	}
	resp, err := c.Call(ctx, MethodContactList, map[string]any{
		"filter": map[string]any{"PHONE": phone},
		"select": []string{"ID", "NAME", "PHONE"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "bitrix: find contact by phone")
	}
	var contacts []Contact
	if err := resp.Decode(&contacts); err != nil {
		return nil, eris.Wrap(err, "bitrix: find contact by phone")
	}
	return contacts, nil
}

// AddContact creates a contact and returns its id. The phone is attached as a
// WORK entry when non-empty.
func AddContact(ctx context.Context, c Client, name, phone string) (string, error) {
	fields := map[string]any{"NAME": name}
	if phone != "" {
		fields["PHONE"] = []Multifield{{Value: phone, ValueType: PhoneTypeWork}}
	}
	resp, err := c.Call(ctx, MethodContactAdd, map[string]any{"fields": fields})
	if err != nil {
		return "", eris.Wrap(err, "bitrix: create contact")
	}
	return decodeID(resp, "create contact")
}

// AddDeal creates a deal from a rendered fields object and returns its id.
func AddDeal(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", eris.New("bitrix: no deal fields")
	}
	resp, err := c.Call(ctx, MethodDealAdd, map[string]any{
		"fields": fields,
		"params": map[string]any{"REGISTER_SONET_EVENT": "Y"},
	})
	if err != nil {
		return "", eris.Wrap(err, "bitrix: create deal")
	}
	return decodeID(resp, "create deal")
}

// AddDealContact links an existing contact to a deal.
func AddDealContact(ctx context.Context, c Client, dealID, contactID string) error {
	if dealID == "" || contactID == "" {
		return eris.New("bitrix: deal id and contact id are required")
	}
	resp, err := c.Call(ctx, MethodDealContactAdd, map[string]any{
		"id":     dealID,
		"fields": map[string]any{"CONTACT_ID": contactID},
	})
	if err != nil {
		return eris.Wrapf(err, "bitrix: link contact %s to deal %s", contactID, dealID)
	}
	var ok bool
	if err := resp.Decode(&ok); err != nil {
		return eris.Wrapf(err, "bitrix: link contact %s to deal %s", contactID, dealID)
	}
	if !ok {
		return eris.Errorf("bitrix: link contact %s to deal %s rejected", contactID, dealID)
	}
	return nil
}

// ListDealUserFields returns every deal user field, following pagination.
func ListDealUserFields(ctx context.Context, c Client) ([]UserField, error) {
	fields, err := listAll[UserField](ctx, c, MethodDealUserFieldList, map[string]any{})
	if err != nil {
		return nil, eris.Wrap(err, "bitrix: list deal user fields")
	}
	return fields, nil
}

// ListUserFields returns user fields of the given entity through the generic
// listing method.
func ListUserFields(ctx context.Context, c Client, entityID string) ([]UserField, error) {
	fields, err := listAll[UserField](ctx, c, MethodUserFieldList, map[string]any{
		"filter": map[string]any{"ENTITY_ID": entityID},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "bitrix: list user fields of %s", entityID)
	}
	return fields, nil
}

// listAll follows Bitrix "next" offsets until the listing is exhausted.
func listAll[T any](ctx context.Context, c Client, method string, params map[string]any) ([]T, error) {
	var all []T
	start := 0
	for page := 0; page < maxListPages; page++ {
		p := make(map[string]any, len(params)+1)
		for k, v := range params {
			p[k] = v
		}
		if start > 0 {
			p["start"] = start
		}

		resp, err := c.Call(ctx, method, p)
		if err != nil {
			return nil, err
		}
		var batch []T
		if err := resp.Decode(&batch); err != nil {
			return nil, eris.Wrapf(err, "bitrix: %s page %d", method, page)
		}
		all = append(all, batch...)

		if resp.Next <= start {
			return all, nil
		}
		start = resp.Next
	}
	return all, eris.New(fmt.Sprintf("bitrix: %s exceeded %d pages", method, maxListPages))
}

func decodeID(resp *Response, op string) (string, error) {
	var id ID
	if err := resp.Decode(&id); err != nil {
		return "", eris.Wrapf(err, "bitrix: %s", op)
	}
	if id == "" {
		return "", eris.Errorf("bitrix: %s returned no id", op)
	}
	return id.String(), nil
}
