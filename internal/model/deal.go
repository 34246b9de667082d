package model

import "strconv"

// Bitrix deal field names written by the sync engine.
const (
	DealFieldTitle             = "TITLE"
	DealFieldContactID         = "CONTACT_ID"
	DealFieldComments          = "COMMENTS"
	DealFieldSourceID          = "SOURCE_ID"
	DealFieldSourceDescription = "SOURCE_DESCRIPTION"
	DealFieldUTMSource         = "UTM_SOURCE"
	DealFieldUTMCampaign       = "UTM_CAMPAIGN"
	DealFieldAssignedByID      = "ASSIGNED_BY_ID"
	DealFieldCategoryID        = "CATEGORY_ID"
	DealFieldStageID           = "STAGE_ID"
)

// Deal is the CRM deal assembled for one submission. It is built in memory,
// sent once, and not mutated afterwards.
type Deal struct {
	Title             string            `json:"title"`
	ContactID         string            `json:"contact_id,omitempty"`
	Comments          string            `json:"comments,omitempty"`
	SourceID          string            `json:"source_id,omitempty"`
	SourceDescription string            `json:"source_description,omitempty"`
	UTMSource         string            `json:"utm_source,omitempty"`
	UTMCampaign       string            `json:"utm_campaign,omitempty"`
	AssignedByID      int               `json:"assigned_by_id,omitempty"`
	CategoryID        int               `json:"category_id,omitempty"`
	StageID           string            `json:"stage_id,omitempty"`
	CustomFields      map[string]string `json:"custom_fields,omitempty"`
}

// Fields renders the deal as a Bitrix "fields" object. Unset optional values
// are omitted, and custom fields are merged last so they override any
// same-named standard field.
func (d Deal) Fields() map[string]any {
	f := make(map[string]any, 10+len(d.CustomFields))
	f[DealFieldTitle] = d.Title
	setIf(f, DealFieldContactID, d.ContactID)
	setIf(f, DealFieldComments, d.Comments)
	setIf(f, DealFieldSourceID, d.SourceID)
	setIf(f, DealFieldSourceDescription, d.SourceDescription)
	setIf(f, DealFieldUTMSource, d.UTMSource)
	setIf(f, DealFieldUTMCampaign, d.UTMCampaign)
	if d.AssignedByID > 0 {
		f[DealFieldAssignedByID] = strconv.Itoa(d.AssignedByID)
	}
	if d.CategoryID > 0 {
		f[DealFieldCategoryID] = strconv.Itoa(d.CategoryID)
	}
	setIf(f, DealFieldStageID, d.StageID)
	for k, v := range d.CustomFields {
		f[k] = v
	}
	return f
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
