package model

import "time"

// SyncResult is what a successful sync reports back to the caller.
type SyncResult struct {
	DealID       string            `json:"dealId"`
	ContactID    *string           `json:"contactId"`
	MappedFields map[string]string `json:"mappedFields"`
	DroppedKeys  []string          `json:"droppedKeys,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// SyncStatus is the outcome recorded in the sync journal.
type SyncStatus string

const (
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRecord is one journal row describing a processed submission.
type SyncRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Phone        string            `json:"phone"`
	Status       SyncStatus        `json:"status"`
	DealID       string            `json:"deal_id,omitempty"`
	ContactID    string            `json:"contact_id,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
	MappedFields map[string]string `json:"mapped_fields,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	UTMSource    string            `json:"utm_source,omitempty"`
	UTMCampaign  string            `json:"utm_campaign,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
