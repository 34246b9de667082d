package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/monitoring"
	"github.com/sells-group/leadsync/internal/store"
)

func TestFormatSyncsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	recs := []model.SyncRecord{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Name:      "Anna",
			Phone:     "+79991234567",
			Status:    model.SyncStatusSucceeded,
			DealID:    "501",
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Name:      "A very long submitter name that will not fit",
			Status:    model.SyncStatusFailed,
			ErrorKind: "crm_call",
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatSyncsList(&buf, recs)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "Anna")
	assert.Contains(t, out, "+79991234567")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "501")
	assert.Contains(t, out, "crm_call")
	assert.Contains(t, out, "A very long submitter name ...")
	assert.Contains(t, out, "2026-06-15 10:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijk"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestSyncFilterFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("status", "", "")
	cmd.Flags().String("phone", "", "")
	cmd.Flags().Int("limit", 50, "")
	_ = cmd.Flags().Set("status", "failed")
	_ = cmd.Flags().Set("phone", "+79991234567")

	assert.Equal(t, store.SyncFilter{
		Status: model.SyncStatusFailed,
		Phone:  "+79991234567",
		Limit:  50,
	}, syncFilterFromFlags(cmd))
}

func TestFormatSyncStats(t *testing.T) {
	var buf bytes.Buffer
	formatSyncStats(&buf, &monitoring.Snapshot{
		Total:            10,
		Succeeded:        7,
		Failed:           3,
		FailRate:         0.3,
		UpstreamFailures: 2,
		WithWarnings:     1,
		FailedByKind:     map[string]int{"crm_call": 2, "validation": 1},
		LookbackHours:    24,
	})

	out := buf.String()
	assert.Contains(t, out, "last 24h")
	assert.Contains(t, out, "Failed:     3 (30.0%)")
	assert.Contains(t, out, "CRM errors: 2")
	assert.Contains(t, out, "crm_call:")
	assert.Less(t, strings.Index(out, "crm_call:"), strings.Index(out, "validation:"))
}
