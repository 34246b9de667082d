package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/model"
)

func TestWriteSyncs_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncs.xlsx")
	created := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	recs := []model.SyncRecord{
		{
			ID:           "a1",
			Name:         "Anna",
			Phone:        "+79991234567",
			Status:       model.SyncStatusSucceeded,
			DealID:       "501",
			ContactID:    "17",
			MappedFields: map[string]string{"UF_CRM_STYLE": "44", "UF_CRM_AREA": "42"},
			UTMSource:    "vk",
			CreatedAt:    created,
		},
		{
			ID:        "b2",
			Name:      "Boris",
			Status:    model.SyncStatusFailed,
			ErrorKind: "crm_call",
			Error:     "add deal: access denied",
			Warnings:  []string{"contact create failed", "journal slow"},
			CreatedAt: created.Add(time.Hour),
		},
	}

	require.NoError(t, WriteSyncs(path, recs))

	rows, err := ReadRows(path, ReadOptions{SheetName: SheetName})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])

	assert.Equal(t, "a1", rows[1][0])
	assert.Equal(t, "2026-03-01 09:15:00", rows[1][1])
	assert.Equal(t, "succeeded", rows[1][2])
	assert.Equal(t, "501", rows[1][5])
	assert.Equal(t, "UF_CRM_AREA=42; UF_CRM_STYLE=44", rows[1][11])

	assert.Equal(t, "failed", rows[2][2])
	assert.Equal(t, "crm_call", rows[2][7])
	assert.Equal(t, "contact create failed; journal slow", rows[2][12])
}

func TestWriteSyncs_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteSyncs(path, nil))

	rows, err := ReadRows(path, ReadOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWriteSyncs_BadPath(t *testing.T) {
	err := WriteSyncs(filepath.Join(t.TempDir(), "missing", "out.xlsx"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: save")
}

func TestReadRows_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncs.xlsx")
	require.NoError(t, WriteSyncs(path, nil))

	_, err := ReadRows(path, ReadOptions{SheetName: "Other"})
	assert.ErrorContains(t, err, "not found")

	_, err = ReadRows(path, ReadOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadRows(filepath.Join(t.TempDir(), "nope.xlsx"), ReadOptions{})
	assert.ErrorContains(t, err, "xlsx: open file")
}
