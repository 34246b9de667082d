// Package export writes the sync journal to spreadsheets.
package export

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadsync/internal/model"
)

// SheetName is the worksheet the journal is written to.
const SheetName = "Syncs"

// Header lists the exported columns in order.
var Header = []string{
	"ID", "Created", "Status", "Name", "Phone", "Deal ID", "Contact ID",
	"Error kind", "Error", "UTM source", "UTM campaign", "Mapped fields", "Warnings",
}

// WriteSyncs writes records to a new XLSX file at path, one row per record
// under a header row.
func WriteSyncs(path string, recs []model.SyncRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	writeRow(sheet, Header)
	for _, r := range recs {
		writeRow(sheet, recordRow(r))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func recordRow(r model.SyncRecord) []string {
	return []string{
		r.ID,
		r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		string(r.Status),
		r.Name,
		r.Phone,
		r.DealID,
		r.ContactID,
		r.ErrorKind,
		r.Error,
		r.UTMSource,
		r.UTMCampaign,
		formatFields(r.MappedFields),
		strings.Join(r.Warnings, "; "),
	}
}

// formatFields renders mapped fields as sorted "KEY=value" pairs.
func formatFields(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, "; ")
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// ReadOptions configures ReadRows.
type ReadOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// ReadRows reads an XLSX file and returns its rows as string slices.
func ReadRows(path string, opts ReadOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
