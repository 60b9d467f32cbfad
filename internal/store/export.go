package store

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-concierge/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatJSON, nil
	}
	return "", eris.Errorf("store: unknown export format %q (want json, csv, or xlsx)", s)
}

// exportColumns defines the ordered tabular export columns.
var exportColumns = []string{
	"lead_id",
	"captured_at",
	"name",
	"email",
	"phone",
	"company",
	"business_type",
	"location",
	"main_challenge",
	"budget_range",
	"qualification_score",
	"lead_quality",
	"conversation_summary",
}

func exportRow(r *model.LeadRecord) []string {
	return []string{
		r.LeadID,
		r.CapturedAt.UTC().Format(time.RFC3339),
		r.Name,
		r.Email,
		r.Phone,
		r.Company,
		r.BusinessType,
		r.Location,
		r.MainChallenge,
		r.BudgetRange,
		strconv.Itoa(r.QualificationScore),
		string(r.LeadQuality),
		r.ConversationSummary,
	}
}

// Export writes recs to w in the given format.
func Export(w io.Writer, format Format, recs []model.LeadRecord) error {
	switch format {
	case FormatJSON:
		return exportJSON(w, recs)
	case FormatCSV:
		return exportCSV(w, recs)
	case FormatXLSX:
		return exportXLSX(w, recs)
	}
	return eris.Errorf("store: unknown export format %q", format)
}

func exportJSON(w io.Writer, recs []model.LeadRecord) error {
	if recs == nil {
		recs = []model.LeadRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(recs), "export: encode json")
}

func exportCSV(w io.Writer, recs []model.LeadRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for i := range recs {
		if err := cw.Write(exportRow(&recs[i])); err != nil {
			return eris.Wrapf(err, "export: write row %s", recs[i].LeadID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func exportXLSX(w io.Writer, recs []model.LeadRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	appendRow(sheet, exportColumns)
	for i := range recs {
		row := sheet.AddRow()
		for j, v := range exportRow(&recs[i]) {
			cell := row.AddCell()
			if exportColumns[j] == "qualification_score" {
				cell.SetInt(recs[i].QualificationScore)
				continue
			}
			cell.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func appendRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
