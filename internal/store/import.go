package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-concierge/internal/model"
)

// ReadLeads parses records written by Export. Tabular input must start with
// a header row; columns are matched by name and unknown ones are ignored.
func ReadLeads(ctx context.Context, r io.Reader, format Format) ([]model.LeadRecord, error) {
	switch format {
	case FormatJSON:
		return readJSON(ctx, r)
	case FormatCSV:
		return readCSV(ctx, r)
	case FormatXLSX:
		return readXLSX(ctx, r)
	}
	return nil, eris.Errorf("store: unknown import format %q", format)
}

func readJSON(ctx context.Context, r io.Reader) ([]model.LeadRecord, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "import: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("import: expected '[', got %v", tok)
	}

	var out []model.LeadRecord
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "import: context cancelled")
		}
		var rec model.LeadRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, eris.Wrapf(err, "import: decode record %d", len(out)+1)
		}
		out = append(out, rec)
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "import: read closing token")
	}
	return out, nil
}

func readCSV(ctx context.Context, r io.Reader) ([]model.LeadRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "import: context cancelled")
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read csv row")
		}
		rows = append(rows, row)
	}
	return rowsToLeads(rows)
}

func readXLSX(ctx context.Context, r io.Reader) ([]model.LeadRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "import: read xlsx")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "import: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "import: context cancelled")
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rowsToLeads(rows)
}

func rowsToLeads(rows [][]string) ([]model.LeadRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["lead_id"]; !ok {
		if _, ok := index["email"]; !ok {
			return nil, eris.New("import: header needs a lead_id or email column")
		}
	}

	out := make([]model.LeadRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		col := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if strings.Join(row, "") == "" {
			continue
		}

		rec := model.LeadRecord{
			LeadID:              col("lead_id"),
			Name:                col("name"),
			Email:               col("email"),
			Phone:               col("phone"),
			Company:             col("company"),
			BusinessType:        col("business_type"),
			Location:            col("location"),
			MainChallenge:       col("main_challenge"),
			BudgetRange:         col("budget_range"),
			LeadQuality:         model.Quality(strings.ToLower(col("lead_quality"))),
			ConversationSummary: col("conversation_summary"),
		}
		if v := col("qualification_score"); v != "" {
			score, err := strconv.Atoi(v)
			if err != nil {
				return nil, eris.Wrapf(err, "import: row %d qualification_score", n+2)
			}
			rec.QualificationScore = score
		}
		if v := col("captured_at"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, eris.Wrapf(err, "import: row %d captured_at", n+2)
			}
			rec.CapturedAt = t
		}
		out = append(out, rec)
	}
	return out, nil
}
