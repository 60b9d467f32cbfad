package store

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/internal/model"
)

func TestReadLeads_ReadsExportedFiles(t *testing.T) {
	want := exportFixture()
	for _, format := range []Format{FormatJSON, FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, format, want))

			got, err := ReadLeads(context.Background(), &buf, format)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "lead_a", got[0].LeadID)
			assert.Equal(t, 88, got[0].QualificationScore)
			assert.Equal(t, model.QualityHot, got[0].LeadQuality)
			assert.Equal(t, "$10,000", got[0].BudgetRange)
			assert.Equal(t, want[0].ConversationSummary, got[0].ConversationSummary)
			assert.True(t, want[0].CapturedAt.Equal(got[0].CapturedAt))
		})
	}
}

func TestReadLeads_CSVHeaderOrderAndCase(t *testing.T) {
	in := "Email,Name,Lead_Quality,extra\nkai@example.com,Kai,WARM,ignored\n,,,\n"

	got, err := ReadLeads(context.Background(), strings.NewReader(in), FormatCSV)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kai@example.com", got[0].Email)
	assert.Equal(t, "Kai", got[0].Name)
	assert.Equal(t, model.QualityWarm, got[0].LeadQuality)
	assert.Empty(t, got[0].LeadID)
	assert.True(t, got[0].CapturedAt.IsZero())
}

func TestReadLeads_Errors(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		format Format
		want   string
	}{
		{"no key column", "name,phone\nKai,808\n", FormatCSV, "lead_id or email"},
		{"bad score", "lead_id,qualification_score\nlead_a,high\n", FormatCSV, "qualification_score"},
		{"bad time", "lead_id,captured_at\nlead_a,yesterday\n", FormatCSV, "captured_at"},
		{"json object", `{"lead_id":"lead_a"}`, FormatJSON, "expected '['"},
		{"unknown format", "", Format("pdf"), "unknown import format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLeads(context.Background(), strings.NewReader(tt.in), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadLeads_Empty(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatCSV} {
		got, err := ReadLeads(context.Background(), strings.NewReader(""), format)
		require.NoError(t, err, format)
		assert.Empty(t, got, format)
	}
}

func TestReadLeads_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadLeads(ctx, strings.NewReader("lead_id\nlead_a\n"), FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
}
