package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-concierge/internal/model"
)

func TestSummarize(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := testLead("lead_a", model.QualityHot, 90, at)
	b := testLead("lead_b", model.QualityHot, 80, at.Add(2*time.Hour))
	c := testLead("lead_c", model.QualityCold, 10, at.Add(time.Hour))
	c.Location = ""
	c.Email = ""
	c.BusinessType = ""

	s := Summarize([]model.LeadRecord{*a, *b, *c})

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByQuality[model.QualityHot])
	assert.Equal(t, 1, s.ByQuality[model.QualityCold])
	assert.Equal(t, 0, s.ByQuality[model.QualityWarm])
	assert.Equal(t, 2, s.ByLocation["Honolulu"])
	assert.Equal(t, 1, s.ByLocation["unknown"])
	assert.Equal(t, 1, s.ByBusinessType["unknown"])
	assert.Equal(t, 2, s.WithContact)
	assert.InDelta(t, 60.0, s.AverageScore, 0.001)
	assert.True(t, s.LastCapturedAt.Equal(at.Add(2*time.Hour)))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageScore)
	assert.Len(t, s.ByQuality, 4)
	assert.True(t, s.LastCapturedAt.IsZero())
}
