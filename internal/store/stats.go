package store

import (
	"time"

	"github.com/sells-group/lead-concierge/internal/model"
)

// Summary aggregates a set of lead records.
type Summary struct {
	Total          int                   `json:"total"`
	ByQuality      map[model.Quality]int `json:"by_quality"`
	ByLocation     map[string]int        `json:"by_location"`
	ByBusinessType map[string]int        `json:"by_business_type"`
	WithContact    int                   `json:"with_contact"`
	AverageScore   float64               `json:"average_score"`
	LastCapturedAt time.Time             `json:"last_captured_at,omitempty"`
}

// Summarize tallies recs. Every quality tier is present in ByQuality, even
// at zero. Empty locations and business types count as "unknown".
func Summarize(recs []model.LeadRecord) Summary {
	s := Summary{
		Total:          len(recs),
		ByQuality:      make(map[model.Quality]int, len(model.Qualities)),
		ByLocation:     make(map[string]int),
		ByBusinessType: make(map[string]int),
	}
	for _, q := range model.Qualities {
		s.ByQuality[q] = 0
	}

	total := 0
	for i := range recs {
		r := &recs[i]
		s.ByQuality[r.LeadQuality]++
		s.ByLocation[orUnknown(r.Location)]++
		s.ByBusinessType[orUnknown(r.BusinessType)]++
		if r.Email != "" || r.Phone != "" {
			s.WithContact++
		}
		total += r.QualificationScore
		if r.CapturedAt.After(s.LastCapturedAt) {
			s.LastCapturedAt = r.CapturedAt
		}
	}
	if len(recs) > 0 {
		s.AverageScore = float64(total) / float64(len(recs))
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
