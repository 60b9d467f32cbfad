package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-concierge/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		fields model.LeadFields
		want   int
	}{
		{"empty", model.LeadFields{}, 0},
		{"email only", model.LeadFields{Email: "a@x.com"}, 20},
		{"phone only", model.LeadFields{Phone: "8085551234"}, 10},
		{"contact complete", model.LeadFields{Email: "a@x.com", Phone: "8085551234"}, 30},
		{"business complete", model.LeadFields{BusinessType: "Tourism & Hospitality", Location: "Maui", MainChallenge: "bookings"}, 30},
		{"two messages", model.LeadFields{MessageCount: 2}, 15},
		{"three messages", model.LeadFields{MessageCount: 3}, 25},
		{"four messages", model.LeadFields{MessageCount: 4}, 25},
		{"five messages", model.LeadFields{MessageCount: 5}, 40},
		{"one message", model.LeadFields{MessageCount: 1}, 0},
		{"email plus engagement", model.LeadFields{Email: "a@x.com", MessageCount: 5}, 60},
		{
			"everything",
			model.LeadFields{
				Name: "Kai", Email: "a@x.com", Phone: "8085551234", Company: "Surf Co",
				BusinessType: "Local Retail", Location: "Oahu", MainChallenge: "marketing",
				MessageCount: 12,
			},
			100,
		},
		{"name and company do not score", model.LeadFields{Name: "Kai", Company: "Surf Co"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.fields))
		})
	}
}

func TestScore_CappedAt100(t *testing.T) {
	w := DefaultWeights()
	w.Email = 90
	got := w.Score(model.LeadFields{Email: "a@x.com", Phone: "1", MessageCount: 9})
	assert.Equal(t, MaxScore, got)
}

func TestScore_Monotonic(t *testing.T) {
	// Adding any missing qualifying field never lowers the score.
	base := model.LeadFields{Email: "a@x.com"}
	additions := []func(*model.LeadFields){
		func(l *model.LeadFields) { l.Phone = "8085551234" },
		func(l *model.LeadFields) { l.BusinessType = "Restaurants & Food Service" },
		func(l *model.LeadFields) { l.Location = "Kauai" },
		func(l *model.LeadFields) { l.MainChallenge = "inventory" },
		func(l *model.LeadFields) { l.Name = "Kai" },
		func(l *model.LeadFields) { l.MessageCount++ },
	}

	cur := base
	prev := Score(cur)
	for i := 0; i < 3; i++ {
		for _, add := range additions {
			add(&cur)
			next := Score(cur)
			assert.GreaterOrEqual(t, next, prev)
			prev = next
		}
	}
}

func TestScore_Bounds(t *testing.T) {
	for mc := 0; mc < 20; mc++ {
		for mask := 0; mask < 32; mask++ {
			l := model.LeadFields{MessageCount: mc}
			if mask&1 != 0 {
				l.Email = "a@x.com"
			}
			if mask&2 != 0 {
				l.Phone = "1"
			}
			if mask&4 != 0 {
				l.BusinessType = "b"
			}
			if mask&8 != 0 {
				l.Location = "l"
			}
			if mask&16 != 0 {
				l.MainChallenge = "c"
			}
			s := Score(l)
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, MaxScore)
		}
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		fields   model.LeadFields
		captured bool
		want     bool
	}{
		{"no contact", model.LeadFields{Name: "Kai", MessageCount: 9}, false, false},
		{"email without identity", model.LeadFields{Email: "a@x.com", MessageCount: 1}, false, false},
		{"email and name", model.LeadFields{Email: "a@x.com", Name: "Kai"}, false, true},
		{"phone and company", model.LeadFields{Phone: "8085551234", Company: "Surf Co"}, false, true},
		{"email and business type", model.LeadFields{Email: "a@x.com", BusinessType: "Retail"}, false, true},
		{"email and engagement", model.LeadFields{Email: "a@x.com", MessageCount: 3}, false, true},
		{"already captured", model.LeadFields{Email: "a@x.com", Name: "Kai"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ready(tt.fields, tt.captured))
		})
	}
}

func TestTier(t *testing.T) {
	assert.Equal(t, model.QualityHot, Tier(100))
	assert.Equal(t, model.QualityHot, Tier(80))
	assert.Equal(t, model.QualityWarm, Tier(79))
	assert.Equal(t, model.QualityWarm, Tier(60))
	assert.Equal(t, model.QualityCool, Tier(59))
	assert.Equal(t, model.QualityCool, Tier(40))
	assert.Equal(t, model.QualityCold, Tier(39))
	assert.Equal(t, model.QualityCold, Tier(0))
}

func TestLabelsAndActions(t *testing.T) {
	assert.Equal(t, "Ready to buy", Label(Tier(85)))
	assert.Equal(t, "Early stage", Label(Tier(10)))
	assert.Equal(t, "URGENT: Call within 1 hour", RecommendedAction(90))
	assert.Equal(t, "HIGH: Call within 24 hours", RecommendedAction(65))
	assert.Equal(t, "MEDIUM: Follow up in 2-3 days", RecommendedAction(45))
	assert.Equal(t, "LOW: Add to nurture campaign", RecommendedAction(5))
	assert.Contains(t, FollowUp(95), "1 hour")
	assert.True(t, IsHot(80))
	assert.False(t, IsHot(79))
}
