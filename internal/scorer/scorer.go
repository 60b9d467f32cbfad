// Package scorer qualifies accumulated lead fields with a 0-100 score and
// decides when a session is ready for capture.
package scorer

import "github.com/sells-group/lead-concierge/internal/model"

// Weights controls how much each signal contributes to a score.
type Weights struct {
	Email         int
	Phone         int
	BusinessType  int
	Location      int
	MainChallenge int

	// Engagement bonuses keyed by minimum message count. The highest
	// satisfied threshold applies.
	Engagement []EngagementTier
}

// EngagementTier awards Points once MessageCount reaches MinMessages.
type EngagementTier struct {
	MinMessages int
	Points      int
}

// DefaultWeights returns the standard weighting: 30 points of contact
// completeness, 30 of business detail and up to 40 for engagement.
func DefaultWeights() Weights {
	return Weights{
		Email:         20,
		Phone:         10,
		BusinessType:  10,
		Location:      10,
		MainChallenge: 10,
		Engagement: []EngagementTier{
			{MinMessages: 5, Points: 40},
			{MinMessages: 3, Points: 25},
			{MinMessages: 2, Points: 15},
		},
	}
}

// MaxScore is the upper bound of every score.
const MaxScore = 100

// ReadyMessageCount is the engagement level that satisfies the identity
// half of the readiness check on its own.
const ReadyMessageCount = 3

var defaultWeights = DefaultWeights()

// Score computes the qualification score with the default weights.
func Score(l model.LeadFields) int {
	return defaultWeights.Score(l)
}

// Score computes a qualification score in [0, MaxScore].
func (w Weights) Score(l model.LeadFields) int {
	score := 0
	if l.Has(model.FieldEmail) {
		score += w.Email
	}
	if l.Has(model.FieldPhone) {
		score += w.Phone
	}
	if l.Has(model.FieldBusinessType) {
		score += w.BusinessType
	}
	if l.Has(model.FieldLocation) {
		score += w.Location
	}
	if l.Has(model.FieldMainChallenge) {
		score += w.MainChallenge
	}

	best := 0
	for _, tier := range w.Engagement {
		if l.MessageCount >= tier.MinMessages && tier.Points > best {
			best = tier.Points
		}
	}
	score += best

	return min(max(score, 0), MaxScore)
}

// Ready reports whether a session should be captured now: a contact channel
// is known, the lead is identifiable or engaged, and nothing was captured yet.
func Ready(l model.LeadFields, captured bool) bool {
	if captured || !l.HasContact() {
		return false
	}
	return l.Has(model.FieldName) ||
		l.Has(model.FieldCompany) ||
		l.Has(model.FieldBusinessType) ||
		l.MessageCount >= ReadyMessageCount
}
