package scorer

import "github.com/sells-group/lead-concierge/internal/model"

// Tier thresholds.
const (
	HotThreshold  = 80
	WarmThreshold = 60
	CoolThreshold = 40
)

// Tier maps a score to its quality tier.
func Tier(score int) model.Quality {
	switch {
	case score >= HotThreshold:
		return model.QualityHot
	case score >= WarmThreshold:
		return model.QualityWarm
	case score >= CoolThreshold:
		return model.QualityCool
	default:
		return model.QualityCold
	}
}

// IsHot reports whether a score warrants an immediate call.
func IsHot(score int) bool {
	return score >= HotThreshold
}

var labels = map[model.Quality]string{
	model.QualityHot:  "Ready to buy",
	model.QualityWarm: "High interest",
	model.QualityCool: "Needs nurturing",
	model.QualityCold: "Early stage",
}

// Label returns a short human description of a tier.
func Label(q model.Quality) string {
	return labels[q]
}

// RecommendedAction returns the priority-tagged next step for a score.
func RecommendedAction(score int) string {
	switch Tier(score) {
	case model.QualityHot:
		return "URGENT: Call within 1 hour"
	case model.QualityWarm:
		return "HIGH: Call within 24 hours"
	case model.QualityCool:
		return "MEDIUM: Follow up in 2-3 days"
	default:
		return "LOW: Add to nurture campaign"
	}
}

// FollowUp returns the longer follow-up guidance used in notifications.
func FollowUp(score int) string {
	switch Tier(score) {
	case model.QualityHot:
		return "Call within 1 hour! This lead is ready to move forward."
	case model.QualityWarm:
		return "Call within 24 hours to schedule a consultation."
	case model.QualityCool:
		return "Follow up within 2-3 days with relevant case studies."
	default:
		return "Add to nurture campaign and share helpful resources."
	}
}
