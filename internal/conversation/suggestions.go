package conversation

import "strings"

type chipRule struct {
	keywords []string
	chips    []string
}

// chipRules are checked in order; the first rule with a keyword in the
// message wins.
var chipRules = []chipRule{
	{
		keywords: []string{"hello", "hi", "aloha", "howzit"},
		chips:    []string{"Tell me about your services", "I need help with my business", "What's the pricing?", "Show me examples"},
	},
	{
		keywords: []string{"tourism", "hotel", "visitor"},
		chips:    []string{"Tourism analytics", "Booking optimization", "Seasonal forecasting", "Get a quote"},
	},
	{
		keywords: []string{"restaurant", "food", "dining"},
		chips:    []string{"Restaurant AI solutions", "Inventory optimization", "Customer analytics", "Schedule consultation"},
	},
}

var defaultChips = []string{"Learn more", "See pricing", "Talk to someone", "View examples"}

// Suggestions returns quick-reply chips for a user message. Matching is a
// case-insensitive substring test, so "this" counts as a greeting.
func Suggestions(message string) []string {
	lower := strings.ToLower(message)
	for _, r := range chipRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return append([]string(nil), r.chips...)
			}
		}
	}
	return append([]string(nil), defaultChips...)
}
