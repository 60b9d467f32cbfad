package conversation

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-concierge/internal/model"
)

const (
	summaryExcerpts   = 3
	maxExcerptRunes   = 150
	summarySeparator  = " | "
	summaryListPrefix = "Recent messages: "
)

var summaryFields = []struct {
	field model.Field
	label string
}{
	{model.FieldCompany, "Company"},
	{model.FieldBusinessType, "Business type"},
	{model.FieldLocation, "Location"},
	{model.FieldMainChallenge, "Challenge"},
	{model.FieldBudgetRange, "Budget"},
}

// Summary builds the conversation summary from the known business fields
// and up to three recent user messages, each cut to 150 characters.
func Summary(lead model.LeadFields, userMessages []string) string {
	var parts []string
	for _, sf := range summaryFields {
		if v, ok := lead.Get(sf.field); ok {
			parts = append(parts, fmt.Sprintf("%s: %s", sf.label, v))
		}
	}

	if len(userMessages) > summaryExcerpts {
		userMessages = userMessages[len(userMessages)-summaryExcerpts:]
	}
	var excerpts []string
	for _, m := range userMessages {
		if m = strings.TrimSpace(m); m != "" {
			excerpts = append(excerpts, fmt.Sprintf("%q", truncate(m, maxExcerptRunes)))
		}
	}
	if len(excerpts) > 0 {
		parts = append(parts, summaryListPrefix+strings.Join(excerpts, " / "))
	}
	return strings.Join(parts, summarySeparator)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
