package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-concierge/internal/model"
)

func TestSummary(t *testing.T) {
	lead := model.LeadFields{
		Name:          "Kai",
		Email:         "kai@surf.com",
		BusinessType:  "Tourism & Hospitality",
		Location:      "Maui",
		MainChallenge: "Bookings and reservations",
	}
	got := Summary(lead, []string{"one", "two", "three", "four"})

	assert.Equal(t,
		`Business type: Tourism & Hospitality | Location: Maui | Challenge: Bookings and reservations | Recent messages: "two" / "three" / "four"`,
		got)
}

func TestSummary_TruncatesExcerpts(t *testing.T) {
	long := strings.Repeat("ā", 200)
	got := Summary(model.LeadFields{}, []string{long, "   "})

	assert.Equal(t, `Recent messages: "`+strings.Repeat("ā", 150)+`..."`, got)
}

func TestSummary_Empty(t *testing.T) {
	assert.Empty(t, Summary(model.LeadFields{Email: "a@b.co"}, nil))
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Aloha!", "Tell me about your services"},
		{"HOWZIT", "Tell me about your services"},
		{"We manage a hotel", "Tourism analytics"},
		{"Our restaurant needs help", "Restaurant AI solutions"},
		{"pricing?", "Learn more"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := Suggestions(tt.msg)
			assert.Len(t, got, 4)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestSuggestions_ReturnsCopy(t *testing.T) {
	got := Suggestions("pricing")
	got[0] = "mutated"
	assert.Equal(t, "Learn more", Suggestions("pricing")[0])
}
