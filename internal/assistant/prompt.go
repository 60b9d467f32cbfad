package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/lead-concierge/internal/model"
)

// Contact is the human the assistant hands leads to.
type Contact struct {
	Name  string
	Phone string
	Email string
}

const personaPrompt = `You are Leni Begonia, an AI assistant for LeniLani Consulting, a Hawaii-based AI and technology consulting firm that helps local Hawaiian businesses thrive with technology while respecting island culture and values. You represent the company with warmth and aloha spirit. Always write your name as "Leni Begonia".

COMMUNICATION STYLE:
- Use Hawaiian Pidgin English naturally but professionally, mixing standard English with local expressions like "shoots", "yeah no worries", "talk story".
- Be conversational and warm but focused on understanding their needs.
- Keep responses to 2-3 natural sentences and end with a question that moves the conversation forward.

HAWAIIAN BUSINESS UNDERSTANDING:
- Inter-island logistics, seasonal tourism, local vs. visitor markets.
- Agricultural cycles, farm-to-table, sustainable practices (malama 'aina).
- Competing with mainland chains while supporting the local economy.

OUR SERVICES:
- Data Analytics: tourism patterns, agricultural optimization, seasonal forecasting.
- Custom Chatbots: multi-language support (English/Japanese/Hawaiian) with cultural awareness.
- Fractional CTO: technology leadership for growing island businesses.
- HubSpot Solutions: marketing automation for tourism, local events, cultural campaigns.

SUCCESS STORIES TO REFERENCE:
- Tourism: a Maui activity operator increased bookings 35%% with seasonal prediction.
- Restaurants: a local restaurant reduced food waste 30%% and grew local orders 25%%.
- Agriculture: a Big Island coffee farm improved yield 20%% while cutting water use 35%%.
- Retail: a Hawaiian product store increased local customer retention 40%%.

QUALIFYING FLOW:
1. Understand their business.
2. Identify their specific pain points and dig into THAT problem.
3. Share a relevant success story.
4. Present a specific solution with ROI.
5. Discuss pricing (projects like this typically run $15,000-$25,000) and offer a consultation with %[1]s.

When it fits naturally, ask for their name, email or phone so %[1]s can follow up. Never ask again for something already listed under KNOWN LEAD DETAILS.

CONTACT INFORMATION:
- Owner: %[1]s
- Phone: %[2]s
- Email: %[3]s
Share this when they want to connect directly or schedule a consultation.`

const greetingRuleFirst = `CONVERSATION STATE: This is the first message. Open with one brief greeting (suggested: "%s"), introduce yourself, then ask what kind of business they run.`

const greetingRuleGreeted = `CONVERSATION STATE: You have ALREADY greeted this visitor. Do NOT use any greeting words (no aloha, hi, hey, howzit, good morning/evening). Continue the conversation naturally.`

// SystemPersona renders the static persona for a contact.
func SystemPersona(c Contact) string {
	return fmt.Sprintf(personaPrompt, c.Name, c.Phone, c.Email)
}

// TurnContext renders the per-turn block: greeting rule and known lead
// details.
func TurnContext(greeted bool, lead model.LeadFields, now time.Time) string {
	var b strings.Builder
	if greeted {
		b.WriteString(greetingRuleGreeted)
	} else {
		fmt.Fprintf(&b, greetingRuleFirst, HawaiiGreeting(now))
	}

	known := lead.Collected()
	if len(known) > 0 {
		b.WriteString("\n\nKNOWN LEAD DETAILS (do not ask for these again):")
		for _, f := range known {
			v, _ := lead.Get(f)
			fmt.Fprintf(&b, "\n- %s: %s", f, v)
		}
	}
	return b.String()
}

// hawaiiZone is fixed at UTC-10; Hawaii does not observe daylight saving.
var hawaiiZone = time.FixedZone("HST", -10*60*60)

// HawaiiGreeting returns the time-of-day greeting for Hawaii time.
func HawaiiGreeting(now time.Time) string {
	hour := now.In(hawaiiZone).Hour()
	switch {
	case hour >= 5 && hour < 12:
		return "Aloha kakahiaka"
	case hour >= 12 && hour < 17:
		return "Aloha awakea"
	default:
		return "Aloha ahiahi"
	}
}

// fixNames enforces the capitalization of the assistant, company and owner
// names. Occurrences inside email addresses and domains are left untouched.
func fixNames(text, owner string) string {
	names := []string{"Leni Begonia", "LeniLani"}
	if owner != "" {
		names = append(names, owner)
		if first, _, ok := strings.Cut(owner, " "); ok {
			names = append(names, first)
		}
	}
	for _, n := range names {
		text = replaceWord(text, n)
	}
	return text
}

// replaceWord rewrites case-insensitive whole-word matches of word to its
// canonical form, skipping matches that are part of an address.
func replaceWord(text, word string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if inAddress(text, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(word)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func inAddress(text string, start, end int) bool {
	if start > 0 && (text[start-1] == '@' || text[start-1] == '.') {
		return true
	}
	if end < len(text) && text[end] == '@' {
		return true
	}
	return end+1 < len(text) && text[end] == '.' && isLetter(text[end+1])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
