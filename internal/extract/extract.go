// Package extract pulls contact and business facts out of free-text chat
// messages. Extraction is pure: it never mutates session state and never
// reports a field that is already known.
package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-concierge/internal/model"
)

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(\d{3}\)|\b\d{3})[\s.-]?\d{3}[\s.-]?\d{4}\b`)

	challengeRE = regexp.MustCompile(`(?i)\b(?:struggling with|struggle with|(?:biggest |main )?(?:problem|challenge|issue|pain point) is|need help with|having trouble with|trouble with|help us with)\s+([^.!?\n]{3,120})`)

	budgetRangeRE = regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d+)?\s?k?\s*(?:-|–|to)\s*\$?\s?\d[\d,]*(?:\.\d+)?\s?k?\b`)
	budgetAmtRE   = regexp.MustCompile(`(?i)\b(?:(under|up to|around|about|less than|at most)|budget(?:\s+is|\s+of)?|spend(?:ing)?)\s+(?:of\s+)?(\$\s?\d[\d,]*(?:\.\d+)?\s?k?)\b`)
)

// Extractor scans messages against a vocabulary. The zero value is not
// usable; construct with New.
type Extractor struct {
	vocab *Vocabulary
}

// New returns an Extractor using v, or the embedded vocabulary when v is nil.
func New(v *Vocabulary) *Extractor {
	if v == nil {
		v = DefaultVocabulary()
	}
	return &Extractor{vocab: v}
}

// Vocabulary returns the extractor's vocabulary.
func (e *Extractor) Vocabulary() *Vocabulary {
	return e.vocab
}

var defaultExtractor = New(nil)

// Extract runs the default extractor.
func Extract(message string, existing model.LeadFields) model.Extraction {
	return defaultExtractor.Extract(message, existing)
}

// Extract returns the fields discovered in message that existing does not
// already hold. Every pattern scans the same input, so the result does not
// depend on the order fields are checked in.
func (e *Extractor) Extract(message string, existing model.LeadFields) model.Extraction {
	out := model.Extraction{}
	message = strings.TrimSpace(message)
	if message == "" {
		return out
	}

	set := func(f model.Field, v string) {
		v = strings.TrimSpace(v)
		if v == "" || existing.Has(f) {
			return
		}
		out[f] = v
	}

	email := emailRE.FindString(message)
	set(model.FieldEmail, strings.ToLower(email))

	// Digits inside an email address must not read as a phone number.
	scrubbed := emailRE.ReplaceAllString(message, " ")
	set(model.FieldPhone, phoneRE.FindString(scrubbed))

	set(model.FieldName, findName(scrubbed))
	set(model.FieldCompany, findCompany(scrubbed))
	set(model.FieldBudgetRange, findBudget(scrubbed))

	if t, ok := e.vocab.Island(scrubbed); ok {
		set(model.FieldLocation, t.Name)
	}
	if t, ok := e.vocab.Category(scrubbed); ok {
		set(model.FieldBusinessType, t.Name)
	}
	set(model.FieldMainChallenge, e.findChallenge(scrubbed))

	return out
}

func (e *Extractor) findChallenge(text string) string {
	if m := challengeRE.FindStringSubmatch(text); m != nil {
		c := strings.TrimSpace(strings.TrimRight(m[1], " ,;:"))
		if c != "" {
			return c
		}
	}
	if t, ok := e.vocab.Challenge(text); ok {
		return t.Name
	}
	return ""
}

func findBudget(text string) string {
	if m := budgetRangeRE.FindString(text); m != "" {
		return squashSpaces(m)
	}
	m := budgetAmtRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	amount := strings.ReplaceAll(m[2], " ", "")
	if m[1] != "" {
		return strings.ToLower(m[1]) + " " + amount
	}
	return amount
}

func squashSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
