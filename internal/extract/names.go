package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const nameToken = `[A-Za-z][A-Za-z'-]+`

var (
	// "my name is" is unambiguous enough to accept lowercase names.
	myNameIsRE = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name's)\s+(` + nameToken + `(?:\s+` + nameToken + `)?)`)

	// Softer lead-ins require the name itself to be capitalized.
	leadInNameRE = regexp.MustCompile(`(?i:\b(?:i'm|i am|im|this is|call me))\s+([A-Z][A-Za-z'-]+(?:\s+[A-Z][A-Za-z'-]+)?)`)
	hereNameRE   = regexp.MustCompile(`(?:^|[.!?,]\s*)([A-Z][A-Za-z'-]+(?:\s+[A-Z][A-Za-z'-]+)?)\s+here\b`)

	ownershipRE = regexp.MustCompile(`(?i:\b(?:i|we)\s+(?:own|run|manage|operate|started)|\bowner\s+of|\bi\s+work\s+(?:at|for)|\b(?:company|business|shop|restaurant|farm)(?:'s)?\s+(?:is\s+called|is\s+named|is|called|named))\s+((?:(?i:the|a|an|my|our)\s+)?[A-Z0-9][\w'&-]*(?:\s+(?:[A-Z0-9&][\w'&-]*|(?i:of|the)))*)`)
	suffixRE    = regexp.MustCompile(`((?:[A-Z][\w'&-]*\s+){1,4})(?i:(restaurant|shop|store|farm|cafe|hotel|bakery|market|tours|grill|spa|ranch|inn|resort|boutique|studio|clinic|realty|food truck|surf school))\b`)
)

var nameStopWords = map[string]bool{
	"looking": true, "interested": true, "here": true, "just": true, "not": true,
	"so": true, "very": true, "good": true, "great": true, "fine": true,
	"doing": true, "trying": true, "wondering": true, "curious": true, "new": true,
	"the": true, "a": true, "an": true, "from": true, "with": true, "in": true,
	"on": true, "at": true, "and": true, "thinking": true, "planning": true,
	"ready": true, "sure": true, "glad": true, "happy": true, "hoping": true,
	"going": true, "calling": true, "writing": true, "reaching": true, "owner": true,
	"manager": true, "busy": true, "still": true, "also": true, "really": true,
	"well": true, "okay": true, "ok": true, "sorry": true, "aloha": true,
	"hello": true, "hi": true, "hey": true, "thanks": true, "mahalo": true,
	"my": true, "our": true, "your": true, "we": true, "i": true, "it": true,
	"that": true, "this": true, "what": true, "how": true, "who": true,
	"about": true, "for": true, "to": true, "of": true, "all": true,
	"running": true, "starting": true, "opening": true, "selling": true, "working": true,
	"having": true, "struggling": true, "based": true, "located": true, "out": true,
	"yes": true, "no": true, "yeah": true, "nah": true, "shoots": true,
	"need": true, "want": true, "like": true, "help": true, "helping": true,
	"pretty": true, "kind": true, "big": true, "small": true, "local": true,
}

var greetingWords = map[string]bool{
	"aloha": true, "hi": true, "hello": true, "hey": true, "howzit": true,
}

var companyLeadWords = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "our": true,
	"yes": true, "yeah": true, "hi": true, "hello": true, "aloha": true,
	"hey": true, "well": true, "so": true, "and": true, "but": true,
	"i": true, "we": true, "it": true, "its": true, "it's": true,
	"this": true, "that": true, "small": true, "local": true, "family": true,
}

func findName(text string) string {
	if m := myNameIsRE.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1], true); name != "" {
			return name
		}
	}
	for _, re := range []*regexp.Regexp{leadInNameRE, hereNameRE} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if name := cleanName(m[1], false); name != "" {
				return name
			}
		}
	}
	return ""
}

// cleanName keeps up to two name-like tokens, rejecting the match when its
// first token is a stop word.
func cleanName(raw string, fixCase bool) string {
	words := strings.Fields(raw)
	for len(words) > 0 && greetingWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 || !looksLikeNameWord(words[0]) {
		return ""
	}
	parts := []string{words[0]}
	if len(words) > 1 && looksLikeNameWord(words[1]) {
		parts = append(parts, words[1])
	}
	for i, p := range parts {
		if fixCase {
			p = titleCase(p)
		}
		parts[i] = p
	}
	return strings.Join(parts, " ")
}

func looksLikeNameWord(word string) bool {
	word = strings.Trim(word, "'-")
	if utf8.RuneCountInString(word) < 2 || utf8.RuneCountInString(word) > 30 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsLetter(r) {
		return false
	}
	return !nameStopWords[strings.ToLower(word)]
}

func findCompany(text string) string {
	if m := ownershipRE.FindStringSubmatch(text); m != nil {
		if c := cleanCompany(m[1], ""); c != "" {
			return c
		}
	}
	for _, m := range suffixRE.FindAllStringSubmatch(text, -1) {
		if c := cleanCompany(m[1], m[2]); c != "" {
			return c
		}
	}
	return ""
}

// cleanCompany strips leading articles and pronouns, then appends the
// business noun if one was matched. A phrase with nothing left is rejected.
func cleanCompany(phrase, suffix string) string {
	words := strings.Fields(strings.TrimRight(phrase, " .,!?"))
	for len(words) > 0 && companyLeadWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	// Trailing connectors belong to the sentence, not the name.
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if last != "of" && last != "the" {
			break
		}
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	if suffix != "" {
		words = append(words, titleCase(suffix))
	}
	return strings.Join(words, " ")
}

// titleCase builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}
