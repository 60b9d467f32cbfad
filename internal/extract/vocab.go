package extract

import (
	_ "embed"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultVocab []byte

// Term is a vocabulary entry matched by any of its keywords.
type Term struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`

	re *regexp.Regexp
}

// Vocabulary is the closed set of islands, business categories and challenge
// topics the extractor recognizes.
type Vocabulary struct {
	Islands    []Term `yaml:"islands"`
	Categories []Term `yaml:"categories"`
	Challenges []Term `yaml:"challenges"`
}

// DefaultVocabulary returns the embedded vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocab)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads a vocabulary YAML file from path.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read vocabulary %s", path)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and compiles a vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "extract: parse vocabulary")
	}
	for _, terms := range [][]Term{v.Islands, v.Categories, v.Challenges} {
		for i := range terms {
			if err := terms[i].compile(); err != nil {
				return nil, err
			}
		}
	}
	return &v, nil
}

func (t *Term) compile() error {
	if t.Name == "" {
		return eris.Errorf("extract: vocabulary term %q has no name", t.Key)
	}
	if len(t.Keywords) == 0 {
		return eris.Errorf("extract: vocabulary term %q has no keywords", t.Key)
	}
	alts := make([]string, len(t.Keywords))
	for i, kw := range t.Keywords {
		alts[i] = regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(kw)))
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	if err != nil {
		return eris.Wrapf(err, "extract: compile vocabulary term %q", t.Key)
	}
	t.re = re
	return nil
}

// firstTerm returns the term whose keyword occurs earliest in text. Ties go to
// the term listed first.
func firstTerm(terms []Term, text string) (Term, bool) {
	best, bestPos := -1, len(text)+1
	for i := range terms {
		if terms[i].re == nil {
			continue
		}
		loc := terms[i].re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if loc[0] < bestPos {
			best, bestPos = i, loc[0]
		}
	}
	if best < 0 {
		return Term{}, false
	}
	return terms[best], true
}

// Island returns the island term matching text, if any.
func (v *Vocabulary) Island(text string) (Term, bool) {
	return firstTerm(v.Islands, text)
}

// Category returns the business category term matching text, if any.
func (v *Vocabulary) Category(text string) (Term, bool) {
	return firstTerm(v.Categories, text)
}

// Challenge returns the challenge topic matching text, if any.
func (v *Vocabulary) Challenge(text string) (Term, bool) {
	return firstTerm(v.Challenges, text)
}

// IslandByName looks up an island by its key or display name.
func (v *Vocabulary) IslandByName(name string) (Term, bool) {
	for _, t := range v.Islands {
		if strings.EqualFold(t.Key, name) || strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Term{}, false
}
