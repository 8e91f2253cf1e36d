package analyzer

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

var (
	nonWordRegex = regexp.MustCompile(`[^\w\s]`)

	// Resource names that contain crisis words ("suicide prevention") are
	// blanked before crisis and harm scans.
	resourceMaskRegex = regexp.MustCompile(`(?i)suicide (?:and|&) crisis lifeline|suicide prevention(?: lifeline| hotline)?|crisis (?:text )?line`)

	crisisWordRegex = regexp.MustCompile(`(?i)\bcris[ie]s\b`)
)

// Analyzer is the shared vocabulary every scoring component matches against
type Analyzer struct {
	terms     map[Category][]compiledTerm
	order     []Category
	advice    []AdvicePattern
	positive  map[string]bool
	negative  map[string]bool
	stopWords map[string]bool
}

type compiledTerm struct {
	Term
	re *regexp.Regexp
}

// New creates an Analyzer loaded with the default vocabulary
func New() *Analyzer {
	a := &Analyzer{
		terms:     make(map[Category][]compiledTerm),
		advice:    defaultAdvicePatterns(),
		positive:  getPositiveWords(),
		negative:  getNegativeWords(),
		stopWords: getStopWords(),
	}
	for _, t := range defaultTerms() {
		if _, ok := a.terms[t.Category]; !ok {
			a.order = append(a.order, t.Category)
		}
		a.terms[t.Category] = append(a.terms[t.Category], compiledTerm{Term: t, re: phraseRegex(t.Phrase)})
	}
	return a
}

// phraseRegex matches a phrase case-insensitively as a substring that starts
// on a word boundary, so inflections like "self-harming" match "self-harm"
func phraseRegex(phrase string) *regexp.Regexp {
	pattern := regexp.QuoteMeta(strings.ToLower(phrase))
	if r := rune(phrase[0]); isWordRune(r) {
		pattern = `\b` + pattern
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (a *Analyzer) prepare(text string, cat Category) string {
	switch cat {
	case CategoryCrisis, CategorySelfHarm, CategoryViolence, CategorySubstance:
		return resourceMaskRegex.ReplaceAllString(text, " ")
	}
	return text
}

// Terms returns the vocabulary of one category
func (a *Analyzer) Terms(cat Category) []Term {
	out := make([]Term, 0, len(a.terms[cat]))
	for _, ct := range a.terms[cat] {
		out = append(out, ct.Term)
	}
	return out
}

// Find returns the terms of a category present in text, each at most once,
// in vocabulary order
func (a *Analyzer) Find(text string, cat Category) []Term {
	text = a.prepare(text, cat)
	var found []Term
	for _, ct := range a.terms[cat] {
		if ct.re.MatchString(text) {
			found = append(found, ct.Term)
		}
	}
	return found
}

// FindSeverity returns the matched terms of a category at one severity tier
func (a *Analyzer) FindSeverity(text string, cat Category, sev Severity) []Term {
	var found []Term
	for _, t := range a.Find(text, cat) {
		if t.Severity == sev {
			found = append(found, t)
		}
	}
	return found
}

// Contains reports whether any term of the category occurs in text
func (a *Analyzer) Contains(text string, cat Category) bool {
	text = a.prepare(text, cat)
	for _, ct := range a.terms[cat] {
		if ct.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Count returns the total number of occurrences of a category's terms
func (a *Analyzer) Count(text string, cat Category) int {
	text = a.prepare(text, cat)
	n := 0
	for _, ct := range a.terms[cat] {
		n += len(ct.re.FindAllStringIndex(text, -1))
	}
	return n
}

// HighestCrisisSeverity returns the most severe crisis tier present in text
func (a *Analyzer) HighestCrisisSeverity(text string) Severity {
	highest := SeverityNone
	for _, t := range a.Find(text, CategoryCrisis) {
		if t.Severity > highest {
			highest = t.Severity
		}
	}
	return highest
}

// SignalsCrisis reports whether a user message carries a crisis or emergency
// keyword at any severity tier
func (a *Analyzer) SignalsCrisis(text string) bool {
	return crisisWordRegex.MatchString(text) ||
		a.Contains(text, CategoryCrisis) ||
		a.Contains(text, CategorySelfHarm) ||
		a.Contains(text, CategoryEmergency)
}

// MedicalAdvice returns the names of medical-advice patterns found in text
func (a *Analyzer) MedicalAdvice(text string) []string {
	var names []string
	for _, p := range a.advice {
		if p.Pattern.MatchString(text) {
			names = append(names, p.Name)
		}
	}
	return names
}

// Polarity returns (positive-negative)/sentiment-words x 100, or 0 when no
// sentiment word is present
func (a *Analyzer) Polarity(text string) float64 {
	pos, neg := 0, 0
	for _, w := range ExtractWords(text) {
		if a.positive[w] {
			pos++
		}
		if a.negative[w] {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total) * 100
}

// ContentWords returns the lowercased words longer than three characters
// that are not stop words
func (a *Analyzer) ContentWords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range ExtractWords(text) {
		if len(w) > 3 && !a.stopWords[w] {
			out[w] = true
		}
	}
	return out
}

// ExtractWords lowercases text and splits it on whitespace after dropping
// punctuation
func ExtractWords(text string) []string {
	text = strings.ToLower(text)
	text = nonWordRegex.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Density normalises a match count per ten words, capped at 100
func Density(matches, words int) float64 {
	per := math.Max(1, float64(words)/10)
	return math.Min(100, float64(matches)/per*100)
}

// Clamp bounds a score to [0,100]
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// Round rounds to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
