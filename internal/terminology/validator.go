// Package terminology recognizes and scores medical vocabulary in free text.
package terminology

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

// Level selects how strictly missing critical elements are scored
type Level string

const (
	LevelStandard Level = "standard"
	LevelStrict   Level = "strict"
)

const strictMissingPenalty = 10

// ParseLevel maps an empty string to standard
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(s)) {
	case "", LevelStandard:
		return LevelStandard, true
	case LevelStrict:
		return LevelStrict, true
	}
	return "", false
}

// Scores are the three component scores and their weighted blend
type Scores struct {
	Recognition        float64 `json:"recognition"`
	Preservation       float64 `json:"preservation"`
	ContextualAccuracy float64 `json:"contextualAccuracy"`
	Overall            float64 `json:"overall"`
}

// Metrics holds counts and retrieval statistics
type Metrics struct {
	ValidTerms      int     `json:"validTerms"`
	InvalidTerms    int     `json:"invalidTerms"`
	AmbiguousTerms  int     `json:"ambiguousTerms"`
	IncorrectUsages int     `json:"incorrectUsages"`
	MissingCritical int     `json:"missingCritical"`
	TotalWords      int     `json:"totalWords"`
	TermDensity     float64 `json:"termDensity"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1              float64 `json:"f1Score"`
}

// Result is returned by ValidateMedicalTerminology
type Result struct {
	DocumentID      string                `json:"documentId,omitempty"`
	Level           Level                 `json:"level"`
	Scores          Scores                `json:"scores"`
	Metrics         Metrics               `json:"metrics"`
	Categorized     map[Category][]string `json:"categorizedTerms"`
	Abbreviations   map[string]string     `json:"abbreviations"`
	Corrections     map[string]string     `json:"corrections"`
	AmbiguousFound  []string              `json:"ambiguousTerms"`
	MissingElements []string              `json:"missingCriticalElements"`
	ConfidenceScore float64               `json:"confidenceScore"`
	Issues          []string              `json:"issues"`
	Recommendations []string              `json:"recommendations"`
	ProcessingTime  int64                 `json:"processingTime"`
}

type term struct {
	phrase string
	re     *regexp.Regexp
}

// Validator scores medical terminology usage
type Validator struct {
	categories map[Category][]term
	corrupt    []term
	ambiguous  []term

	recorder *audit.Recorder
	weights  config.TerminologyWeights
	now      func() time.Time
}

// New compiles the vocabulary
func New(recorder *audit.Recorder, weights config.TerminologyWeights, logger *slog.Logger) *Validator {
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger)
	}
	v := &Validator{
		categories: make(map[Category][]term),
		recorder:   recorder,
		weights:    weights,
		now:        time.Now,
	}
	for cat, phrases := range vocabulary {
		v.categories[cat] = compile(phrases)
	}
	v.corrupt = compile(sortedKeys(ocrCorruptions))
	v.ambiguous = compile(ambiguous)
	return v
}

// termRegex anchors on letters only so "300mg" still yields "mg"
func termRegex(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])` + regexp.QuoteMeta(phrase) + `(?:$|[^\p{L}])`)
}

func compile(phrases []string) []term {
	out := make([]term, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, term{phrase: p, re: termRegex(p)})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matches(text string, terms []term) []string {
	var found []string
	for _, t := range terms {
		if t.re.MatchString(text) {
			found = append(found, t.phrase)
		}
	}
	return found
}

// ValidateMedicalTerminology scores text and records a medical_terminology row
func (v *Validator) ValidateMedicalTerminology(ctx context.Context, userID, documentID, text string, level Level) *Result {
	started := v.now()
	result := v.Validate(text, level)
	result.DocumentID = documentID

	row := v.recorder.Record(ctx, audit.Entry{
		UserID:          userID,
		DocumentID:      documentID,
		ValidationType:  models.ValidationMedicalTerminology,
		AccuracyScore:   result.Scores.Overall,
		ConfidenceScore: result.ConfidenceScore,
		Started:         started,
		Metrics:         map[string]interface{}{"scores": result.Scores, "metrics": result.Metrics, "categorizedTerms": result.Categorized},
		Issues:          result.Issues,
		Recommendations: result.Recommendations,
	})
	result.ProcessingTime = row.ProcessingTime

	return result
}

// Validate scores text without persisting anything
func (v *Validator) Validate(text string, level Level) *Result {
	if level == "" {
		level = LevelStandard
	}
	result := &Result{
		Level:           level,
		Categorized:     make(map[Category][]string),
		Abbreviations:   make(map[string]string),
		Corrections:     make(map[string]string),
		AmbiguousFound:  []string{},
		MissingElements: []string{},
		Issues:          []string{},
		Recommendations: []string{},
	}

	valid := make(map[string]bool)
	for _, cat := range Categories {
		found := matches(text, v.categories[cat])
		if len(found) == 0 {
			continue
		}
		result.Categorized[cat] = found
		for _, f := range found {
			valid[f] = true
		}
	}
	for _, abbr := range result.Categorized[CategoryAbbreviations] {
		if expansion, ok := abbreviations[abbr]; ok {
			result.Abbreviations[abbr] = expansion
		}
	}
	for _, c := range matches(text, v.corrupt) {
		result.Corrections[c] = ocrCorruptions[c]
	}
	result.AmbiguousFound = append(result.AmbiguousFound, matches(text, v.ambiguous)...)

	var incorrect []string
	for _, co := range incorrectCoOccurrences {
		if co.re.MatchString(text) {
			incorrect = append(incorrect, co.description)
		}
	}

	words := analyzer.WordCount(text)
	result.MissingElements = missingCritical(text, result.Categorized, words)

	m := Metrics{
		ValidTerms:      len(valid),
		InvalidTerms:    len(result.Corrections),
		AmbiguousTerms:  len(result.AmbiguousFound),
		IncorrectUsages: len(incorrect),
		MissingCritical: len(result.MissingElements),
		TotalWords:      words,
	}

	s := Scores{
		Recognition:        recognitionScore(m),
		Preservation:       preservationScore(m),
		ContextualAccuracy: analyzer.Clamp(100 - 20*float64(m.IncorrectUsages) - 5*float64(m.AmbiguousTerms)),
	}
	w := v.weights
	overall := s.Recognition*w.Recognition + s.Preservation*w.Preservation + s.ContextualAccuracy*w.ContextualAccuracy
	if level == LevelStrict {
		overall -= strictMissingPenalty * float64(m.MissingCritical)
	}
	s.Overall = analyzer.Clamp(overall)

	tp := float64(m.ValidTerms)
	fp := float64(m.InvalidTerms + m.AmbiguousTerms)
	fn := float64(m.MissingCritical)
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp) * 100
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn) * 100
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.TermDensity = analyzer.Density(m.ValidTerms, words)

	confidence := s.Overall*w.Overall + m.TermDensity*w.Density + m.Precision*w.Precision

	result.Scores = Scores{
		Recognition:        round(s.Recognition),
		Preservation:       round(s.Preservation),
		ContextualAccuracy: round(s.ContextualAccuracy),
		Overall:            round(s.Overall),
	}
	m.Precision, m.Recall, m.F1, m.TermDensity = round(m.Precision), round(m.Recall), round(m.F1), round(m.TermDensity)
	result.Metrics = m
	result.ConfidenceScore = round(analyzer.Clamp(confidence))

	result.Issues, result.Recommendations = findings(result, incorrect)
	return result
}

func recognitionScore(m Metrics) float64 {
	total := m.ValidTerms + m.InvalidTerms + m.AmbiguousTerms
	if total == 0 {
		return 0
	}
	return float64(m.ValidTerms) / float64(total) * 100
}

func preservationScore(m Metrics) float64 {
	total := m.ValidTerms + m.InvalidTerms
	if total == 0 {
		return 100
	}
	return float64(m.ValidTerms) / float64(total) * 100
}

// missingCritical lists clinically required details absent from the text
func missingCritical(text string, found map[Category][]string, words int) []string {
	missing := []string{}
	if len(found[CategoryMedications]) > 0 {
		if !dosageRegex.MatchString(text) {
			missing = append(missing, "medication dosage")
		}
		if !frequencyRegex.MatchString(text) {
			missing = append(missing, "medication frequency")
		}
	}
	if words >= 50 && len(found[CategoryConditions]) == 0 {
		missing = append(missing, "diagnosis or condition")
	}
	return missing
}

func findings(r *Result, incorrect []string) ([]string, []string) {
	issues, recs := []string{}, []string{}
	m := r.Metrics

	if m.ValidTerms == 0 {
		issues = append(issues, "No medical terminology recognized")
	}
	for _, c := range sortedKeys(r.Corrections) {
		issues = append(issues, fmt.Sprintf("Possible OCR error: %q (did you mean %q?)", c, r.Corrections[c]))
	}
	if len(r.Corrections) > 0 {
		recs = append(recs, "Review the extracted text for OCR errors and re-scan if needed")
	}
	if len(r.AmbiguousFound) > 0 {
		issues = append(issues, "Ambiguous terms need clinical context: "+strings.Join(r.AmbiguousFound, ", "))
		recs = append(recs, "Clarify ambiguous terms with more specific clinical language")
	}
	issues = append(issues, incorrect...)
	if len(incorrect) > 0 {
		recs = append(recs, "Verify medication and condition pairings with a clinician")
	}
	for _, e := range r.MissingElements {
		issues = append(issues, "Missing critical element: "+e)
	}
	if len(r.MissingElements) > 0 {
		recs = append(recs, "Include dosage, frequency and diagnosis details where applicable")
	}
	if len(r.Abbreviations) > 0 {
		recs = append(recs, "Expand abbreviations for clarity")
	}

	return issues, recs
}

func round(v float64) float64 { return analyzer.Round(v, 2) }
