// Package sanitizer removes or generalises personally identifying content
// before any payload reaches an external AI model.
package sanitizer

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zombar/guardian/internal/models"
)

// Options controls how much therapeutic context survives sanitization
type Options struct {
	// PreserveTherapeuticContext keeps the first initial of the user's name;
	// when false the name becomes "User".
	PreserveTherapeuticContext bool
}

// DefaultOptions returns the options used for chat and insight prompts
func DefaultOptions() Options {
	return Options{PreserveTherapeuticContext: true}
}

// Payload is everything that may be handed to an AI model. Absent fields
// pass through unchanged.
type Payload struct {
	Profile         *models.UserProfile    `json:"profile,omitempty"`
	Medications     []models.Medication    `json:"medications,omitempty"`
	MedicalInsights *models.MedicalSummary `json:"medicalInsights,omitempty"`
	ExtractedText   string                 `json:"extractedText,omitempty"`
	Aggregates      map[string]float64     `json:"aggregates,omitempty"`
	Text            string                 `json:"text,omitempty"`
}

// Sanitizer applies the ordered PII patterns and the medication dictionary
type Sanitizer struct {
	patterns    []piiPattern
	medications []compiledClass
	labels      map[string]bool
}

type compiledClass struct {
	medicationClass
	re *regexp.Regexp
}

// New creates a Sanitizer
func New() *Sanitizer {
	s := &Sanitizer{
		patterns: compilePatterns(),
		labels:   map[string]bool{GenericMedication: true},
	}
	for _, mc := range medicationClasses {
		s.medications = append(s.medications, compiledClass{
			medicationClass: mc,
			re:              regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(mc.name) + `\b`),
		})
		s.labels[mc.category] = true
	}
	return s
}

// Sanitize returns a sanitized copy of the payload. The input is not modified.
func (s *Sanitizer) Sanitize(p Payload, opts Options) Payload {
	out := Payload{
		ExtractedText: s.SanitizeText(p.ExtractedText),
		Text:          s.SanitizeText(p.Text),
	}

	if p.Profile != nil {
		out.Profile = s.sanitizeProfile(*p.Profile, opts)
	}
	if p.Medications != nil {
		out.Medications = s.SanitizeMedications(p.Medications)
	}
	if p.MedicalInsights != nil {
		out.MedicalInsights = s.SanitizeSummary(p.MedicalInsights)
	}
	if p.Aggregates != nil {
		out.Aggregates = make(map[string]float64, len(p.Aggregates))
		for k, v := range p.Aggregates {
			out.Aggregates[k] = RoundHalf(v)
		}
	}

	return out
}

// SanitizeMedicalData sanitizes with the default options
func (s *Sanitizer) SanitizeMedicalData(p Payload) Payload {
	return s.Sanitize(p, DefaultOptions())
}

// SanitizeText replaces every PII match with its redaction token, applying
// patterns in their fixed order
func (s *Sanitizer) SanitizeText(text string) string {
	if text == "" {
		return text
	}
	for _, p := range s.patterns {
		text = p.re.ReplaceAllString(text, p.token)
	}
	return text
}

// Detect counts PII matches per kind without modifying the text. Counting
// runs on progressively redacted text so one span is never counted twice.
func (s *Sanitizer) Detect(text string) map[string]int {
	found := make(map[string]int)
	for _, p := range s.patterns {
		if n := len(p.re.FindAllStringIndex(text, -1)); n > 0 {
			found[p.kind] = n
			text = p.re.ReplaceAllString(text, p.token)
		}
	}
	return found
}

// MedicationCategory maps a drug name to its class label
func (s *Sanitizer) MedicationCategory(name string) string {
	name = strings.TrimSpace(name)
	if s.labels[strings.ToLower(name)] {
		return strings.ToLower(name)
	}
	for _, mc := range s.medications {
		if mc.re.MatchString(name) {
			return mc.category
		}
	}
	return GenericMedication
}

// SanitizeMedications replaces drug names with class labels and drops the
// owning user id
func (s *Sanitizer) SanitizeMedications(meds []models.Medication) []models.Medication {
	out := make([]models.Medication, len(meds))
	for i, m := range meds {
		m.UserID = ""
		m.MedName = s.MedicationCategory(m.MedName)
		m.Dosage = s.SanitizeText(m.Dosage)
		m.Schedule = s.SanitizeText(m.Schedule)
		out[i] = m
	}
	return out
}

// SanitizeSummary redacts PII and drug names in every insight string
func (s *Sanitizer) SanitizeSummary(in *models.MedicalSummary) *models.MedicalSummary {
	if in == nil {
		return nil
	}
	return &models.MedicalSummary{
		Conditions:          s.sanitizeAll(in.Conditions),
		MedicationsSummary:  s.generalizeMedications(s.SanitizeText(in.MedicationsSummary)),
		RiskFactors:         s.sanitizeAll(in.RiskFactors),
		TherapeuticNotes:    s.sanitizeAll(in.TherapeuticNotes),
		InteractionWarnings: s.sanitizeAll(in.InteractionWarnings),
	}
}

func (s *Sanitizer) sanitizeAll(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = s.generalizeMedications(s.SanitizeText(item))
	}
	return out
}

func (s *Sanitizer) generalizeMedications(text string) string {
	for _, mc := range s.medications {
		text = mc.re.ReplaceAllString(text, mc.category)
	}
	return text
}

func (s *Sanitizer) sanitizeProfile(p models.UserProfile, opts Options) *models.UserProfile {
	p.ID = ""
	p.FirstName = reduceName(p.FirstName, opts)
	if p.Email != "" {
		p.Email = "[EMAIL_REDACTED]"
	}
	if p.DateOfBirth != "" {
		p.DateOfBirth = "[DOB_REDACTED]"
	}
	p.AIMedicalSummary = s.SanitizeSummary(p.AIMedicalSummary)
	return &p
}

func reduceName(name string, opts Options) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if !opts.PreserveTherapeuticContext {
		return "User"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + "."
}

// RoundHalf rounds to the nearest 0.5
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
