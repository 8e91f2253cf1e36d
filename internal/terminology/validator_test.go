package terminology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

type fakeWriter struct {
	saved []*models.ValidationResult
}

func (f *fakeWriter) SaveValidationResult(_ context.Context, r *models.ValidationResult) error {
	f.saved = append(f.saved, r)
	return nil
}

func newTestValidator() (*Validator, *fakeWriter) {
	w := &fakeWriter{}
	return New(audit.NewRecorder(w, nil), config.DefaultWeights().Terminology, nil), w
}

func TestWellFormedClinicalNote(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("Patient diagnosed with major depressive disorder. Prescribed sertraline 50 mg daily. Follow up with psychiatrist.", LevelStandard)

	assert.Equal(t, []string{"major depressive disorder"}, r.Categorized[CategoryConditions])
	assert.Equal(t, []string{"sertraline"}, r.Categorized[CategoryMedications])
	assert.Equal(t, []string{"mg"}, r.Categorized[CategoryMeasurements])
	assert.Equal(t, []string{"psychiatrist"}, r.Categorized[CategorySpecialties])
	assert.Equal(t, 4, r.Metrics.ValidTerms)
	assert.Empty(t, r.MissingElements)

	assert.Equal(t, 100.0, r.Scores.Overall)
	assert.Equal(t, 100.0, r.Metrics.Precision)
	assert.Equal(t, 100.0, r.Metrics.Recall)
	assert.Equal(t, 100.0, r.Metrics.F1)
	assert.Equal(t, 100.0, r.ConfidenceScore)
	assert.Empty(t, r.Issues)
}

func TestOCRCorruptionsReduceScores(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("The patlent takes lithiurn for bipolar disorder.", LevelStandard)

	assert.Equal(t, 1, r.Metrics.ValidTerms)
	assert.Equal(t, 2, r.Metrics.InvalidTerms)
	assert.Equal(t, "lithium", r.Corrections["lithiurn"])
	assert.Equal(t, "patient", r.Corrections["patlent"])
	assert.Equal(t, 33.33, r.Scores.Recognition)
	assert.Equal(t, 33.33, r.Scores.Preservation)
	assert.Equal(t, 53.33, r.Scores.Overall)
	assert.Equal(t, 33.33, r.Metrics.Precision)
	assert.Contains(t, r.Issues, `Possible OCR error: "lithiurn" (did you mean "lithium"?)`)
}

func TestIncorrectCoOccurrenceAndStrictLevel(t *testing.T) {
	v, _ := newTestValidator()
	text := "Lithium prescribed for diabetes."

	standard := v.Validate(text, LevelStandard)
	assert.Equal(t, 80.0, standard.Scores.ContextualAccuracy)
	assert.Equal(t, []string{"medication dosage", "medication frequency"}, standard.MissingElements)
	assert.Equal(t, 94.0, standard.Scores.Overall)
	assert.Equal(t, 50.0, standard.Metrics.Recall)
	assert.Contains(t, standard.Issues, "Lithium listed as a diabetes treatment")

	strict := v.Validate(text, LevelStrict)
	assert.Equal(t, 74.0, strict.Scores.Overall)
}

func TestAmbiguousTerms(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("I caught a cold last week", LevelStandard)

	assert.Equal(t, []string{"cold"}, r.AmbiguousFound)
	assert.Equal(t, 0.0, r.Scores.Recognition)
	assert.Equal(t, 95.0, r.Scores.ContextualAccuracy)
	assert.Equal(t, 58.5, r.Scores.Overall)
	assert.Contains(t, r.Issues, "No medical terminology recognized")
}

func TestAbbreviationExpansion(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("Take 1 tab PO BID PRN.", LevelStandard)

	assert.Equal(t, "twice daily", r.Abbreviations["bid"])
	assert.Equal(t, "by mouth", r.Abbreviations["po"])
	assert.Equal(t, "as needed", r.Abbreviations["prn"])
	assert.Contains(t, r.Recommendations, "Expand abbreviations for clarity")
}

func TestAbbreviationsRecognizedWithoutExpansion(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("NPO after midnight. Labs STAT. Sig: see chart.", LevelStandard)

	assert.ElementsMatch(t, []string{"npo", "stat", "sig"}, r.Categorized[CategoryAbbreviations])
	assert.Equal(t, "nothing by mouth", r.Abbreviations["npo"])
	assert.Equal(t, "immediately", r.Abbreviations["stat"])
	assert.NotContains(t, r.Abbreviations, "sig")
}

func TestUnitAttachedToNumber(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("Sertraline 300mg", LevelStrict)

	assert.Contains(t, r.Categorized[CategoryMeasurements], "mg")
	assert.Equal(t, []string{"medication frequency"}, r.MissingElements)
}

func TestEmptyText(t *testing.T) {
	v, _ := newTestValidator()
	r := v.Validate("", "")

	assert.Equal(t, LevelStandard, r.Level)
	assert.Equal(t, 60.0, r.Scores.Overall)
	assert.Equal(t, 36.0, r.ConfidenceScore)
	assert.Zero(t, r.Metrics.Precision)
	assert.Zero(t, r.Metrics.F1)
}

func TestScoresStayInRange(t *testing.T) {
	v, _ := newTestValidator()
	inputs := []string{
		"medicatiom diagnosls prescrlption depresslon anxlety symptorns cold stroke discharge",
		"lithium for diabetes. insulin for anxiety. antibiotics for a virus. sertraline for infection.",
		"\xff\xfe not utf8",
	}
	for _, in := range inputs {
		for _, level := range []Level{LevelStandard, LevelStrict} {
			r := v.Validate(in, level)
			for _, s := range []float64{
				r.Scores.Recognition, r.Scores.Preservation, r.Scores.ContextualAccuracy, r.Scores.Overall,
				r.Metrics.Precision, r.Metrics.Recall, r.Metrics.F1, r.Metrics.TermDensity, r.ConfidenceScore,
			} {
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 100.0)
			}
		}
	}
}

func TestValidateMedicalTerminologyPersists(t *testing.T) {
	v, w := newTestValidator()
	r := v.ValidateMedicalTerminology(context.Background(), "user-1", "doc-9", "sertraline 50 mg daily", LevelStandard)

	require.Len(t, w.saved, 1)
	assert.Equal(t, models.ValidationMedicalTerminology, w.saved[0].ValidationType)
	assert.Equal(t, "doc-9", w.saved[0].DocumentID)
	assert.Equal(t, "doc-9", r.DocumentID)
	assert.Equal(t, r.Scores.Overall, w.saved[0].AccuracyScore)
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("STRICT")
	assert.True(t, ok)
	assert.Equal(t, LevelStrict, l)

	_, ok = ParseLevel("lenient")
	assert.False(t, ok)
}
