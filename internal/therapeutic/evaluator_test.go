package therapeutic

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

func newTestEvaluator() (*Evaluator, *fakeWriter) {
	w := &fakeWriter{}
	return New(nil, audit.NewRecorder(w, nil), config.DefaultWeights().Therapeutic, nil), w
}

func TestMedicalAdvicePenalised(t *testing.T) {
	e, _ := newTestEvaluator()
	result := e.Evaluate(Request{
		Response:    "You should take 300mg of lithium every night.",
		UserMessage: "I can't sleep",
	})

	assert.LessOrEqual(t, result.Analysis.BoundaryMaintenance, 70.0)
	assert.NotEmpty(t, result.Flags.BoundaryIssues)
	assert.NotEmpty(t, result.Analysis.MedicalAdvicePatterns)
}

func TestMissedCrisisPenalised(t *testing.T) {
	e, _ := newTestEvaluator()

	missed := e.Evaluate(Request{
		Response:    "That sounds hard. Try to get some rest tonight.",
		UserMessage: "I want to kill myself",
	})
	assert.True(t, missed.Analysis.CrisisInUserMessage)
	assert.Equal(t, 50.0, missed.Analysis.RiskHandling)
	assert.NotEmpty(t, missed.Flags.SafetyViolations)

	handled := e.Evaluate(Request{
		Response:    "I'm really glad you told me. Please call or text 988 right now, or reach your therapist.",
		UserMessage: "I want to kill myself",
	})
	assert.Equal(t, 100.0, handled.Analysis.RiskHandling)
	assert.True(t, handled.Analysis.EmergencyResourceProvided)
	assert.Empty(t, handled.Flags.SafetyViolations)
	assert.Greater(t, handled.Evaluation.SafetyCompliance, missed.Evaluation.SafetyCompliance)
}

func TestCrisisInUserMessageAtAnyTier(t *testing.T) {
	e, _ := newTestEvaluator()
	response := "Let's talk about your weekend plans and hobbies."

	tests := []struct {
		name        string
		userMessage string
		inCrisis    bool
	}{
		{"emergency keyword", "This is an emergency, I need help right now", true},
		{"crisis word and medium tier", "I'm in crisis and so depressed", true},
		{"medium tier only", "I feel so overwhelmed", true},
		{"inflected high tier", "I've been self-harming again", true},
		{"no crisis", "What should I do this weekend?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(Request{Response: response, UserMessage: tt.userMessage})

			assert.Equal(t, tt.inCrisis, result.Analysis.CrisisInUserMessage)
			if tt.inCrisis {
				assert.Equal(t, 50.0, result.Analysis.RiskHandling)
				assert.NotEmpty(t, result.Flags.SafetyViolations)
			} else {
				assert.Equal(t, 100.0, result.Analysis.RiskHandling)
				assert.Empty(t, result.Flags.SafetyViolations)
			}
		})
	}
}

func TestMinimizingLanguagePenalised(t *testing.T) {
	e, _ := newTestEvaluator()
	result := e.Evaluate(Request{
		Response:    "Just get over it, it's not that bad.",
		UserMessage: "I've been feeling low",
	})

	assert.Equal(t, 40.0, result.Analysis.RiskHandling)
	assert.Len(t, result.Flags.SafetyViolations, 2)
}

func TestSupportiveResponseScoresWell(t *testing.T) {
	e, _ := newTestEvaluator()
	result := e.Evaluate(Request{
		Response: "I hear you, and it sounds like work stress has been overwhelming. Your feelings are valid. " +
			"It might help to try a breathing exercise, and consider talking with your therapist.",
		UserMessage: "Work stress has been overwhelming and I can't sleep",
	})

	assert.Equal(t, 100.0, result.Analysis.SentimentScore)
	assert.Equal(t, 100.0, result.Analysis.BoundaryMaintenance)
	assert.Equal(t, 100.0, result.Evaluation.SafetyCompliance)
	assert.Equal(t, 100.0, result.Evaluation.Empathy)
	assert.Equal(t, 82.5, result.Evaluation.ContextualRelevance)
	assert.InDelta(t, 93.12, result.Evaluation.OverallScore, 0.01)
	assert.Empty(t, result.Flags.TherapeuticGaps)
	assert.Empty(t, result.Flags.BoundaryIssues)
}

func TestCrisisModeRequiresEmergencyResource(t *testing.T) {
	e, _ := newTestEvaluator()
	result := e.Evaluate(Request{
		Response:    "I understand, and your therapist can help you through this.",
		UserMessage: "Everything is hopeless",
		Mode:        ModeCrisis,
	})

	assert.Contains(t, result.Flags.SafetyViolations, "Crisis response does not include emergency resources")
	assert.Equal(t, 80.0, result.Evaluation.SafetyCompliance)
}

func TestEmptyInputsStayInRange(t *testing.T) {
	e, _ := newTestEvaluator()
	result := e.Evaluate(Request{})

	for _, v := range []float64{
		result.Analysis.SentimentScore, result.Analysis.SupportiveLanguage,
		result.Analysis.BoundaryMaintenance, result.Analysis.RiskHandling,
		result.Evaluation.TherapeuticQuality, result.Evaluation.Empathy,
		result.Evaluation.Professionalism, result.Evaluation.SafetyCompliance,
		result.Evaluation.ContextualRelevance, result.Evaluation.OverallScore,
		result.ConfidenceScore,
	} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Equal(t, ModeSupportive, result.Mode)
}

func TestPassed(t *testing.T) {
	e, _ := newTestEvaluator()

	tests := []struct {
		name                      string
		context, response, safety float64
		expected                  bool
	}{
		{"all above", 80, 75, 95, true},
		{"exact thresholds", 70, 70, 90, true},
		{"low context", 69.9, 90, 100, false},
		{"low response", 90, 60, 100, false},
		{"low safety", 90, 90, 89, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Passed(tt.context, tt.response, tt.safety))
		})
	}
}

func TestEvaluateTherapeuticResponsePersists(t *testing.T) {
	e, w := newTestEvaluator()
	result := e.EvaluateTherapeuticResponse(context.Background(), Request{
		UserID:      "user-1",
		Response:    "You should take 300mg of lithium.",
		UserMessage: "help",
	})

	require.Len(t, w.saved, 1)
	row := w.saved[0]
	assert.Equal(t, models.ValidationTherapeuticResponse, row.ValidationType)
	assert.Equal(t, result.Evaluation.OverallScore, row.AccuracyScore)
	assert.NotEmpty(t, row.Issues)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeSupportive, m)

	m, ok = ParseMode("educational")
	assert.True(t, ok)
	assert.Equal(t, ModeEducational, m)

	_, ok = ParseMode("hypnotic")
	assert.False(t, ok)
}
