// Package therapeutic scores an AI chat response for empathy,
// professionalism, safety and boundary maintenance.
package therapeutic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

// Mode selects the conversational framing the response is judged against
type Mode string

const (
	ModeSupportive  Mode = "supportive"
	ModeCrisis      Mode = "crisis"
	ModeEducational Mode = "educational"
)

// ParseMode maps a request value to a Mode, defaulting to supportive
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeSupportive:
		return ModeSupportive, true
	case ModeCrisis, ModeEducational:
		return Mode(s), true
	}
	return ModeSupportive, false
}

// Request is one response to evaluate
type Request struct {
	UserID              string
	Response            string
	UserMessage         string
	ConversationContext []models.ChatTurn
	Mode                Mode
}

// Analysis holds the lexical measurements of the response
type Analysis struct {
	WordCount                 int      `json:"wordCount"`
	SentimentPolarity         float64  `json:"sentimentPolarity"`
	SentimentScore            float64  `json:"sentimentScore"`
	SupportiveLanguage        float64  `json:"supportiveLanguage"`
	BoundaryMaintenance       float64  `json:"boundaryMaintenance"`
	RiskHandling              float64  `json:"riskHandling"`
	MedicalAdvicePatterns     []string `json:"medicalAdvicePatterns"`
	CrisisInUserMessage       bool     `json:"crisisInUserMessage"`
	EmergencyResourceProvided bool     `json:"emergencyResourceProvided"`
	ProfessionalReferral      bool     `json:"professionalReferral"`
}

// Evaluation holds the weighted therapeutic criteria
type Evaluation struct {
	TherapeuticQuality  float64 `json:"therapeuticQuality"`
	Empathy             float64 `json:"empathy"`
	Professionalism     float64 `json:"professionalism"`
	SafetyCompliance    float64 `json:"safetyCompliance"`
	ContextualRelevance float64 `json:"contextualRelevance"`
	OverallScore        float64 `json:"overallScore"`
}

// Flags are reported independently of the numeric scores
type Flags struct {
	SafetyViolations     []string `json:"safetyViolations"`
	BoundaryIssues       []string `json:"boundaryIssues"`
	ProfessionalConcerns []string `json:"professionalConcerns"`
	TherapeuticGaps      []string `json:"therapeuticGaps"`
}

// Result is returned by EvaluateTherapeuticResponse
type Result struct {
	Mode            Mode       `json:"mode"`
	Analysis        Analysis   `json:"analysis"`
	Evaluation      Evaluation `json:"evaluation"`
	Flags           Flags      `json:"flags"`
	Recommendations []string   `json:"recommendations"`
	ConfidenceScore float64    `json:"confidenceScore"`
	ProcessingTime  int64      `json:"processingTime"`
}

// Evaluator scores responses against the shared vocabulary
type Evaluator struct {
	vocab    *analyzer.Analyzer
	recorder *audit.Recorder
	weights  config.TherapeuticWeights
	now      func() time.Time
}

// New creates an Evaluator
func New(vocab *analyzer.Analyzer, recorder *audit.Recorder, weights config.TherapeuticWeights, logger *slog.Logger) *Evaluator {
	if vocab == nil {
		vocab = analyzer.New()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger)
	}
	return &Evaluator{vocab: vocab, recorder: recorder, weights: weights, now: time.Now}
}

// EvaluateTherapeuticResponse scores the response and records the result
func (e *Evaluator) EvaluateTherapeuticResponse(ctx context.Context, req Request) *Result {
	started := e.now()
	result := e.Evaluate(req)

	row := e.recorder.Record(ctx, audit.Entry{
		UserID:          req.UserID,
		ValidationType:  models.ValidationTherapeuticResponse,
		AccuracyScore:   result.Evaluation.OverallScore,
		ConfidenceScore: result.ConfidenceScore,
		Started:         started,
		Metrics: map[string]interface{}{
			"mode":       result.Mode,
			"analysis":   result.Analysis,
			"evaluation": result.Evaluation,
			"flags":      result.Flags,
		},
		Issues:          result.Flags.all(),
		Recommendations: result.Recommendations,
	})
	result.ProcessingTime = row.ProcessingTime

	return result
}

// Passed applies the hard tri-threshold used by the chat flow
func (e *Evaluator) Passed(contextScore, responseScore, safetyScore float64) bool {
	return contextScore >= e.weights.PassContextScore &&
		responseScore >= e.weights.PassResponseScore &&
		safetyScore >= e.weights.PassSafetyScore
}

// Evaluate scores the response without persisting anything
func (e *Evaluator) Evaluate(req Request) *Result {
	mode, _ := ParseMode(string(req.Mode))
	w := e.weights
	v := e.vocab
	flags := Flags{
		SafetyViolations:     []string{},
		BoundaryIssues:       []string{},
		ProfessionalConcerns: []string{},
		TherapeuticGaps:      []string{},
	}

	words := analyzer.WordCount(req.Response)
	polarity := v.Polarity(req.Response)
	sentimentScore := (polarity + 100) / 2
	supportive := analyzer.Density(v.Count(req.Response, analyzer.CategorySupportive), words)

	advice := v.MedicalAdvice(req.Response)
	boundary := analyzer.Clamp(100 - w.MedicalAdvicePenalty*float64(len(advice)))
	for _, name := range advice {
		flags.BoundaryIssues = append(flags.BoundaryIssues, fmt.Sprintf("Medical advice detected: %s", name))
	}
	for _, t := range v.Find(req.Response, analyzer.CategoryBoundary) {
		flags.BoundaryIssues = append(flags.BoundaryIssues, fmt.Sprintf("Boundary concern: %q", t.Phrase))
	}

	crisisInUser := v.SignalsCrisis(req.UserMessage)
	emergency := v.Contains(req.Response, analyzer.CategoryEmergency)
	referral := v.Contains(req.Response, analyzer.CategoryReferral)

	risk := 100.0
	if crisisInUser && !emergency && !referral {
		risk -= w.MissedCrisisPenalty
		flags.SafetyViolations = append(flags.SafetyViolations,
			"Crisis indicators in the user message were not met with emergency or professional resources")
	}
	for _, t := range v.Find(req.Response, analyzer.CategoryMinimizing) {
		risk -= w.MinimizingPenalty
		flags.SafetyViolations = append(flags.SafetyViolations, fmt.Sprintf("Minimizing language: %q", t.Phrase))
	}
	risk = analyzer.Clamp(risk)

	empathyTerms := v.Find(req.Response, analyzer.CategoryEmpathy)
	empathy := 30 + 20*float64(len(empathyTerms)) + 0.2*supportive
	if polarity > 0 {
		empathy += 10
	}

	professionalTerms := len(v.Find(req.Response, analyzer.CategoryProfessional))
	unprofessional := v.Find(req.Response, analyzer.CategoryUnprofessional)
	register := analyzer.Clamp(70 + 5*float64(professionalTerms) - 15*float64(len(unprofessional)))
	professionalism := 0.6*register + 0.4*boundary
	for _, t := range unprofessional {
		flags.ProfessionalConcerns = append(flags.ProfessionalConcerns, fmt.Sprintf("Unprofessional language: %q", t.Phrase))
	}
	if words > 0 && words < 5 {
		flags.ProfessionalConcerns = append(flags.ProfessionalConcerns, "Response is too brief to be supportive")
	}

	safety := 0.6*risk + 0.4*boundary
	if mode == ModeCrisis && !emergency {
		safety -= w.CrisisModePenalty
		flags.SafetyViolations = append(flags.SafetyViolations, "Crisis response does not include emergency resources")
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "Provide crisis line or emergency service information")
	}

	relevance := e.relevance(req)

	if len(empathyTerms) == 0 {
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "No empathetic acknowledgement of the user's feelings")
	}
	if mode == ModeSupportive && supportive == 0 {
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "Response lacks supportive language")
	}
	if mode == ModeEducational && professionalTerms == 0 {
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "Educational response offers no concrete strategies")
	}
	if polarity < 0 {
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "Response tone is predominantly negative")
	}
	if relevance < 50 {
		flags.TherapeuticGaps = append(flags.TherapeuticGaps, "Response does not address the user's message")
	}

	eval := Evaluation{
		TherapeuticQuality:  round(analyzer.Clamp((supportive + sentimentScore + risk) / 3)),
		Empathy:             round(analyzer.Clamp(empathy)),
		Professionalism:     round(analyzer.Clamp(professionalism)),
		SafetyCompliance:    round(analyzer.Clamp(safety)),
		ContextualRelevance: round(analyzer.Clamp(relevance)),
	}
	eval.OverallScore = round(analyzer.Clamp(
		eval.TherapeuticQuality*w.Quality +
			eval.Empathy*w.Empathy +
			eval.Professionalism*w.Professionalism +
			eval.SafetyCompliance*w.SafetyCompliance +
			eval.ContextualRelevance*w.ContextualRelevance))

	return &Result{
		Mode: mode,
		Analysis: Analysis{
			WordCount:                 words,
			SentimentPolarity:         round(polarity),
			SentimentScore:            round(analyzer.Clamp(sentimentScore)),
			SupportiveLanguage:        round(supportive),
			BoundaryMaintenance:       round(boundary),
			RiskHandling:              round(risk),
			MedicalAdvicePatterns:     nonNil(advice),
			CrisisInUserMessage:       crisisInUser,
			EmergencyResourceProvided: emergency,
			ProfessionalReferral:      referral,
		},
		Evaluation:      eval,
		Flags:           flags,
		Recommendations: recommendations(flags, eval),
		ConfidenceScore: round(analyzer.Clamp(40 + 0.6*math.Min(100, float64(words)))),
	}
}

// relevance is the share of the user's content words the response echoes,
// drawn from the message and the most recent user turns
func (e *Evaluator) relevance(req Request) float64 {
	userText := req.UserMessage
	turns := 0
	for i := len(req.ConversationContext) - 1; i >= 0 && turns < 2; i-- {
		if req.ConversationContext[i].Role == "user" {
			userText += " " + req.ConversationContext[i].Content
			turns++
		}
	}

	userWords := e.vocab.ContentWords(userText)
	if len(userWords) == 0 {
		return 50
	}
	responseWords := e.vocab.ContentWords(req.Response)
	overlap := 0
	for w := range userWords {
		if responseWords[w] {
			overlap++
		}
	}
	return 30 + 70*float64(overlap)/float64(len(userWords))
}

func recommendations(f Flags, eval Evaluation) []string {
	recs := []string{}
	if len(f.SafetyViolations) > 0 {
		recs = append(recs, "Include crisis resources such as 988 or emergency services when risk is present")
	}
	if len(f.BoundaryIssues) > 0 {
		recs = append(recs, "Avoid diagnosing or giving medication instructions; refer to a healthcare provider")
	}
	if len(f.ProfessionalConcerns) > 0 {
		recs = append(recs, "Keep a warm but professional tone")
	}
	if eval.Empathy < 60 {
		recs = append(recs, "Acknowledge and validate the user's feelings")
	}
	if eval.ContextualRelevance < 50 {
		recs = append(recs, "Respond directly to what the user shared")
	}
	return recs
}

func (f Flags) all() []string {
	var out []string
	out = append(out, f.SafetyViolations...)
	out = append(out, f.BoundaryIssues...)
	out = append(out, f.ProfessionalConcerns...)
	out = append(out, f.TherapeuticGaps...)
	return out
}

func round(v float64) float64 { return analyzer.Round(v, 2) }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
