// Package guardian runs the AI chat and insight flows, wrapping every model
// call with context scoring, sanitization and response validation.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/guardian/internal/ai"
	"github.com/zombar/guardian/internal/contextquality"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/safety"
	"github.com/zombar/guardian/internal/sanitizer"
	"github.com/zombar/guardian/internal/therapeutic"
)

// maxHistoryTurns bounds how much of the conversation is replayed to the model
const maxHistoryTurns = 10

// SafeResponse replaces an AI reply that failed safety checks
const SafeResponse = "I'm really glad you reached out, and I want to make sure you get the right support. " +
	"I'm not able to help with this safely here. If you are in immediate danger or thinking about harming yourself, " +
	"please call or text 988 (Suicide & Crisis Lifeline), text HOME to 741741 (Crisis Text Line), or call 911. " +
	"Talking with a mental health professional or someone you trust can also help."

// Completer is the AI model chain
type Completer interface {
	Complete(ctx context.Context, messages []ai.Message) (string, error)
	CompleteJSON(ctx context.Context, messages []ai.Message, v interface{}) error
}

// ProfileStore reads the data behind insight generation and stores the result
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListMoodEntries(ctx context.Context, userID string, since time.Time) ([]models.MoodEntry, error)
	ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error)
	UpdateProfileInsights(ctx context.Context, userID string, summary *models.MedicalSummary, generatedAt time.Time) error
}

// Service composes the validators around the AI client
type Service struct {
	contexts  *contextquality.Analyzer
	evaluator *therapeutic.Evaluator
	safety    *safety.Validator
	sanitizer *sanitizer.Sanitizer
	ai        Completer
	store     ProfileStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service
func New(contexts *contextquality.Analyzer, evaluator *therapeutic.Evaluator, validator *safety.Validator,
	s *sanitizer.Sanitizer, completer Completer, store ProfileStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if s == nil {
		s = sanitizer.New()
	}
	return &Service{
		contexts:  contexts,
		evaluator: evaluator,
		safety:    validator,
		sanitizer: s,
		ai:        completer,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// ChatRequest is one user turn
type ChatRequest struct {
	UserID  string
	Message string
	History []models.ChatTurn
	Mode    therapeutic.Mode
}

// ChatResult is the reply plus every validation that gated it
type ChatResult struct {
	Response    string                 `json:"response"`
	Replaced    bool                   `json:"replaced"`
	Passed      bool                   `json:"passed"`
	Context     *contextquality.Result `json:"contextAnalysis"`
	Therapeutic *therapeutic.Result    `json:"therapeuticEvaluation"`
	Safety      *safety.Result         `json:"safetyValidation"`
}

// Chat answers a user message. The reply is swapped for SafeResponse when the
// safety risk is high or critical or the response oversteps professional
// boundaries.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx, span := otel.Tracer("guardian").Start(ctx, "guardian.chat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.mode", string(req.Mode)))

	if req.Mode == "" {
		req.Mode = therapeutic.ModeSupportive
	}

	contextResult, err := s.contexts.AnalyzeChatContext(ctx, req.UserID, contextquality.DefaultWindowDays, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context analysis failed")
		return nil, err
	}

	messages, err := s.chatMessages(contextResult.Data, req)
	if err != nil {
		return nil, err
	}

	response, err := s.ai.Complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}

	evaluation := s.evaluator.EvaluateTherapeuticResponse(ctx, therapeutic.Request{
		UserID:              req.UserID,
		Response:            response,
		UserMessage:         req.Message,
		ConversationContext: req.History,
		Mode:                req.Mode,
	})

	level := safety.LevelStandard
	if req.Mode == therapeutic.ModeCrisis {
		level = safety.LevelStrict
	}
	validation := s.safety.PerformSafetyValidation(ctx, safety.Request{
		UserID:      req.UserID,
		Content:     response,
		ContentType: safety.ContentAIResponse,
		Context: safety.Context{
			UserMessage:         req.Message,
			ConversationHistory: req.History,
		},
		Level: level,
	})

	result := &ChatResult{
		Response:    response,
		Context:     contextResult,
		Therapeutic: evaluation,
		Safety:      validation,
		Passed: s.evaluator.Passed(
			contextResult.Scores.Overall,
			evaluation.Evaluation.OverallScore,
			validation.Validation.OverallSafety,
		),
	}

	risk := validation.RiskAssessment.RiskLevel
	if risk == safety.RiskHigh || risk == safety.RiskCritical || len(evaluation.Flags.BoundaryIssues) > 0 {
		result.Response = SafeResponse
		result.Replaced = true
		s.logger.Warn("ai response replaced",
			"user_id", req.UserID,
			"risk_level", risk,
			"boundary_issues", len(evaluation.Flags.BoundaryIssues),
		)
	}

	span.SetAttributes(
		attribute.Bool("chat.passed", result.Passed),
		attribute.Bool("chat.replaced", result.Replaced),
		attribute.String("chat.risk_level", risk),
	)
	return result, nil
}

func (s *Service) chatMessages(data *contextquality.Data, req ChatRequest) ([]ai.Message, error) {
	payload := sanitizer.Payload{}
	if data != nil {
		payload.Profile = data.Profile
		payload.Medications = data.Medications
		payload.Aggregates = moodAggregates(data.MoodEntries)
		if sleep, ok := averageSleep(data.DailySummaries); ok {
			payload.Aggregates["avg_sleep_hours"] = sleep
		}
		if data.Profile != nil {
			payload.MedicalInsights = data.Profile.AIMedicalSummary
		}
	}
	clean := s.sanitizer.SanitizeMedicalData(payload)

	contextJSON, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat context: %w", err)
	}

	messages := []ai.Message{{
		Role:    ai.RoleSystem,
		Content: systemPrompt(req.Mode) + "\n\nDe-identified user context:\n" + string(contextJSON),
	}}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		role := ai.RoleUser
		if turn.Role == ai.RoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: s.sanitizer.SanitizeText(turn.Content)})
	}

	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: s.sanitizer.SanitizeText(req.Message)})
	return messages, nil
}

func systemPrompt(mode therapeutic.Mode) string {
	var b strings.Builder
	b.WriteString("You are Guardian, a supportive mental health companion. ")
	b.WriteString("You are not a clinician: never diagnose, never recommend starting, stopping or changing medication, ")
	b.WriteString("and suggest speaking with a mental health professional when appropriate. ")
	b.WriteString("Keep replies warm, brief and grounded in what the user has shared.")

	switch mode {
	case therapeutic.ModeCrisis:
		b.WriteString(" The user may be in crisis. Acknowledge their feelings, ask about their immediate safety, ")
		b.WriteString("and always include the 988 Suicide & Crisis Lifeline and emergency services (911).")
	case therapeutic.ModeEducational:
		b.WriteString(" Explain concepts in plain language and note that general information is not personal medical advice.")
	}
	return b.String()
}

// moodAggregates averages the mood check-ins. Raw entries never reach the model.
func moodAggregates(entries []models.MoodEntry) map[string]float64 {
	out := map[string]float64{"mood_entries": float64(len(entries))}
	if len(entries) == 0 {
		return out
	}

	var mood, energy, stress, anxiety float64
	for _, e := range entries {
		mood += e.Mood
		energy += e.Energy
		stress += e.Stress
		anxiety += e.Anxiety
	}
	n := float64(len(entries))
	out["avg_mood"] = mood / n
	out["avg_energy"] = energy / n
	out["avg_stress"] = stress / n
	out["avg_anxiety"] = anxiety / n
	return out
}

func averageSleep(summaries []models.DailySummary) (float64, bool) {
	var total float64
	var n int
	for _, s := range summaries {
		if s.SleepHours > 0 {
			total += s.SleepHours
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}
