package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/guardian/internal/ai"
	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/sanitizer"
)

const insightWindowDays = 30

const insightsPrompt = `You summarise de-identified mental health tracking data for a care companion.
Respond with a single JSON object with exactly these fields:
{"conditions": [string], "medications_summary": string, "risk_factors": [string],
 "therapeutic_notes": [string], "interaction_warnings": [string]}
Refer to medications only by the class names you are given. Do not include names, dates or identifiers.`

// Insights is the stored outcome of GenerateInsights
type Insights struct {
	UserID      string                 `json:"userId"`
	Summary     *models.MedicalSummary `json:"summary"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// GenerateInsights summarises the user's profile, medications and recent mood
// with the model and stores the sanitized summary on the profile
func (s *Service) GenerateInsights(ctx context.Context, userID string) (*Insights, error) {
	ctx, span := otel.Tracer("guardian").Start(ctx, "guardian.generate_insights")
	defer span.End()

	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperr.Newf(apperr.NotFound, "profile %s not found", userID)
	}

	now := s.now()
	moods, err := s.store.ListMoodEntries(ctx, userID, now.AddDate(0, 0, -insightWindowDays))
	if err != nil {
		return nil, err
	}
	meds, err := s.store.ListActiveMedications(ctx, userID)
	if err != nil {
		return nil, err
	}

	// the previous summary is regenerated rather than fed back in
	current := *profile
	current.AIMedicalSummary = nil

	payload := s.sanitizer.SanitizeMedicalData(sanitizer.Payload{
		Profile:     &current,
		Medications: meds,
		Aggregates:  moodAggregates(moods),
	})
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insight payload: %w", err)
	}

	var summary models.MedicalSummary
	err = s.ai.CompleteJSON(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: insightsPrompt},
		{Role: ai.RoleUser, Content: string(payloadJSON)},
	}, &summary)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insight generation failed")
		return nil, err
	}

	clean := normalizeSummary(s.sanitizer.SanitizeSummary(&summary))
	if err := s.store.UpdateProfileInsights(ctx, userID, clean, now); err != nil {
		return nil, err
	}

	s.logger.Info("insights generated",
		"user_id", userID,
		"conditions", len(clean.Conditions),
		"risk_factors", len(clean.RiskFactors),
		"mood_entries", len(moods),
	)

	return &Insights{UserID: userID, Summary: clean, GeneratedAt: now}, nil
}

func normalizeSummary(m *models.MedicalSummary) *models.MedicalSummary {
	if m.Conditions == nil {
		m.Conditions = []string{}
	}
	if m.RiskFactors == nil {
		m.RiskFactors = []string{}
	}
	if m.TherapeuticNotes == nil {
		m.TherapeuticNotes = []string{}
	}
	if m.InteractionWarnings == nil {
		m.InteractionWarnings = []string{}
	}
	return m
}
