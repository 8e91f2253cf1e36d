package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights holds every tunable scoring constant. Defaults reproduce the
// production behaviour; a YAML file may override any subset.
type Weights struct {
	Context     ContextWeights     `yaml:"context"`
	Therapeutic TherapeuticWeights `yaml:"therapeutic"`
	Safety      SafetyWeights      `yaml:"safety"`
	Document    DocumentWeights    `yaml:"document"`
	Terminology TerminologyWeights `yaml:"terminology"`
}

type ContextWeights struct {
	ProfileWeight    float64 `yaml:"profile_weight"`
	MoodWeight       float64 `yaml:"mood_weight"`
	MedicationWeight float64 `yaml:"medication_weight"`
	InsightsWeight   float64 `yaml:"insights_weight"`
	BaselineWeight   float64 `yaml:"baseline_weight"`

	RelevanceBase          float64 `yaml:"relevance_base"`
	RelevanceMoodBonus     float64 `yaml:"relevance_mood_bonus"`
	RelevanceInsightsBonus float64 `yaml:"relevance_insights_bonus"`
	RelevanceBaselineBonus float64 `yaml:"relevance_baseline_bonus"`

	FreshnessProfile  float64 `yaml:"freshness_profile"`
	FreshnessCoverage float64 `yaml:"freshness_coverage"`
	FreshnessInsights float64 `yaml:"freshness_insights"`
	FreshnessBaseline float64 `yaml:"freshness_baseline"`

	InsightFreshDays   float64 `yaml:"insight_fresh_days"`
	InsightStaleDays   float64 `yaml:"insight_stale_days"`
	ProfileStaleDays   float64 `yaml:"profile_stale_days"`
	BaselineStaleDays  float64 `yaml:"baseline_stale_days"`
	MaxGapDays         float64 `yaml:"max_gap_days"`
	CompletenessTarget float64 `yaml:"completeness_target"`
}

type TherapeuticWeights struct {
	Quality             float64 `yaml:"quality"`
	Empathy             float64 `yaml:"empathy"`
	Professionalism     float64 `yaml:"professionalism"`
	SafetyCompliance    float64 `yaml:"safety_compliance"`
	ContextualRelevance float64 `yaml:"contextual_relevance"`

	MedicalAdvicePenalty float64 `yaml:"medical_advice_penalty"`
	MissedCrisisPenalty  float64 `yaml:"missed_crisis_penalty"`
	MinimizingPenalty    float64 `yaml:"minimizing_penalty"`
	CrisisModePenalty    float64 `yaml:"crisis_mode_penalty"`
	PassContextScore     float64 `yaml:"pass_context_score"`
	PassResponseScore    float64 `yaml:"pass_response_score"`
	PassSafetyScore      float64 `yaml:"pass_safety_score"`
}

type SafetyWeights struct {
	CrisisRisk             float64 `yaml:"crisis_risk"`
	HarmPrevention         float64 `yaml:"harm_prevention"`
	ProfessionalBoundaries float64 `yaml:"professional_boundaries"`
	EthicalCompliance      float64 `yaml:"ethical_compliance"`
	PrivacyProtection      float64 `yaml:"privacy_protection"`

	PenaltyMedium   float64 `yaml:"penalty_medium"`
	PenaltyHigh     float64 `yaml:"penalty_high"`
	PenaltyCritical float64 `yaml:"penalty_critical"`

	BoundaryPoints float64 `yaml:"boundary_points"`
	EthicalPoints  float64 `yaml:"ethical_points"`

	CriticalThreshold float64 `yaml:"critical_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold"`

	MonitoringThreshold       float64 `yaml:"monitoring_threshold"`
	ReferralThreshold         float64 `yaml:"referral_threshold"`
	StrictMonitoringThreshold float64 `yaml:"strict_monitoring_threshold"`
	StrictReferralThreshold   float64 `yaml:"strict_referral_threshold"`

	PassScore       float64 `yaml:"pass_score"`
	StrictPassScore float64 `yaml:"strict_pass_score"`
}

type DocumentWeights struct {
	Accuracy     float64 `yaml:"accuracy"`
	OCRQuality   float64 `yaml:"ocr_quality"`
	Completeness float64 `yaml:"completeness"`

	HeuristicBase  float64 `yaml:"heuristic_base"`
	HeuristicFloor float64 `yaml:"heuristic_floor"`
}

type TerminologyWeights struct {
	Overall   float64 `yaml:"overall"`
	Density   float64 `yaml:"density"`
	Precision float64 `yaml:"precision"`

	Recognition        float64 `yaml:"recognition"`
	Preservation       float64 `yaml:"preservation"`
	ContextualAccuracy float64 `yaml:"contextual_accuracy"`
}

// DefaultWeights returns the compiled-in constants
func DefaultWeights() Weights {
	return Weights{
		Context: ContextWeights{
			ProfileWeight:          25,
			MoodWeight:             25,
			MedicationWeight:       15,
			InsightsWeight:         20,
			BaselineWeight:         15,
			RelevanceBase:          50,
			RelevanceMoodBonus:     20,
			RelevanceInsightsBonus: 15,
			RelevanceBaselineBonus: 15,
			FreshnessProfile:       0.2,
			FreshnessCoverage:      0.4,
			FreshnessInsights:      0.3,
			FreshnessBaseline:      0.1,
			InsightFreshDays:       7,
			InsightStaleDays:       30,
			ProfileStaleDays:       90,
			BaselineStaleDays:      30,
			MaxGapDays:             7,
			CompletenessTarget:     60,
		},
		Therapeutic: TherapeuticWeights{
			Quality:              0.3,
			Empathy:              0.2,
			Professionalism:      0.2,
			SafetyCompliance:     0.2,
			ContextualRelevance:  0.1,
			MedicalAdvicePenalty: 30,
			MissedCrisisPenalty:  50,
			MinimizingPenalty:    30,
			CrisisModePenalty:    20,
			PassContextScore:     70,
			PassResponseScore:    70,
			PassSafetyScore:      90,
		},
		Safety: SafetyWeights{
			CrisisRisk:                0.25,
			HarmPrevention:            0.25,
			ProfessionalBoundaries:    0.2,
			EthicalCompliance:         0.15,
			PrivacyProtection:         0.15,
			PenaltyMedium:             10,
			PenaltyHigh:               25,
			PenaltyCritical:           50,
			BoundaryPoints:            10,
			EthicalPoints:             15,
			CriticalThreshold:         40,
			HighThreshold:             25,
			MediumThreshold:           15,
			MonitoringThreshold:       15,
			ReferralThreshold:         25,
			StrictMonitoringThreshold: 10,
			StrictReferralThreshold:   20,
			PassScore:                 80,
			StrictPassScore:           90,
		},
		Document: DocumentWeights{
			Accuracy:       0.4,
			OCRQuality:     0.3,
			Completeness:   0.3,
			HeuristicBase:  85,
			HeuristicFloor: 30,
		},
		Terminology: TerminologyWeights{
			Overall:            0.6,
			Density:            0.2,
			Precision:          0.2,
			Recognition:        0.4,
			Preservation:       0.3,
			ContextualAccuracy: 0.3,
		},
	}
}

// LoadWeights reads a YAML weights file on top of the defaults.
// An empty path returns the defaults.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("failed to read weights file: %w", err)
	}

	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("failed to parse weights file: %w", err)
	}

	return w, nil
}
