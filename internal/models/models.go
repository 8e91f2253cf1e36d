package models

import (
	"encoding/json"
	"time"
)

// Validation types written to validation_results.validation_type
const (
	ValidationChatContext         = "chat_context"
	ValidationTherapeuticResponse = "therapeutic_response"
	ValidationSafety              = "safety_validation"
	ValidationDocumentAccuracy    = "document_accuracy"
	ValidationMedicalTerminology  = "medical_terminology"
)

// UserProfile is a user's profile row plus the AI-generated medical summary
type UserProfile struct {
	ID                    string          `json:"id"`
	FirstName             string          `json:"first_name"`
	Email                 string          `json:"email,omitempty"`
	Timezone              string          `json:"timezone,omitempty"`
	DateOfBirth           string          `json:"date_of_birth,omitempty"`
	AIMedicalSummary      *MedicalSummary `json:"ai_medical_summary,omitempty"`
	AIInsightsGeneratedAt *time.Time      `json:"ai_insights_generated_at,omitempty"`
	UpdatedAt             *time.Time      `json:"updated_at,omitempty"`
}

// MedicalSummary holds structured insights produced by insight generation
type MedicalSummary struct {
	Conditions          []string `json:"conditions"`
	MedicationsSummary  string   `json:"medications_summary"`
	RiskFactors         []string `json:"risk_factors"`
	TherapeuticNotes    []string `json:"therapeutic_notes"`
	InteractionWarnings []string `json:"interaction_warnings"`
}

// MoodEntry is a single logged mood check-in (values 1-10)
type MoodEntry struct {
	UserID    string    `json:"user_id"`
	Mood      float64   `json:"mood"`
	Energy    float64   `json:"energy"`
	Stress    float64   `json:"stress"`
	Anxiety   float64   `json:"anxiety"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Medication is a prescribed medication; EndDate nil means active
type Medication struct {
	UserID    string     `json:"user_id"`
	MedName   string     `json:"med_name"`
	Dosage    string     `json:"dosage"`
	Schedule  string     `json:"schedule"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// DailySummary is produced by the external aggregation job
type DailySummary struct {
	UserID     string    `json:"user_id"`
	Date       time.Time `json:"date"`
	SleepHours float64   `json:"sleep_hours"`
	Steps      int       `json:"steps"`
	RiskLevel  string    `json:"risk_level"`
}

// BaselineMetric is a per-metric personal mean/std
type BaselineMetric struct {
	UserID     string    `json:"user_id"`
	MetricName string    `json:"metric_name"`
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MedicalDocument is an uploaded document and its OCR text
type MedicalDocument struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FilePath      string    `json:"file_path"`
	DocType       string    `json:"doc_type"`
	ExtractedText string    `json:"extracted_text"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// ValidationResult is one append-only audit row
type ValidationResult struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	DocumentID      string          `json:"document_id,omitempty"`
	ValidationType  string          `json:"validation_type"`
	AccuracyScore   float64         `json:"accuracy_score"`
	ConfidenceScore float64         `json:"confidence_score"`
	ProcessingTime  int64           `json:"processing_time"` // milliseconds
	Metrics         json.RawMessage `json:"metrics"`
	Issues          []string        `json:"issues"`
	Recommendations []string        `json:"recommendations"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CriticalSafetyEvent is written by the safety validator on escalation
type CriticalSafetyEvent struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	EventType         string    `json:"event_type"`
	RiskLevel         string    `json:"risk_level"`
	ImmediateAction   bool      `json:"immediate_action"`
	EmergencyResponse bool      `json:"emergency_response"`
	DetectedIssues    []string  `json:"detected_issues"`
	ActionItems       []string  `json:"action_items"`
	ContentType       string    `json:"content_type"`
	CreatedAt         time.Time `json:"created_at"`
}

// ChatTurn is one message of a conversation
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
