// Package safety classifies content into a risk level and a compliance
// score, and escalates critical findings.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/sanitizer"
)

type ContentType string

const (
	ContentAIResponse    ContentType = "ai_response"
	ContentUserInput     ContentType = "user_input"
	ContentDocument      ContentType = "document"
	ContentSystemMessage ContentType = "system_message"
)

type Level string

const (
	LevelStandard  Level = "standard"
	LevelStrict    Level = "strict"
	LevelEmergency Level = "emergency"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// ValidContentType reports whether s names a known content type
func ValidContentType(s string) bool {
	switch ContentType(s) {
	case ContentAIResponse, ContentUserInput, ContentDocument, ContentSystemMessage:
		return true
	}
	return false
}

// Context carries the conversation around the content
type Context struct {
	UserMessage         string            `json:"userMessage,omitempty"`
	ConversationHistory []models.ChatTurn `json:"conversationHistory,omitempty"`
	DocumentID          string            `json:"documentId,omitempty"`
}

// Request is one piece of content to validate
type Request struct {
	UserID      string
	Content     string
	ContentType ContentType
	Context     Context
	Level       Level
}

// RiskAssessment is the escalation outcome
type RiskAssessment struct {
	RiskLevel            string   `json:"riskLevel"`
	RiskScore            float64  `json:"riskScore"`
	ImmediateAction      bool     `json:"immediateAction"`
	EmergencyResponse    bool     `json:"emergencyResponse"`
	ProfessionalReferral bool     `json:"professionalReferral"`
	MonitoringRequired   bool     `json:"monitoringRequired"`
	CrisisIndicators     []string `json:"crisisIndicators"`
	HarmCategories       []string `json:"harmCategories"`
}

// Validation holds the five compliance sub-scores and their weighted total
type Validation struct {
	CrisisRisk             float64 `json:"crisisRisk"`
	HarmPrevention         float64 `json:"harmPrevention"`
	ProfessionalBoundaries float64 `json:"professionalBoundaries"`
	EthicalCompliance      float64 `json:"ethicalCompliance"`
	PrivacyProtection      float64 `json:"privacyProtection"`
	OverallSafety          float64 `json:"overallSafety"`
	Passed                 bool    `json:"passed"`
}

// Result is returned by PerformSafetyValidation
type Result struct {
	ContentType         ContentType    `json:"contentType"`
	ValidationLevel     Level          `json:"validationLevel"`
	RiskAssessment      RiskAssessment `json:"riskAssessment"`
	Validation          Validation     `json:"validation"`
	Issues              []string       `json:"issues"`
	ActionItems         []string       `json:"actionItems"`
	Recommendations     []string       `json:"recommendations"`
	ConfidenceScore     float64        `json:"confidenceScore"`
	CriticalEventLogged bool           `json:"criticalEventLogged"`
	ProcessingTime      int64          `json:"processingTime"`
}

// EventStore persists critical safety events
type EventStore interface {
	SaveCriticalSafetyEvent(ctx context.Context, event *models.CriticalSafetyEvent) error
}

// Alerter hands a critical event to downstream alerting
type Alerter interface {
	EnqueueSafetyAlert(ctx context.Context, event *models.CriticalSafetyEvent) error
}

// Validator performs safety validation
type Validator struct {
	vocab     *analyzer.Analyzer
	sanitizer *sanitizer.Sanitizer
	recorder  *audit.Recorder
	events    EventStore
	alerter   Alerter
	weights   config.SafetyWeights
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithAlerter enqueues an alert for every critical event
func WithAlerter(a Alerter) Option {
	return func(v *Validator) { v.alerter = a }
}

// New creates a Validator. events may be nil, in which case escalations are
// only logged.
func New(vocab *analyzer.Analyzer, s *sanitizer.Sanitizer, recorder *audit.Recorder, events EventStore,
	weights config.SafetyWeights, logger *slog.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if vocab == nil {
		vocab = analyzer.New()
	}
	if s == nil {
		s = sanitizer.New()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger)
	}
	v := &Validator{
		vocab:     vocab,
		sanitizer: s,
		recorder:  recorder,
		events:    events,
		weights:   weights,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// PerformSafetyValidation scores the content, records the result and
// escalates when immediate action is needed. Persistence failures never
// fail the call.
func (v *Validator) PerformSafetyValidation(ctx context.Context, req Request) *Result {
	started := v.now()
	result := v.Assess(req)

	row := v.recorder.Record(ctx, audit.Entry{
		UserID:          req.UserID,
		DocumentID:      req.Context.DocumentID,
		ValidationType:  models.ValidationSafety,
		AccuracyScore:   result.Validation.OverallSafety,
		ConfidenceScore: result.ConfidenceScore,
		Started:         started,
		Metrics: map[string]interface{}{
			"contentType":     result.ContentType,
			"validationLevel": result.ValidationLevel,
			"riskAssessment":  result.RiskAssessment,
			"validation":      result.Validation,
		},
		Issues:          result.Issues,
		Recommendations: result.Recommendations,
	})
	result.ProcessingTime = row.ProcessingTime

	if result.RiskAssessment.RiskLevel == RiskCritical || result.RiskAssessment.ImmediateAction {
		result.CriticalEventLogged = v.escalate(ctx, req, result)
	}

	return result
}

func (v *Validator) escalate(ctx context.Context, req Request, result *Result) bool {
	ra := result.RiskAssessment
	event := &models.CriticalSafetyEvent{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		EventType:         eventType(ra),
		RiskLevel:         ra.RiskLevel,
		ImmediateAction:   ra.ImmediateAction,
		EmergencyResponse: ra.EmergencyResponse,
		DetectedIssues:    result.Issues,
		ActionItems:       result.ActionItems,
		ContentType:       string(result.ContentType),
		CreatedAt:         v.now().UTC(),
	}

	metrics.CriticalSafetyEvents.WithLabelValues(ra.RiskLevel).Inc()
	v.logger.Warn("critical safety event",
		"user_id", req.UserID,
		"event_type", event.EventType,
		"risk_level", ra.RiskLevel,
		"content_type", event.ContentType,
	)

	logged := false
	if v.events != nil {
		if err := v.events.SaveCriticalSafetyEvent(ctx, event); err != nil {
			metrics.PersistenceFailures.WithLabelValues("critical_safety_events").Inc()
			v.logger.Error("failed to store critical safety event", "user_id", req.UserID, "error", err)
		} else {
			logged = true
		}
	}

	if v.alerter != nil {
		if err := v.alerter.EnqueueSafetyAlert(ctx, event); err != nil {
			v.logger.Error("failed to enqueue safety alert", "event_id", event.ID, "error", err)
		}
	}

	return logged
}

func eventType(ra RiskAssessment) string {
	switch {
	case len(ra.CrisisIndicators) > 0 && ra.EmergencyResponse:
		return "crisis_detected"
	case len(ra.HarmCategories) > 0:
		return "harm_risk"
	case ra.ImmediateAction:
		return "ethical_violation"
	default:
		return "safety_escalation"
	}
}

// Assess scores the content without persisting anything
func (v *Validator) Assess(req Request) *Result {
	w := v.weights
	level := req.Level
	if level == "" {
		level = LevelStandard
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = ContentUserInput
	}

	ra := RiskAssessment{CrisisIndicators: []string{}, HarmCategories: []string{}}
	issues := []string{}
	scanned := req.Content + "\n" + req.Context.UserMessage

	// Crisis tiers count once per tier
	var crisisPoints float64
	for _, sev := range []analyzer.Severity{analyzer.SeverityCritical, analyzer.SeverityHigh, analyzer.SeverityMedium} {
		found := v.vocab.FindSeverity(scanned, analyzer.CategoryCrisis, sev)
		if len(found) == 0 {
			continue
		}
		crisisPoints += found[0].Weight
		for _, t := range found {
			ra.CrisisIndicators = append(ra.CrisisIndicators, t.Phrase)
		}
		issues = append(issues, fmt.Sprintf("%s crisis language detected: %s", titled(sev.String()), quoteTerms(found)))

		switch sev {
		case analyzer.SeverityCritical:
			ra.ImmediateAction = true
			ra.EmergencyResponse = true
		case analyzer.SeverityHigh:
			ra.ProfessionalReferral = true
			ra.MonitoringRequired = true
		case analyzer.SeverityMedium:
			ra.MonitoringRequired = true
		}
	}

	// Harm categories count once per category
	var harmPoints float64
	for _, cat := range []analyzer.Category{analyzer.CategoryViolence, analyzer.CategorySelfHarm, analyzer.CategorySubstance} {
		found := v.vocab.Find(scanned, cat)
		if len(found) == 0 {
			continue
		}
		harmPoints += found[0].Weight
		ra.HarmCategories = append(ra.HarmCategories, string(cat))
		issues = append(issues, fmt.Sprintf("%s indicators detected: %s", harmLabel(cat), quoteTerms(found)))

		switch cat {
		case analyzer.CategoryViolence:
			ra.ImmediateAction = true
			ra.ProfessionalReferral = true
		case analyzer.CategorySelfHarm, analyzer.CategorySubstance:
			ra.ProfessionalReferral = true
			ra.MonitoringRequired = true
		}
	}

	boundaryTerms := v.vocab.Find(req.Content, analyzer.CategoryBoundary)
	for _, t := range boundaryTerms {
		issues = append(issues, fmt.Sprintf("Professional boundary violation: %q", t.Phrase))
	}

	ethicalTerms := v.vocab.Find(req.Content, analyzer.CategoryEthical)
	for _, t := range ethicalTerms {
		issues = append(issues, fmt.Sprintf("Ethical concern: %q", t.Phrase))
	}
	if len(ethicalTerms) > 0 {
		ra.ImmediateAction = true
	}

	privacyTerms := v.vocab.Find(req.Content, analyzer.CategoryPrivacy)
	for _, t := range privacyTerms {
		issues = append(issues, fmt.Sprintf("Privacy concern: %q", t.Phrase))
	}
	pii := v.sanitizer.Detect(req.Content)
	piiCount := 0
	for _, kind := range sortedKeys(pii) {
		piiCount += pii[kind]
		issues = append(issues, fmt.Sprintf("Personal identifier present: %s", kind))
	}

	score := crisisPoints + harmPoints +
		w.BoundaryPoints*float64(len(boundaryTerms)) +
		w.EthicalPoints*float64(len(ethicalTerms))
	ra.RiskScore = score

	monitoring, referral := w.MonitoringThreshold, w.ReferralThreshold
	if level == LevelStrict || level == LevelEmergency {
		monitoring, referral = w.StrictMonitoringThreshold, w.StrictReferralThreshold
	}
	if score >= monitoring {
		ra.MonitoringRequired = true
	}
	if score >= referral {
		ra.ProfessionalReferral = true
	}

	switch {
	case score >= w.CriticalThreshold || ra.EmergencyResponse:
		ra.RiskLevel = RiskCritical
	case score >= w.HighThreshold || ra.ImmediateAction:
		ra.RiskLevel = RiskHigh
	case score >= w.MediumThreshold || ra.ProfessionalReferral:
		ra.RiskLevel = RiskMedium
	default:
		ra.RiskLevel = RiskLow
	}

	crisisRisk := 100 - crisisPoints
	if contentType == ContentAIResponse && v.vocab.SignalsCrisis(req.Context.UserMessage) &&
		!v.vocab.Contains(req.Content, analyzer.CategoryEmergency) &&
		!v.vocab.Contains(req.Content, analyzer.CategoryReferral) {
		crisisRisk -= 30
		issues = append(issues, "Response does not address crisis indicators in the user message")
	}

	val := Validation{
		CrisisRisk:             round(analyzer.Clamp(crisisRisk)),
		HarmPrevention:         round(analyzer.Clamp(100 - 1.5*harmPoints)),
		ProfessionalBoundaries: round(analyzer.Clamp(100 - 20*float64(len(boundaryTerms)))),
		EthicalCompliance:      round(analyzer.Clamp(100 - 25*float64(len(ethicalTerms)))),
		PrivacyProtection:      round(analyzer.Clamp(100 - 20*float64(len(privacyTerms)) - 15*float64(piiCount))),
	}
	overall := val.CrisisRisk*w.CrisisRisk +
		val.HarmPrevention*w.HarmPrevention +
		val.ProfessionalBoundaries*w.ProfessionalBoundaries +
		val.EthicalCompliance*w.EthicalCompliance +
		val.PrivacyProtection*w.PrivacyProtection -
		v.penalty(ra.RiskLevel)
	val.OverallSafety = round(analyzer.Clamp(overall))

	pass := w.PassScore
	if level == LevelStrict || level == LevelEmergency {
		pass = w.StrictPassScore
	}
	val.Passed = val.OverallSafety >= pass

	return &Result{
		ContentType:     contentType,
		ValidationLevel: level,
		RiskAssessment:  ra,
		Validation:      val,
		Issues:          issues,
		ActionItems:     actionItems(ra, piiCount+len(privacyTerms) > 0),
		Recommendations: recommendations(ra, val),
		ConfidenceScore: v.confidence(req.Content, len(issues)),
	}
}

func (v *Validator) penalty(level string) float64 {
	switch level {
	case RiskCritical:
		return v.weights.PenaltyCritical
	case RiskHigh:
		return v.weights.PenaltyHigh
	case RiskMedium:
		return v.weights.PenaltyMedium
	}
	return 0
}

// confidence grows with the amount of text and with explicit findings
func (v *Validator) confidence(content string, findings int) float64 {
	words := float64(analyzer.WordCount(content))
	c := 60 + 0.3*math.Min(100, words)
	if findings > 0 {
		c += 10
	}
	return round(analyzer.Clamp(c))
}

func actionItems(ra RiskAssessment, privacy bool) []string {
	items := []string{}
	if ra.ImmediateAction {
		items = append(items, "Escalate to crisis response immediately")
	}
	if ra.EmergencyResponse {
		items = append(items, "Provide emergency resources: 988 Suicide & Crisis Lifeline or 911")
	}
	if ra.ProfessionalReferral {
		items = append(items, "Recommend contact with a mental health professional")
	}
	if ra.MonitoringRequired {
		items = append(items, "Increase check-in frequency and monitor mood entries")
	}
	if privacy {
		items = append(items, "Remove personal identifiers before sharing content")
	}
	return items
}

func recommendations(ra RiskAssessment, val Validation) []string {
	recs := []string{}
	switch ra.RiskLevel {
	case RiskCritical:
		recs = append(recs, "Route the user to emergency support and notify the care team")
	case RiskHigh:
		recs = append(recs, "Prioritise professional follow-up within 24 hours")
	case RiskMedium:
		recs = append(recs, "Schedule a wellbeing check-in")
	}
	if val.ProfessionalBoundaries < 100 {
		recs = append(recs, "Reword responses to avoid diagnosis or medication instructions")
	}
	if val.PrivacyProtection < 100 {
		recs = append(recs, "Sanitize personal information before storage or AI processing")
	}
	if val.EthicalCompliance < 100 {
		recs = append(recs, "Review the response for ethical guideline compliance")
	}
	return recs
}

func harmLabel(cat analyzer.Category) string {
	switch cat {
	case analyzer.CategoryViolence:
		return "Violence"
	case analyzer.CategorySelfHarm:
		return "Self-harm"
	case analyzer.CategorySubstance:
		return "Substance misuse"
	}
	return string(cat)
}

func titled(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func quoteTerms(terms []analyzer.Term) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", t.Phrase)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round(v float64) float64 { return analyzer.Round(v, 2) }
