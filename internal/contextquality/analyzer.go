// Package contextquality scores how complete, relevant, fresh and diverse a
// user's stored health data is as context for a therapeutic conversation.
package contextquality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	sourceTypes       = 6
	day               = 24 * time.Hour
)

// Store reads the user's health data. GetUserProfile returns nil, nil when
// the user has no profile row.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListMoodEntries(ctx context.Context, userID string, since time.Time) ([]models.MoodEntry, error)
	ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error)
	ListDailySummaries(ctx context.Context, userID string, since time.Time) ([]models.DailySummary, error)
	ListBaselineMetrics(ctx context.Context, userID string) ([]models.BaselineMetric, error)
}

// Scores are the four context axes and their mean
type Scores struct {
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Freshness    float64 `json:"freshness"`
	Diversity    float64 `json:"diversity"`
	Overall      float64 `json:"overallScore"`
}

// DataSummary describes what was found for the window
type DataSummary struct {
	ProfileAvailable    bool     `json:"profileAvailable"`
	ProfileCompleteness float64  `json:"profileCompleteness"`
	MoodEntries         int      `json:"moodEntries"`
	MoodDays            int      `json:"moodDays"`
	ActiveMedications   int      `json:"activeMedications"`
	DailySummaries      int      `json:"dailySummaries"`
	BaselineMetrics     int      `json:"baselineMetrics"`
	HasInsights         bool     `json:"hasInsights"`
	InsightAgeDays      *float64 `json:"insightAgeDays,omitempty"`
	InsightFreshness    float64  `json:"insightFreshness"`
	LongestGapDays      float64  `json:"longestGapDays"`
	HealthDataIncluded  bool     `json:"healthDataIncluded"`
}

// Data is the raw context fetched for the analysis, kept for prompt building
type Data struct {
	Profile        *models.UserProfile
	MoodEntries    []models.MoodEntry
	Medications    []models.Medication
	DailySummaries []models.DailySummary
	Baselines      []models.BaselineMetric
}

// Result is returned by AnalyzeChatContext
type Result struct {
	UserID          string      `json:"userId"`
	WindowDays      int         `json:"windowDays"`
	Scores          Scores      `json:"scores"`
	DataSummary     DataSummary `json:"dataSummary"`
	ConfidenceScore float64     `json:"confidenceScore"`
	Issues          []string    `json:"issues"`
	Recommendations []string    `json:"recommendations"`
	ProcessingTime  int64       `json:"processingTime"`
	Data            *Data       `json:"-"`
}

// Analyzer computes context quality
type Analyzer struct {
	store    Store
	recorder *audit.Recorder
	weights  config.ContextWeights
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Analyzer
func New(store Store, recorder *audit.Recorder, weights config.ContextWeights, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger)
	}
	return &Analyzer{
		store:    store,
		recorder: recorder,
		weights:  weights,
		logger:   logger,
		now:      time.Now,
	}
}

// AnalyzeChatContext fetches the user's data for the window and scores it.
// The audit row is written best effort.
func (a *Analyzer) AnalyzeChatContext(ctx context.Context, userID string, windowDays int, includeHealthData bool) (*Result, error) {
	started := a.now()
	windowDays = normalizeWindow(windowDays)

	data, err := a.fetch(ctx, userID, started.Add(-time.Duration(windowDays)*day), includeHealthData)
	if err != nil {
		return nil, err
	}

	summary := a.summarize(data, includeHealthData, started)
	scores := a.score(summary, data, windowDays, started)

	result := &Result{
		UserID:          userID,
		WindowDays:      windowDays,
		Scores:          scores,
		DataSummary:     summary,
		ConfidenceScore: analyzer.Round((scores.Completeness+scores.Freshness)/2, 2),
		Issues:          a.detectIssues(summary, scores, windowDays),
		Recommendations: a.recommend(summary, windowDays),
		Data:            data,
	}

	row := a.recorder.Record(ctx, audit.Entry{
		UserID:          userID,
		ValidationType:  models.ValidationChatContext,
		AccuracyScore:   scores.Overall,
		ConfidenceScore: result.ConfidenceScore,
		Started:         started,
		Metrics: map[string]interface{}{
			"scores":      scores,
			"dataSummary": summary,
			"windowDays":  windowDays,
		},
		Issues:          result.Issues,
		Recommendations: result.Recommendations,
	})
	result.ProcessingTime = row.ProcessingTime

	return result, nil
}

func normalizeWindow(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

func (a *Analyzer) fetch(ctx context.Context, userID string, since time.Time, includeHealthData bool) (*Data, error) {
	data := &Data{}
	var err error

	if data.Profile, err = a.store.GetUserProfile(ctx, userID); err != nil {
		return nil, apperr.New(apperr.Database, fmt.Errorf("failed to load profile: %w", err))
	}
	if !includeHealthData {
		return data, nil
	}

	if data.MoodEntries, err = a.store.ListMoodEntries(ctx, userID, since); err != nil {
		return nil, apperr.New(apperr.Database, fmt.Errorf("failed to load mood entries: %w", err))
	}
	if data.Medications, err = a.store.ListActiveMedications(ctx, userID); err != nil {
		return nil, apperr.New(apperr.Database, fmt.Errorf("failed to load medications: %w", err))
	}
	if data.DailySummaries, err = a.store.ListDailySummaries(ctx, userID, since); err != nil {
		return nil, apperr.New(apperr.Database, fmt.Errorf("failed to load daily summaries: %w", err))
	}
	if data.Baselines, err = a.store.ListBaselineMetrics(ctx, userID); err != nil {
		return nil, apperr.New(apperr.Database, fmt.Errorf("failed to load baseline metrics: %w", err))
	}

	return data, nil
}

func (a *Analyzer) summarize(data *Data, includeHealthData bool, now time.Time) DataSummary {
	s := DataSummary{
		MoodEntries:        len(data.MoodEntries),
		MoodDays:           uniqueDays(moodTimes(data.MoodEntries)),
		ActiveMedications:  len(data.Medications),
		DailySummaries:     len(data.DailySummaries),
		BaselineMetrics:    len(data.Baselines),
		HealthDataIncluded: includeHealthData,
	}

	if p := data.Profile; p != nil {
		s.ProfileAvailable = true
		s.ProfileCompleteness = profileCompleteness(p)
		if p.AIMedicalSummary != nil && p.AIInsightsGeneratedAt != nil {
			s.HasInsights = true
			age := now.Sub(*p.AIInsightsGeneratedAt).Hours() / 24
			s.InsightAgeDays = &age
			s.InsightFreshness = decay(age, a.weights.InsightFreshDays, a.weights.InsightStaleDays)
		}
	}

	s.LongestGapDays = longestGap(moodTimes(data.MoodEntries), now)
	return s
}

func (a *Analyzer) score(s DataSummary, data *Data, windowDays int, now time.Time) Scores {
	w := a.weights

	completeness := w.ProfileWeight * s.ProfileCompleteness / 100
	if s.MoodEntries > 0 {
		completeness += w.MoodWeight
	}
	if s.ActiveMedications > 0 {
		completeness += w.MedicationWeight
	}
	if s.HasInsights {
		completeness += w.InsightsWeight
	}
	if s.BaselineMetrics > 0 {
		completeness += w.BaselineWeight
	}

	relevance := w.RelevanceBase
	if float64(s.MoodEntries) > float64(windowDays)/2 {
		relevance += w.RelevanceMoodBonus
	}
	if s.HasInsights {
		relevance += w.RelevanceInsightsBonus
	}
	if s.BaselineMetrics > 0 {
		relevance += w.RelevanceBaselineBonus
	}

	freshness := a.freshness(s, data, windowDays, now)

	present := 0
	for _, ok := range []bool{
		s.ProfileAvailable,
		s.MoodEntries > 0,
		s.ActiveMedications > 0,
		s.DailySummaries > 0,
		s.BaselineMetrics > 0,
		s.HasInsights,
	} {
		if ok {
			present++
		}
	}
	diversity := float64(present) / sourceTypes * 100

	scores := Scores{
		Completeness: analyzer.Round(analyzer.Clamp(completeness), 2),
		Relevance:    analyzer.Round(analyzer.Clamp(relevance), 2),
		Freshness:    analyzer.Round(analyzer.Clamp(freshness), 2),
		Diversity:    analyzer.Round(analyzer.Clamp(diversity), 2),
	}
	scores.Overall = analyzer.Round(analyzer.Clamp(
		(scores.Completeness+scores.Relevance+scores.Freshness+scores.Diversity)/4), 2)
	return scores
}

// freshness blends the available recency signals, renormalising the weights
// over whichever signals exist
func (a *Analyzer) freshness(s DataSummary, data *Data, windowDays int, now time.Time) float64 {
	w := a.weights
	var total, weightSum float64

	if p := data.Profile; p != nil && p.UpdatedAt != nil {
		age := now.Sub(*p.UpdatedAt).Hours() / 24
		total += w.FreshnessProfile * decay(age, w.InsightFreshDays, w.ProfileStaleDays)
		weightSum += w.FreshnessProfile
	}

	if s.HealthDataIncluded {
		times := moodTimes(data.MoodEntries)
		for _, ds := range data.DailySummaries {
			times = append(times, ds.Date)
		}
		coverage := float64(uniqueDays(times)) / float64(windowDays) * 100
		total += w.FreshnessCoverage * analyzer.Clamp(coverage)
		weightSum += w.FreshnessCoverage
	}

	if s.HasInsights {
		total += w.FreshnessInsights * s.InsightFreshness
		weightSum += w.FreshnessInsights
	}

	if len(data.Baselines) > 0 {
		latest := data.Baselines[0].UpdatedAt
		for _, b := range data.Baselines[1:] {
			if b.UpdatedAt.After(latest) {
				latest = b.UpdatedAt
			}
		}
		age := now.Sub(latest).Hours() / 24
		total += w.FreshnessBaseline * decay(age, w.InsightFreshDays, w.BaselineStaleDays)
		weightSum += w.FreshnessBaseline
	}

	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

func (a *Analyzer) detectIssues(s DataSummary, scores Scores, windowDays int) []string {
	w := a.weights
	issues := []string{}

	if !s.ProfileAvailable {
		issues = append(issues, "Profile data not available")
	} else if s.ProfileCompleteness < 100 {
		issues = append(issues, "Profile is incomplete")
	}

	if !s.HealthDataIncluded {
		issues = append(issues, "Health data excluded from context analysis")
	} else {
		if s.MoodEntries == 0 {
			issues = append(issues, fmt.Sprintf("No mood entries recorded in the last %d days", windowDays))
		} else if s.LongestGapDays > w.MaxGapDays {
			issues = append(issues, fmt.Sprintf("Data gaps longer than %g days in mood tracking", w.MaxGapDays))
		}
		if s.ActiveMedications == 0 {
			issues = append(issues, "No active medications on record")
		}
		if s.BaselineMetrics == 0 {
			issues = append(issues, "Baseline metrics not established")
		}
	}

	if !s.HasInsights {
		issues = append(issues, "No medical insights generated")
	} else if s.InsightAgeDays != nil && *s.InsightAgeDays > w.InsightStaleDays {
		issues = append(issues, fmt.Sprintf("Medical insights are more than %g days old", w.InsightStaleDays))
	}

	if scores.Completeness < w.CompletenessTarget {
		issues = append(issues, fmt.Sprintf("Context completeness below %g%%", w.CompletenessTarget))
	}

	return issues
}

func (a *Analyzer) recommend(s DataSummary, windowDays int) []string {
	recs := []string{}

	if !s.ProfileAvailable || s.ProfileCompleteness < 100 {
		recs = append(recs, "Complete your profile so support can be personalised")
	}
	if s.HealthDataIncluded && float64(s.MoodDays) < float64(windowDays)/4 {
		recs = append(recs, "Log your mood daily to give better context")
	}
	if !s.HasInsights || (s.InsightAgeDays != nil && *s.InsightAgeDays > a.weights.InsightStaleDays) {
		recs = append(recs, "Generate updated medical insights")
	}
	if s.HealthDataIncluded && s.DailySummaries == 0 {
		recs = append(recs, "Connect a health data source to enable daily summaries")
	}
	if s.HealthDataIncluded && s.BaselineMetrics == 0 && s.MoodEntries > 0 {
		recs = append(recs, "Keep tracking for two weeks to establish personal baselines")
	}

	return recs
}

func profileCompleteness(p *models.UserProfile) float64 {
	filled := 0
	for _, v := range []string{p.FirstName, p.Email, p.Timezone, p.DateOfBirth} {
		if v != "" {
			filled++
		}
	}
	return float64(filled) / 4 * 100
}

// decay is 100 up to fresh days, falling linearly to 0 at stale days
func decay(ageDays, fresh, stale float64) float64 {
	switch {
	case ageDays <= fresh:
		return 100
	case ageDays >= stale:
		return 0
	default:
		return 100 * (stale - ageDays) / (stale - fresh)
	}
}

func moodTimes(entries []models.MoodEntry) []time.Time {
	times := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		times = append(times, e.CreatedAt)
	}
	return times
}

func uniqueDays(times []time.Time) int {
	days := make(map[string]bool, len(times))
	for _, t := range times {
		days[t.UTC().Format("2006-01-02")] = true
	}
	return len(days)
}

// longestGap is the widest spacing between consecutive entries, including
// the time since the most recent one
func longestGap(times []time.Time, now time.Time) float64 {
	if len(times) == 0 {
		return 0
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longest := now.Sub(sorted[len(sorted)-1])
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i].Sub(sorted[i-1]); gap > longest {
			longest = gap
		}
	}
	return longest.Hours() / 24
}
