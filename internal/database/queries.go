package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func dbErr(action string, err error) error {
	return apperr.New(apperr.Database, fmt.Errorf("failed to %s: %w", action, err))
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	return string(data), err
}

func unmarshalList(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// GetUserProfile returns the profile, or nil when the user has none
func (db *DB) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		p           models.UserProfile
		summaryJSON sql.NullString
		generatedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, first_name, email, timezone, date_of_birth, ai_medical_summary, ai_insights_generated_at, updated_at
		FROM user_profiles
		WHERE id = ?
	`), userID).Scan(&p.ID, &p.FirstName, &p.Email, &p.Timezone, &p.DateOfBirth, &summaryJSON, &generatedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get user profile", err)
	}

	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary models.MedicalSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, dbErr("unmarshal medical summary", err)
		}
		p.AIMedicalSummary = &summary
	}
	p.AIInsightsGeneratedAt = nullTime(generatedAt)
	p.UpdatedAt = nullTime(updatedAt)

	return &p, nil
}

// UpdateProfileInsights stores a generated medical summary on the profile
func (db *DB) UpdateProfileInsights(ctx context.Context, userID string, summary *models.MedicalSummary, generatedAt time.Time) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal medical summary: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, db.rebind(`
		UPDATE user_profiles
		SET ai_medical_summary = ?, ai_insights_generated_at = ?, updated_at = ?
		WHERE id = ?
	`), string(summaryJSON), generatedAt, generatedAt, userID)
	if err != nil {
		return dbErr("update profile insights", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Newf(apperr.NotFound, "profile %s not found", userID)
	}
	return nil
}

// ListMoodEntries returns mood entries created at or after since, oldest first
func (db *DB) ListMoodEntries(ctx context.Context, userID string, since time.Time) ([]models.MoodEntry, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT user_id, mood, energy, stress, anxiety, notes, created_at
		FROM mood_entries
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`), userID, since)
	if err != nil {
		return nil, dbErr("list mood entries", err)
	}
	defer rows.Close()

	entries := []models.MoodEntry{}
	for rows.Next() {
		var e models.MoodEntry
		if err := rows.Scan(&e.UserID, &e.Mood, &e.Energy, &e.Stress, &e.Anxiety, &e.Notes, &e.CreatedAt); err != nil {
			return nil, dbErr("scan mood entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate mood entries", err)
	}

	return entries, nil
}

// ListActiveMedications returns medications with no end date
func (db *DB) ListActiveMedications(ctx context.Context, userID string) ([]models.Medication, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT user_id, med_name, dosage, schedule, start_date, end_date
		FROM medications
		WHERE user_id = ? AND end_date IS NULL
		ORDER BY med_name ASC
	`), userID)
	if err != nil {
		return nil, dbErr("list medications", err)
	}
	defer rows.Close()

	meds := []models.Medication{}
	for rows.Next() {
		var (
			m          models.Medication
			start, end sql.NullTime
		)
		if err := rows.Scan(&m.UserID, &m.MedName, &m.Dosage, &m.Schedule, &start, &end); err != nil {
			return nil, dbErr("scan medication", err)
		}
		m.StartDate = nullTime(start)
		m.EndDate = nullTime(end)
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate medications", err)
	}

	return meds, nil
}

// ListDailySummaries returns summaries dated at or after since, oldest first
func (db *DB) ListDailySummaries(ctx context.Context, userID string, since time.Time) ([]models.DailySummary, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT user_id, date, sleep_hours, steps, risk_level
		FROM daily_summaries
		WHERE user_id = ? AND date >= ?
		ORDER BY date ASC
	`), userID, since)
	if err != nil {
		return nil, dbErr("list daily summaries", err)
	}
	defer rows.Close()

	summaries := []models.DailySummary{}
	for rows.Next() {
		var s models.DailySummary
		if err := rows.Scan(&s.UserID, &s.Date, &s.SleepHours, &s.Steps, &s.RiskLevel); err != nil {
			return nil, dbErr("scan daily summary", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate daily summaries", err)
	}

	return summaries, nil
}

// ListBaselineMetrics returns the user's baselines
func (db *DB) ListBaselineMetrics(ctx context.Context, userID string) ([]models.BaselineMetric, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT user_id, metric_name, mean, std, updated_at
		FROM baseline_metrics
		WHERE user_id = ?
		ORDER BY metric_name ASC
	`), userID)
	if err != nil {
		return nil, dbErr("list baseline metrics", err)
	}
	defer rows.Close()

	metrics := []models.BaselineMetric{}
	for rows.Next() {
		var m models.BaselineMetric
		if err := rows.Scan(&m.UserID, &m.MetricName, &m.Mean, &m.Std, &m.UpdatedAt); err != nil {
			return nil, dbErr("scan baseline metric", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate baseline metrics", err)
	}

	return metrics, nil
}

// GetMedicalDocument retrieves a document by ID
func (db *DB) GetMedicalDocument(ctx context.Context, id string) (*models.MedicalDocument, error) {
	var d models.MedicalDocument
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, user_id, file_path, doc_type, extracted_text, uploaded_at
		FROM medical_documents
		WHERE id = ?
	`), id).Scan(&d.ID, &d.UserID, &d.FilePath, &d.DocType, &d.ExtractedText, &d.UploadedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, dbErr("get medical document", err)
	}

	return &d, nil
}

// UpdateExtractedText stores OCR output for a document
func (db *DB) UpdateExtractedText(ctx context.Context, id, text string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`
		UPDATE medical_documents SET extracted_text = ? WHERE id = ?
	`), text, id)
	if err != nil {
		return dbErr("update extracted text", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Newf(apperr.NotFound, "document %s not found", id)
	}
	return nil
}

// SaveValidationResult appends a validation row
func (db *DB) SaveValidationResult(ctx context.Context, r *models.ValidationResult) error {
	issues, err := marshalList(r.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	recs, err := marshalList(r.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	metrics := string(r.Metrics)
	if metrics == "" {
		metrics = "{}"
	}

	var documentID interface{}
	if r.DocumentID != "" {
		documentID = r.DocumentID
	}

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO validation_results
			(id, user_id, document_id, validation_type, accuracy_score, confidence_score,
			 processing_time, metrics, issues, recommendations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), r.ID, r.UserID, documentID, r.ValidationType, r.AccuracyScore, r.ConfidenceScore,
		r.ProcessingTime, metrics, issues, recs, r.CreatedAt)
	if err != nil {
		return dbErr("insert validation result", err)
	}

	return nil
}

// ValidationFilter narrows ListValidationResults
type ValidationFilter struct {
	UserID         string
	ValidationType string
	DocumentID     string
	Limit          int
}

// ListValidationResults returns a user's validation rows, newest first
func (db *DB) ListValidationResults(ctx context.Context, f ValidationFilter) ([]models.ValidationResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, user_id, document_id, validation_type, accuracy_score, confidence_score,
		       processing_time, metrics, issues, recommendations, created_at
		FROM validation_results
		WHERE user_id = ?`
	args := []interface{}{f.UserID}
	if f.ValidationType != "" {
		query += " AND validation_type = ?"
		args = append(args, f.ValidationType)
	}
	if f.DocumentID != "" {
		query += " AND document_id = ?"
		args = append(args, f.DocumentID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, dbErr("list validation results", err)
	}
	defer rows.Close()

	results := []models.ValidationResult{}
	for rows.Next() {
		var (
			r                     models.ValidationResult
			documentID            sql.NullString
			metrics, issues, recs []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &documentID, &r.ValidationType, &r.AccuracyScore, &r.ConfidenceScore,
			&r.ProcessingTime, &metrics, &issues, &recs, &r.CreatedAt); err != nil {
			return nil, dbErr("scan validation result", err)
		}
		r.DocumentID = documentID.String
		r.Metrics = json.RawMessage(metrics)
		if r.Issues, err = unmarshalList(issues); err != nil {
			return nil, dbErr("unmarshal issues", err)
		}
		if r.Recommendations, err = unmarshalList(recs); err != nil {
			return nil, dbErr("unmarshal recommendations", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate validation results", err)
	}

	return results, nil
}

// SaveCriticalSafetyEvent appends an escalation row
func (db *DB) SaveCriticalSafetyEvent(ctx context.Context, e *models.CriticalSafetyEvent) error {
	issues, err := marshalList(e.DetectedIssues)
	if err != nil {
		return fmt.Errorf("failed to marshal detected issues: %w", err)
	}
	actions, err := marshalList(e.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO critical_safety_events
			(id, user_id, event_type, risk_level, immediate_action, emergency_response,
			 detected_issues, action_items, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.UserID, e.EventType, e.RiskLevel, e.ImmediateAction, e.EmergencyResponse,
		issues, actions, e.ContentType, e.CreatedAt)
	if err != nil {
		return dbErr("insert critical safety event", err)
	}

	return nil
}

// ListCriticalSafetyEvents returns a user's escalations, newest first
func (db *DB) ListCriticalSafetyEvents(ctx context.Context, userID string, limit int) ([]models.CriticalSafetyEvent, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, user_id, event_type, risk_level, immediate_action, emergency_response,
		       detected_issues, action_items, content_type, created_at
		FROM critical_safety_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`), userID, limit)
	if err != nil {
		return nil, dbErr("list critical safety events", err)
	}
	defer rows.Close()

	events := []models.CriticalSafetyEvent{}
	for rows.Next() {
		var (
			e               models.CriticalSafetyEvent
			issues, actions []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.RiskLevel, &e.ImmediateAction, &e.EmergencyResponse,
			&issues, &actions, &e.ContentType, &e.CreatedAt); err != nil {
			return nil, dbErr("scan critical safety event", err)
		}
		if e.DetectedIssues, err = unmarshalList(issues); err != nil {
			return nil, dbErr("unmarshal detected issues", err)
		}
		if e.ActionItems, err = unmarshalList(actions); err != nil {
			return nil, dbErr("unmarshal action items", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate critical safety events", err)
	}

	return events, nil
}
