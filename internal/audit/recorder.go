// Package audit persists validation results on a best-effort basis: a failed
// write is logged and counted but never returned to the caller.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/models"
)

// Writer stores validation rows
type Writer interface {
	SaveValidationResult(ctx context.Context, result *models.ValidationResult) error
}

// Entry describes one validation outcome to record
type Entry struct {
	UserID          string
	DocumentID      string
	ValidationType  string
	AccuracyScore   float64
	ConfidenceScore float64
	Started         time.Time
	Metrics         interface{}
	Issues          []string
	Recommendations []string
}

// Recorder writes validation rows and updates validation metrics
type Recorder struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. A nil writer records metrics only.
func NewRecorder(writer Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{writer: writer, logger: logger, now: time.Now}
}

// Record builds and stores the row. It returns the row even when the write
// fails.
func (r *Recorder) Record(ctx context.Context, e Entry) *models.ValidationResult {
	now := r.now()
	elapsed := now.Sub(e.Started)
	if e.Started.IsZero() || elapsed < 0 {
		elapsed = 0
	}

	metricsJSON, err := json.Marshal(e.Metrics)
	if err != nil {
		r.logger.Warn("failed to marshal validation metrics", "validation_type", e.ValidationType, "error", err)
		metricsJSON = []byte("{}")
	}

	result := &models.ValidationResult{
		ID:              uuid.New().String(),
		UserID:          e.UserID,
		DocumentID:      e.DocumentID,
		ValidationType:  e.ValidationType,
		AccuracyScore:   e.AccuracyScore,
		ConfidenceScore: e.ConfidenceScore,
		ProcessingTime:  elapsed.Milliseconds(),
		Metrics:         metricsJSON,
		Issues:          nonNil(e.Issues),
		Recommendations: nonNil(e.Recommendations),
		CreatedAt:       now.UTC(),
	}

	metrics.ValidationsTotal.WithLabelValues(e.ValidationType).Inc()
	metrics.ValidationScore.WithLabelValues(e.ValidationType).Observe(e.AccuracyScore)
	metrics.ValidationDuration.WithLabelValues(e.ValidationType).Observe(elapsed.Seconds())

	if r.writer == nil {
		return result
	}

	if err := r.writer.SaveValidationResult(ctx, result); err != nil {
		metrics.PersistenceFailures.WithLabelValues("validation_results").Inc()
		r.logger.Error("failed to store validation result",
			"validation_type", e.ValidationType,
			"user_id", e.UserID,
			"error", err,
		)
	}

	return result
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
