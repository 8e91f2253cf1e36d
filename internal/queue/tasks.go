package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/metrics"
)

// startTaskSpan continues the enqueuing trace when the payload carries one
func startTaskSpan(ctx context.Context, taskType string, meta TraceMeta, now time.Time, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Duration) {
	var queueWait time.Duration
	if meta.EnqueuedAt > 0 {
		queueWait = now.Sub(time.Unix(0, meta.EnqueuedAt))
	}

	if meta.TraceID != "" && meta.SpanID != "" {
		traceID, err := trace.TraceIDFromHex(meta.TraceID)
		if err == nil {
			spanID, err := trace.SpanIDFromHex(meta.SpanID)
			if err == nil {
				remote := trace.NewSpanContext(trace.SpanContextConfig{
					TraceID:    traceID,
					SpanID:     spanID,
					TraceFlags: trace.FlagsSampled,
					Remote:     true,
				})
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}
		}
	}

	attrs = append(attrs,
		attribute.String("task.type", taskType),
		attribute.Float64("queue.wait_time_seconds", queueWait.Seconds()),
	)
	ctx, span := otel.Tracer("guardian").Start(ctx, "asynq.task."+taskType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	span.AddEvent("task_processing_started", trace.WithAttributes(
		attribute.Float64("wait_time_seconds", queueWait.Seconds()),
	))

	return ctx, span, queueWait
}

// handleExtractDocument transcribes a stored document and scores the result
func (w *Worker) handleExtractDocument(ctx context.Context, t *asynq.Task) error {
	var payload ExtractDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span, queueWait := startTaskSpan(ctx, TypeExtractDocument, payload.TraceMeta, w.now(),
		attribute.String("document.id", payload.DocumentID),
	)
	defer span.End()

	w.logger.Info("extracting document",
		"document_id", payload.DocumentID,
		"user_id", payload.UserID,
		"queue_wait_seconds", queueWait.Seconds(),
	)

	extraction, err := w.extractor.Extract(ctx, payload.DocumentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return retryable(fmt.Errorf("failed to extract document %s: %w", payload.DocumentID, err))
	}

	span.SetAttributes(
		attribute.String("extraction.method", extraction.Method),
		attribute.Int("extraction.characters", extraction.Characters),
	)
	w.logger.Info("document extracted",
		"document_id", payload.DocumentID,
		"method", extraction.Method,
		"characters", extraction.Characters,
		"accuracy_score", extraction.Accuracy.AccuracyScore,
		"terminology_score", extraction.Terminology.Scores.Overall,
	)

	return nil
}

// handleSafetyAlert delivers a critical safety event
func (w *Worker) handleSafetyAlert(ctx context.Context, t *asynq.Task) error {
	var payload SafetyAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}
	event := payload.Event

	ctx, span, _ := startTaskSpan(ctx, TypeSafetyAlert, payload.TraceMeta, w.now(),
		attribute.String("event.id", event.ID),
		attribute.String("event.risk_level", event.RiskLevel),
	)
	defer span.End()

	if w.notifier == nil {
		w.logger.Warn("critical safety event (no alert webhook configured)",
			"event_id", event.ID,
			"user_id", event.UserID,
			"risk_level", event.RiskLevel,
			"event_type", event.EventType,
		)
		metrics.SafetyAlertsDelivered.WithLabelValues("logged").Inc()
		return nil
	}

	if err := w.notifier.Notify(ctx, &event); err != nil {
		metrics.SafetyAlertsDelivered.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "alert delivery failed")
		return retryable(fmt.Errorf("failed to deliver safety alert %s: %w", event.ID, err))
	}

	metrics.SafetyAlertsDelivered.WithLabelValues("delivered").Inc()
	w.logger.Info("safety alert delivered", "event_id", event.ID, "risk_level", event.RiskLevel)
	return nil
}

// retryable marks errors that cannot succeed on retry with asynq.SkipRetry
func retryable(err error) error {
	if isRetriableError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	switch apperr.KindOf(err) {
	case apperr.Validation, apperr.NotFound, apperr.Authentication, apperr.Authorization:
		return false
	case apperr.ExternalAPI, apperr.Database, apperr.Storage, apperr.RateLimit:
		return true
	}

	errStr := strings.ToLower(err.Error())

	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"context deadline exceeded",
		"i/o timeout",
		"no such host",
		"network is unreachable",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
