package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/guardian/internal/models"
)

// Task type constants
const (
	TypeExtractDocument = "guardian:extract_document"
	TypeSafetyAlert     = "guardian:safety_alert"
)

// Queue names and their relative priorities
const (
	QueueSafetyAlerts = "safety-alerts"
	QueueDocuments    = "document-extraction"
)

var queuePriorities = map[string]int{
	QueueSafetyAlerts: 7,
	QueueDocuments:    3,
}

// TraceMeta carries the enqueuing span so the worker can continue the trace
type TraceMeta struct {
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// ExtractDocumentPayload asks the worker to transcribe a stored document
type ExtractDocumentPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	TraceMeta
}

// SafetyAlertPayload forwards a critical safety event to alerting
type SafetyAlertPayload struct {
	Event models.CriticalSafetyEvent `json:"event"`
	TraceMeta
}

// enqueuer is the subset of *asynq.Client used here
type enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client enqueuer
	now    func() time.Time
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		now:    time.Now,
	}
}

func (c *Client) traceMeta(ctx context.Context, taskType, taskKey string) TraceMeta {
	meta := TraceMeta{EnqueuedAt: c.now().UnixNano()}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		meta.TraceID = spanCtx.TraceID().String()
		meta.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("task.key", taskKey),
			attribute.Int64("enqueued_at", meta.EnqueuedAt),
		))
	}
	return meta
}

// EnqueueExtractDocument enqueues text extraction for a medical document
func (c *Client) EnqueueExtractDocument(ctx context.Context, documentID, userID string) (string, error) {
	payload := ExtractDocumentPayload{
		DocumentID: documentID,
		UserID:     userID,
		TraceMeta:  c.traceMeta(ctx, TypeExtractDocument, documentID),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeExtractDocument, payloadBytes)

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
		asynq.Queue(QueueDocuments),
		asynq.Retention(7 * 24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue extract document task: %w", err)
	}

	return info.ID, nil
}

// EnqueueSafetyAlert enqueues delivery of a critical safety event. The event
// ID doubles as the task ID so an event is alerted at most once.
func (c *Client) EnqueueSafetyAlert(ctx context.Context, event *models.CriticalSafetyEvent) error {
	payload := SafetyAlertPayload{
		Event:     *event,
		TraceMeta: c.traceMeta(ctx, TypeSafetyAlert, event.ID),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeSafetyAlert, payloadBytes, asynq.TaskID("safety-alert-"+event.ID))

	opts := []asynq.Option{
		asynq.MaxRetry(10),
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueSafetyAlerts),
		asynq.Retention(30 * 24 * time.Hour),
	}

	if _, err := c.client.Enqueue(task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue safety alert task: %w", err)
	}

	return nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
