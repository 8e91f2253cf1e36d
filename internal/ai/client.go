// Package ai talks to chat and vision completion models through an ordered
// fallback chain.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/metrics"
)

const (
	DefaultTimeout = 30 * time.Second

	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a model answers with no content
var ErrEmptyResponse = errors.New("empty model response")

// Message is one chat message, optionally carrying an image
type Message struct {
	Role      string
	Content   string
	Image     []byte
	ImageMIME string
}

// Provider sends a single completion request to one model
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error)
}

// Client tries each configured model in order until one succeeds
type Client struct {
	provider Provider
	models   []string
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Client. models must not be empty.
func New(provider Provider, models []string, logger *slog.Logger) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("ai provider is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		models:   models,
		timeout:  DefaultTimeout,
		logger:   logger,
	}, nil
}

// Models returns the fallback chain in order
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Complete returns the first successful model response
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, false)
}

// CompleteJSON asks for a JSON object and decodes it into v
func (c *Client) CompleteJSON(ctx context.Context, messages []Message, v interface{}) error {
	response, err := c.complete(ctx, messages, true)
	if err != nil {
		return err
	}
	return decodeJSONObject(response, v)
}

func (c *Client) complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	var lastErr error
	for i, model := range c.models {
		if err := ctx.Err(); err != nil {
			return "", apperr.New(apperr.ExternalAPI, fmt.Errorf("completion cancelled: %w", err))
		}

		text, err := c.attempt(ctx, model, messages, jsonMode)
		if err == nil {
			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.AddEvent("ai_completion", trace.WithAttributes(
					attribute.String("ai.provider", c.provider.Name()),
					attribute.String("ai.model", model),
					attribute.Int("ai.attempt", i+1),
				))
			}
			return text, nil
		}

		lastErr = err
		c.logger.Warn("model request failed, trying next",
			"provider", c.provider.Name(),
			"model", model,
			"attempt", i+1,
			"error", apperr.Redact(err.Error()))
	}

	return "", apperr.New(apperr.ExternalAPI, fmt.Errorf("all %d models failed: %w", len(c.models), lastErr))
}

func (c *Client) attempt(ctx context.Context, model string, messages []Message, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Complete(ctx, model, messages, jsonMode)
	metrics.AIRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.AIRequests.WithLabelValues(model, "error").Inc()
		return "", fmt.Errorf("model %s: %w", model, err)
	}

	metrics.AIRequests.WithLabelValues(model, "success").Inc()
	return strings.TrimSpace(text), nil
}

// ExtractText transcribes the text in a document image
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	messages := []Message{
		{
			Role: RoleSystem,
			Content: "You transcribe medical documents. Return only the text that appears in the image, " +
				"preserving line breaks, headings, medication names and dosages exactly. " +
				"Do not summarise, interpret or add commentary.",
		},
		{
			Role:      RoleUser,
			Content:   "Extract all text from this document.",
			Image:     image,
			ImageMIME: mimeType,
		},
	}
	return c.Complete(ctx, messages)
}

// decodeJSONObject finds the outermost JSON object in a model response
func decodeJSONObject(response string, v interface{}) error {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return apperr.New(apperr.ExternalAPI, fmt.Errorf("no JSON object found in response"))
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), v); err != nil {
		return apperr.New(apperr.ExternalAPI, fmt.Errorf("failed to parse response JSON: %w", err))
	}
	return nil
}
