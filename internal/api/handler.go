package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/auth"
	"github.com/zombar/guardian/internal/contextquality"
	"github.com/zombar/guardian/internal/database"
	"github.com/zombar/guardian/internal/document"
	"github.com/zombar/guardian/internal/guardian"
	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/ratelimit"
	"github.com/zombar/guardian/internal/safety"
	"github.com/zombar/guardian/internal/terminology"
	"github.com/zombar/guardian/internal/therapeutic"
	"github.com/zombar/guardian/pkg/logging"
)

const maxBodyBytes = 1 << 20

// Store is the data access the handlers use directly
type Store interface {
	Ping(ctx context.Context) error
	GetMedicalDocument(ctx context.Context, id string) (*models.MedicalDocument, error)
	ListValidationResults(ctx context.Context, f database.ValidationFilter) ([]models.ValidationResult, error)
	ListCriticalSafetyEvents(ctx context.Context, userID string, limit int) ([]models.CriticalSafetyEvent, error)
}

// DocumentQueue schedules background extraction
type DocumentQueue interface {
	EnqueueExtractDocument(ctx context.Context, documentID, userID string) (string, error)
}

// Dependencies wires the handler. Guardian, Extractor and Queue are optional.
type Dependencies struct {
	Store       Store
	Contexts    *contextquality.Analyzer
	Therapeutic *therapeutic.Evaluator
	Safety      *safety.Validator
	Documents   *document.AccuracyAnalyzer
	Terminology *terminology.Validator
	Guardian    *guardian.Service
	Extractor   *document.Extractor
	Queue       DocumentQueue
	Verifier    *auth.Verifier
	Limiter     ratelimit.Limiter
	Logger      *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	Dependencies
	validate *validator.Validate
	mux      *http.ServeMux
}

// NewHandler creates the API handler with CORS, tracing and request logging
func NewHandler(deps Dependencies) http.Handler {
	h := newHandler(deps)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		AllowCredentials: false,
	})

	var handler http.Handler = h.mux
	handler = logging.HTTPLoggingMiddleware(h.Logger)(handler)
	handler = otelhttp.NewHandler(handler, "guardian.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return c.Handler(handler)
}

func newHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	h := &Handler{
		Dependencies: deps,
		validate:     v,
		mux:          http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("GET /metrics", metrics.Handler())
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.route("POST /api/validate/context", "chat-context-analysis", h.handleValidateContext)
	h.route("POST /api/validate/therapeutic", "therapeutic-response-evaluation", h.handleValidateTherapeutic)
	h.route("POST /api/validate/safety", "safety-validation", h.handleValidateSafety)
	h.route("POST /api/validate/document", "document-accuracy-analysis", h.handleValidateDocument)
	h.route("POST /api/validate/terminology", "medical-terminology-validation", h.handleValidateTerminology)
	h.route("POST /api/chat", "guardian-chat", h.handleChat)
	h.route("POST /api/insights/generate", "generate-insights", h.handleGenerateInsights)
	h.route("POST /api/documents/extract", "extract-document", h.handleExtractDocument)
	h.route("GET /api/validation-results", "list-validation-results", h.handleListValidationResults)
	h.route("GET /api/safety-events", "list-safety-events", h.handleListSafetyEvents)
}

// route registers an authenticated, rate-limited endpoint
func (h *Handler) route(pattern, function string, fn func(http.ResponseWriter, *http.Request) error) {
	h.mux.Handle(pattern, h.authenticate(h.rateLimit(function, h.wrap(fn))))
}

// wrap renders a returned error as the error envelope
func (h *Handler) wrap(fn func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.respondAppError(w, r, err)
		}
	})
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status":   "ok",
		"time":     time.Now().Format(time.RFC3339),
		"database": "ok",
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unavailable"
		}
	}

	respondJSON(w, body, status)
}

// decode reads a JSON body into v and validates it. An empty body decodes
// as an empty object.
func (h *Handler) decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.New(apperr.Validation, fmt.Errorf("invalid request body: %w", err))
	}
	if err := h.validate.Struct(v); err != nil {
		return apperr.New(apperr.Validation, err)
	}
	return nil
}

// resolveUser applies the userId ownership rule for the authenticated caller
func resolveUser(r *http.Request, requested string) (string, error) {
	p, _ := auth.FromContext(r.Context())
	return auth.ResolveUser(p, requested)
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result"`
}

type errorEnvelope struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func respondSuccess(w http.ResponseWriter, result interface{}, statusCode int) {
	respondJSON(w, successEnvelope{Success: true, Result: result}, statusCode)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondAppError maps err to its kind and sends the sanitized envelope.
// Only validation failures expose field-level details.
func (h *Handler) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)

	body := errorEnvelope{Error: apperr.Message(kind), Code: apperr.Code(kind)}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			body.Details = append(body.Details, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
	}

	if status >= http.StatusInternalServerError {
		logging.HTTPErrorLogger(h.Logger, status, err, r)
	} else {
		h.Logger.Warn("request rejected",
			"path", r.URL.Path,
			"kind", kind,
			"error", apperr.Redact(err.Error()),
		)
	}

	respondJSON(w, body, status)
}
