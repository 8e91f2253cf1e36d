package api

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/contextquality"
	"github.com/zombar/guardian/internal/database"
	"github.com/zombar/guardian/internal/guardian"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/safety"
	"github.com/zombar/guardian/internal/terminology"
	"github.com/zombar/guardian/internal/therapeutic"
	"github.com/zombar/guardian/pkg/tracing"
)

type contextRequest struct {
	UserID            string `json:"userId" validate:"max=128"`
	WindowDays        int    `json:"windowDays"`
	IncludeHealthData *bool  `json:"includeHealthData"`
}

type therapeuticRequest struct {
	UserID              string            `json:"userId" validate:"max=128"`
	Response            string            `json:"response" validate:"required,max=20000"`
	UserMessage         string            `json:"userMessage" validate:"max=20000"`
	ConversationContext []models.ChatTurn `json:"conversationContext" validate:"max=100"`
	Mode                string            `json:"mode" validate:"omitempty,oneof=supportive crisis educational"`
}

type safetyRequest struct {
	UserID          string         `json:"userId" validate:"max=128"`
	Content         string         `json:"content" validate:"required,max=50000"`
	ContentType     string         `json:"contentType" validate:"required,oneof=ai_response user_input document system_message"`
	Context         safety.Context `json:"context"`
	ValidationLevel string         `json:"validationLevel" validate:"omitempty,oneof=standard strict emergency"`
}

type documentRequest struct {
	UserID      string `json:"userId" validate:"max=128"`
	DocumentID  string `json:"documentId" validate:"required,max=128"`
	GroundTruth string `json:"groundTruth" validate:"max=200000"`
}

type terminologyRequest struct {
	UserID          string `json:"userId" validate:"max=128"`
	Text            string `json:"text" validate:"required_without=DocumentID,max=200000"`
	DocumentID      string `json:"documentId" validate:"max=128"`
	ValidationLevel string `json:"validationLevel" validate:"omitempty,oneof=standard strict"`
}

type chatRequest struct {
	UserID              string            `json:"userId" validate:"max=128"`
	Message             string            `json:"message" validate:"required,max=4000"`
	ConversationHistory []models.ChatTurn `json:"conversationHistory" validate:"max=50"`
	Mode                string            `json:"mode" validate:"omitempty,oneof=supportive crisis educational"`
}

type userRequest struct {
	UserID string `json:"userId" validate:"max=128"`
}

type extractRequest struct {
	UserID     string `json:"userId" validate:"max=128"`
	DocumentID string `json:"documentId" validate:"required,max=128"`
}

func (h *Handler) handleValidateContext(w http.ResponseWriter, r *http.Request) error {
	var req contextRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}

	includeHealth := true
	if req.IncludeHealthData != nil {
		includeHealth = *req.IncludeHealthData
	}
	windowDays := req.WindowDays
	if windowDays == 0 {
		windowDays = contextquality.DefaultWindowDays
	}

	result, err := h.Contexts.AnalyzeChatContext(r.Context(), userID, windowDays, includeHealth)
	if err != nil {
		return err
	}

	respondSuccess(w, result, http.StatusOK)
	return nil
}

func (h *Handler) handleValidateTherapeutic(w http.ResponseWriter, r *http.Request) error {
	var req therapeuticRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}
	mode, _ := therapeutic.ParseMode(req.Mode)

	result := h.Therapeutic.EvaluateTherapeuticResponse(r.Context(), therapeutic.Request{
		UserID:              userID,
		Response:            req.Response,
		UserMessage:         req.UserMessage,
		ConversationContext: req.ConversationContext,
		Mode:                mode,
	})

	respondSuccess(w, result, http.StatusOK)
	return nil
}

func (h *Handler) handleValidateSafety(w http.ResponseWriter, r *http.Request) error {
	var req safetyRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}

	level := safety.Level(req.ValidationLevel)
	if level == "" {
		level = safety.LevelStandard
	}

	result := h.Safety.PerformSafetyValidation(r.Context(), safety.Request{
		UserID:      userID,
		Content:     req.Content,
		ContentType: safety.ContentType(req.ContentType),
		Context:     req.Context,
		Level:       level,
	})
	tracing.SetSpanAttributes(r.Context(),
		attribute.String("safety.risk_level", result.RiskAssessment.RiskLevel),
		attribute.Bool("safety.passed", result.Validation.Passed),
	)

	respondSuccess(w, result, http.StatusOK)
	return nil
}

// ownedDocument loads a document that must belong to userID. Documents of
// other users are reported as missing.
func (h *Handler) ownedDocument(r *http.Request, documentID, userID string) (*models.MedicalDocument, error) {
	doc, err := h.Store.GetMedicalDocument(r.Context(), documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, apperr.Newf(apperr.NotFound, "document %s not found", documentID)
	}
	return doc, nil
}

func (h *Handler) handleValidateDocument(w http.ResponseWriter, r *http.Request) error {
	var req documentRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}

	doc, err := h.ownedDocument(r, req.DocumentID, userID)
	if err != nil {
		return err
	}

	respondSuccess(w, h.Documents.AnalyzeDocumentAccuracy(r.Context(), doc, req.GroundTruth), http.StatusOK)
	return nil
}

func (h *Handler) handleValidateTerminology(w http.ResponseWriter, r *http.Request) error {
	var req terminologyRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}
	level, _ := terminology.ParseLevel(req.ValidationLevel)

	text := req.Text
	if req.DocumentID != "" {
		doc, err := h.ownedDocument(r, req.DocumentID, userID)
		if err != nil {
			return err
		}
		if text == "" {
			text = doc.ExtractedText
		}
	}
	if text == "" {
		return apperr.Newf(apperr.Validation, "document %s has no extracted text", req.DocumentID)
	}

	result := h.Terminology.ValidateMedicalTerminology(r.Context(), userID, req.DocumentID, text, level)
	respondSuccess(w, result, http.StatusOK)
	return nil
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) error {
	var req chatRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}
	if h.Guardian == nil {
		return apperr.Newf(apperr.ExternalAPI, "ai model is not configured")
	}
	mode, _ := therapeutic.ParseMode(req.Mode)

	result, err := h.Guardian.Chat(r.Context(), guardian.ChatRequest{
		UserID:  userID,
		Message: req.Message,
		History: req.ConversationHistory,
		Mode:    mode,
	})
	if err != nil {
		return err
	}

	respondSuccess(w, result, http.StatusOK)
	return nil
}

func (h *Handler) handleGenerateInsights(w http.ResponseWriter, r *http.Request) error {
	var req userRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}
	if h.Guardian == nil {
		return apperr.Newf(apperr.ExternalAPI, "ai model is not configured")
	}

	insights, err := h.Guardian.GenerateInsights(r.Context(), userID)
	if err != nil {
		return err
	}

	respondSuccess(w, insights, http.StatusOK)
	return nil
}

// handleExtractDocument queues extraction when a worker is available and
// otherwise extracts inline
func (h *Handler) handleExtractDocument(w http.ResponseWriter, r *http.Request) error {
	var req extractRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	userID, err := resolveUser(r, req.UserID)
	if err != nil {
		return err
	}
	if _, err := h.ownedDocument(r, req.DocumentID, userID); err != nil {
		return err
	}

	if h.Queue != nil {
		taskID, err := h.Queue.EnqueueExtractDocument(r.Context(), req.DocumentID, userID)
		if err != nil {
			return apperr.New(apperr.System, err)
		}
		respondSuccess(w, map[string]string{
			"documentId": req.DocumentID,
			"taskId":     taskID,
			"status":     "queued",
		}, http.StatusAccepted)
		return nil
	}

	if h.Extractor == nil {
		return apperr.Newf(apperr.Storage, "document storage is not configured")
	}
	extraction, err := h.Extractor.Extract(r.Context(), req.DocumentID)
	if err != nil {
		return err
	}

	respondSuccess(w, extraction, http.StatusOK)
	return nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > database.MaxListLimit {
		return 0, apperr.Newf(apperr.Validation, "limit must be between 1 and %d", database.MaxListLimit)
	}
	return limit, nil
}

func (h *Handler) handleListValidationResults(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	userID, err := resolveUser(r, q.Get("userId"))
	if err != nil {
		return err
	}
	limit, err := parseLimit(r)
	if err != nil {
		return err
	}

	results, err := h.Store.ListValidationResults(r.Context(), database.ValidationFilter{
		UserID:         userID,
		ValidationType: q.Get("type"),
		DocumentID:     q.Get("documentId"),
		Limit:          limit,
	})
	if err != nil {
		return err
	}

	respondSuccess(w, results, http.StatusOK)
	return nil
}

func (h *Handler) handleListSafetyEvents(w http.ResponseWriter, r *http.Request) error {
	userID, err := resolveUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		return err
	}
	limit, err := parseLimit(r)
	if err != nil {
		return err
	}

	events, err := h.Store.ListCriticalSafetyEvents(r.Context(), userID, limit)
	if err != nil {
		return err
	}

	respondSuccess(w, events, http.StatusOK)
	return nil
}
