package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/auth"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/contextquality"
	"github.com/zombar/guardian/internal/database"
	"github.com/zombar/guardian/internal/document"
	"github.com/zombar/guardian/internal/ratelimit"
	"github.com/zombar/guardian/internal/safety"
	"github.com/zombar/guardian/internal/sanitizer"
	"github.com/zombar/guardian/internal/terminology"
	"github.com/zombar/guardian/internal/therapeutic"
)

const testSecret = "test-secret"

type fakeQueue struct {
	documentID, userID string
}

func (q *fakeQueue) EnqueueExtractDocument(_ context.Context, documentID, userID string) (string, error) {
	q.documentID, q.userID = documentID, userID
	return "task-1", nil
}

type testServer struct {
	handler  http.Handler
	db       *database.DB
	verifier *auth.Verifier
	root     string
}

func setupTestServer(t *testing.T, configure func(*Dependencies)) *testServer {
	t.Helper()

	db, err := database.New(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)

	root := t.TempDir()
	objects, err := document.NewLocalStore(root)
	require.NoError(t, err)

	weights := config.DefaultWeights()
	vocab := analyzer.New()
	san := sanitizer.New()
	recorder := audit.NewRecorder(db, nil)
	accuracy := document.NewAccuracyAnalyzer(recorder, weights.Document, nil)
	terms := terminology.New(recorder, weights.Terminology, nil)

	deps := Dependencies{
		Store:       db,
		Contexts:    contextquality.New(db, recorder, weights.Context, nil),
		Therapeutic: therapeutic.New(vocab, recorder, weights.Therapeutic, nil),
		Safety:      safety.New(vocab, san, recorder, db, weights.Safety, nil),
		Documents:   accuracy,
		Terminology: terms,
		Extractor:   document.NewExtractor(db, objects, nil, accuracy, terms, nil),
		Verifier:    verifier,
	}
	if configure != nil {
		configure(&deps)
	}

	return &testServer{handler: NewHandler(deps), db: db, verifier: verifier, root: root}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.verifier.Sign(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) seedDocument(t *testing.T, id, userID, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.root, file), []byte(content), 0o644))
	_, err := s.db.Conn().Exec(
		`INSERT INTO medical_documents (id, user_id, file_path, doc_type, extracted_text, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, file, "lab_report", content, time.Now().UTC())
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func resultOf(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok, "result should be an object: %s", w.Body.String())
	return result
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	s := setupTestServer(t, nil)
	require.NoError(t, s.db.Close())

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	s := setupTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := setupTestServer(t, nil)
	body := map[string]interface{}{"content": "hello", "contentType": "user_input"}

	t.Run("missing token", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/safety", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "AUTHENTICATION_ERROR", decodeBody(t, w)["code"])
	})

	t.Run("bad token", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/safety", "not-a-jwt", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other, err := auth.NewVerifier("other-secret")
		require.NoError(t, err)
		token, err := other.Sign("user-1", "", time.Hour)
		require.NoError(t, err)

		w := s.do(t, http.MethodPost, "/api/validate/safety", token, body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUserOwnership(t *testing.T) {
	s := setupTestServer(t, nil)
	body := map[string]interface{}{"userId": "user-2", "content": "hello", "contentType": "user_input"}

	w := s.do(t, http.MethodPost, "/api/validate/safety", s.token(t, "user-1", ""), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTHORIZATION_ERROR", decodeBody(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/validate/safety", s.token(t, "svc", auth.RoleService), body)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrorsIncludeDetails(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.token(t, "user-1", "")

	w := s.do(t, http.MethodPost, "/api/validate/safety", token, map[string]interface{}{
		"content":     "hello",
		"contentType": "email",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details, ok := body["details"].([]interface{})
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Contains(t, details[0], "contentType failed on oneof")
}

func TestMalformedBody(t *testing.T) {
	s := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/validate/safety", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "user-1", ""))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, decodeBody(t, w)["details"])
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 1, Window: time.Minute})
	t.Cleanup(limiter.Stop)
	s := setupTestServer(t, func(d *Dependencies) { d.Limiter = limiter })
	token := s.token(t, "user-1", "")
	body := map[string]interface{}{"content": "hello", "contentType": "user_input"}

	w := s.do(t, http.MethodPost, "/api/validate/safety", token, body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/validate/safety", token, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// budgets are per function
	w = s.do(t, http.MethodPost, "/api/validate/therapeutic", token, map[string]interface{}{"response": "I hear you."})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateContext(t *testing.T) {
	s := setupTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/validate/context", s.token(t, "user-1", ""), map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := resultOf(t, w)
	assert.Equal(t, "user-1", result["userId"])
	assert.Equal(t, float64(contextquality.DefaultWindowDays), result["windowDays"])
	assert.NotContains(t, result, "Data")
}

func TestValidateSafetyRecordsCriticalEvent(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.token(t, "user-1", "")

	w := s.do(t, http.MethodPost, "/api/validate/safety", token, map[string]interface{}{
		"content":     "I want to end my life",
		"contentType": "user_input",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := resultOf(t, w)
	risk := result["riskAssessment"].(map[string]interface{})
	assert.Equal(t, safety.RiskCritical, risk["riskLevel"])
	assert.Equal(t, true, result["criticalEventLogged"])

	w = s.do(t, http.MethodGet, "/api/safety-events", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decodeBody(t, w)["result"].([]interface{})
	require.Len(t, events, 1)
}

func TestValidateTherapeuticIsListed(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.token(t, "user-1", "")

	w := s.do(t, http.MethodPost, "/api/validate/therapeutic", token, map[string]interface{}{
		"response":    "It sounds like a hard week. Would it help to talk through what felt heaviest?",
		"userMessage": "This week has been hard.",
		"mode":        "supportive",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "supportive", resultOf(t, w)["mode"])

	w = s.do(t, http.MethodGet, "/api/validation-results?type=therapeutic_response", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decodeBody(t, w)["result"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "therapeutic_response", rows[0].(map[string]interface{})["validation_type"])
}

func TestListLimitValidation(t *testing.T) {
	s := setupTestServer(t, nil)
	token := s.token(t, "user-1", "")

	for _, limit := range []string{"abc", "0", "100000"} {
		w := s.do(t, http.MethodGet, "/api/validation-results?limit="+limit, token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestValidateDocument(t *testing.T) {
	s := setupTestServer(t, nil)
	s.seedDocument(t, "doc-1", "user-1", "labs.txt", "Hemoglobin 13.5 g/dL. Glucose 92 mg/dL.")
	s.seedDocument(t, "doc-2", "user-2", "other.txt", "Cholesterol 180 mg/dL.")
	token := s.token(t, "user-1", "")

	w := s.do(t, http.MethodPost, "/api/validate/document", token, map[string]interface{}{"documentId": "doc-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/validate/document", token, map[string]interface{}{"documentId": "doc-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/validate/document", token, map[string]interface{}{"documentId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/validate/document", token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateTerminology(t *testing.T) {
	s := setupTestServer(t, nil)
	s.seedDocument(t, "doc-1", "user-1", "labs.txt", "Patient takes sertraline 50 mg daily for depression.")
	token := s.token(t, "user-1", "")

	t.Run("inline text", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/terminology", token, map[string]interface{}{
			"text": "Blood pressure 120/80 mmHg.",
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("document text", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/terminology", token, map[string]interface{}{
			"documentId":      "doc-1",
			"validationLevel": "strict",
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("neither text nor document", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/terminology", token, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown level", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/validate/terminology", token, map[string]interface{}{
			"text":            "Glucose 92 mg/dL.",
			"validationLevel": "lenient",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChatWithoutModel(t *testing.T) {
	s := setupTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/chat", s.token(t, "user-1", ""), map[string]interface{}{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", decodeBody(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/insights/generate", s.token(t, "user-1", ""), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestExtractDocumentQueued(t *testing.T) {
	q := &fakeQueue{}
	s := setupTestServer(t, func(d *Dependencies) { d.Queue = q })
	s.seedDocument(t, "doc-1", "user-1", "labs.txt", "Glucose 92 mg/dL.")

	w := s.do(t, http.MethodPost, "/api/documents/extract", s.token(t, "user-1", ""), map[string]interface{}{"documentId": "doc-1"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	result := resultOf(t, w)
	assert.Equal(t, "queued", result["status"])
	assert.Equal(t, "task-1", result["taskId"])
	assert.Equal(t, "doc-1", q.documentID)
	assert.Equal(t, "user-1", q.userID)
}

func TestExtractDocumentInline(t *testing.T) {
	s := setupTestServer(t, nil)
	s.seedDocument(t, "doc-1", "user-1", "labs.txt", "Glucose 92 mg/dL. Hemoglobin 13.5 g/dL.")

	w := s.do(t, http.MethodPost, "/api/documents/extract", s.token(t, "user-1", ""), map[string]interface{}{"documentId": "doc-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := resultOf(t, w)
	assert.Equal(t, document.MethodPlainText, result["method"])
	assert.NotNil(t, result["accuracy"])
	assert.NotNil(t, result["terminology"])
}

func TestExtractDocumentOfAnotherUser(t *testing.T) {
	q := &fakeQueue{}
	s := setupTestServer(t, func(d *Dependencies) { d.Queue = q })
	s.seedDocument(t, "doc-1", "user-2", "labs.txt", "Glucose 92 mg/dL.")

	w := s.do(t, http.MethodPost, "/api/documents/extract", s.token(t, "user-1", ""), map[string]interface{}{"documentId": "doc-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, q.documentID)
}
