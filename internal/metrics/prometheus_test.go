package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestHandlerExposesGuardianMetrics(t *testing.T) {
	Init()
	ValidationsTotal.WithLabelValues("safety_validation").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "guardian_validations_total") {
		t.Error("expected guardian_validations_total in metrics output")
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(RateLimited.WithLabelValues("safety-validation"))
	RateLimited.WithLabelValues("safety-validation").Inc()
	after := testutil.ToFloat64(RateLimited.WithLabelValues("safety-validation"))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, grew by %v", after-before)
	}
}
