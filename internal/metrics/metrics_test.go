package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDiscovery(t *testing.T) {
	before := testutil.ToFloat64(discoveryRecords.WithLabelValues(DiscoveryCreated))

	RecordDiscovery(DiscoveryCreated)
	RecordDiscovery(DiscoveryCreated)
	RecordDiscovery(DiscoveryExisting)

	if got := testutil.ToFloat64(discoveryRecords.WithLabelValues(DiscoveryCreated)); got != before+2 {
		t.Errorf("created counter = %v, want %v", got, before+2)
	}
}

func TestRecordDelivery(t *testing.T) {
	outcomes := []string{OutcomeSent, OutcomeRetrying, OutcomeFailed, OutcomeSkipped, OutcomeError}

	for _, outcome := range outcomes {
		before := testutil.ToFloat64(deliveryAttempts.WithLabelValues(outcome))
		RecordDelivery(outcome)
		if got := testutil.ToFloat64(deliveryAttempts.WithLabelValues(outcome)); got != before+1 {
			t.Errorf("%s counter = %v, want %v", outcome, got, before+1)
		}
	}
}

func TestSetDueRecords(t *testing.T) {
	SetDueRecords(7)
	if got := testutil.ToFloat64(dueRecords); got != 7 {
		t.Errorf("due gauge = %v, want 7", got)
	}
	SetDueRecords(0)
	if got := testutil.ToFloat64(dueRecords); got != 0 {
		t.Errorf("due gauge = %v, want 0", got)
	}
}

func TestPassMetrics(t *testing.T) {
	ObservePass(PassDiscovery, 120*time.Millisecond)
	ObservePass(PassDelivery, 15*time.Millisecond)

	before := testutil.ToFloat64(passFailures.WithLabelValues(PassDelivery))
	RecordPassFailure(PassDelivery)
	if got := testutil.ToFloat64(passFailures.WithLabelValues(PassDelivery)); got != before+1 {
		t.Errorf("pass failures = %v, want %v", got, before+1)
	}
}

func TestSetCircuitState(t *testing.T) {
	SetCircuitState("ses", 1)
	if got := testutil.ToFloat64(circuitState.WithLabelValues("ses")); got != 1 {
		t.Errorf("circuit state = %v, want 1", got)
	}
	SetCircuitState("ses", 0)
	if got := testutil.ToFloat64(circuitState.WithLabelValues("ses")); got != 0 {
		t.Errorf("circuit state = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	RecordClaimRejected()
	RecordRateLimitRejection()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"birthday_claims_rejected_total", "birthday_rate_limit_rejections_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/users/{id}", "404"))

	req := httptest.NewRequest("GET", "/v1/users/3f0c9a8e-0000-4000-8000-000000000001", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/users/{id}", "404")); got != before+1 {
		t.Errorf("route-labelled counter = %v, want %v", got, before+1)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
