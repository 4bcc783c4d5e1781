package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveOperation("overview", time.Now(), nil)
	metrics.ObserveOperation("overview", time.Now(), errors.New("boom"))
	metrics.ObserveOperation("overview", time.Now(), nil)

	if got := testutil.ToFloat64(metrics.InsightsOperationsTotal.WithLabelValues("overview", "ok")); got != 2 {
		t.Errorf("expected 2 ok operations, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.InsightsOperationsTotal.WithLabelValues("overview", "error")); got != 1 {
		t.Errorf("expected 1 failed operation, got %v", got)
	}
}

func TestObserveQuery_CountsErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveQuery("count_distinct", "production", time.Now(), nil)
	metrics.ObserveQuery("count_distinct", "test", time.Now(), errors.New("timeout"))

	if got := testutil.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("count_distinct", "test")); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("count_distinct", "production")); got != 0 {
		t.Errorf("expected 0 store errors, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveQuery("q", "production", time.Now(), nil)
	metrics.ObserveOperation("op", time.Now(), nil)
	metrics.ObserveSessions(3)
	metrics.ObserveRefresh(nil)
	metrics.ObserveHTTP("GET", "/", "200", time.Millisecond)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.ObserveRefresh(nil)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "beacon_identified_users_refresh_total") {
		t.Errorf("expected refresh counter in output, got:\n%s", body)
	}
}
