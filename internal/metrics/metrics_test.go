package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTick(t *testing.T) {
	m := New()
	m.ObserveTick(time.Now(), nil)
	m.ObserveTick(time.Now(), nil)
	m.ObserveTick(time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error ticks = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Now(), nil)
	m.ObserveSnapshot(time.Now(), 3)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveSnapshot(time.Now(), 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "valora_products 4") {
		t.Errorf("metrics output misses products gauge:\n%s", body)
	}
}
