package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewIsSingleton(t *testing.T) {
	if New() != New() {
		t.Error("New() returned distinct instances")
	}
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/history/{id}", "GET", "404"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/"+id, nil))
	}
	after := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/history/{id}", "GET", "404"))
	if after-before != 2 {
		t.Errorf("requests delta = %v, want 2", after-before)
	}
}

func TestObserveProvider(t *testing.T) {
	m := New()
	ok := m.ProviderCalls.WithLabelValues("test-model", "generate", "ok")
	failed := m.ProviderCalls.WithLabelValues("test-model", "generate", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	m.ObserveProvider("test-model", "generate", nil, time.Second)
	m.ObserveProvider("test-model", "generate", errors.New("boom"), time.Second)

	if d := testutil.ToFloat64(ok) - okBefore; d != 1 {
		t.Errorf("ok delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(failed) - failedBefore; d != 1 {
		t.Errorf("error delta = %v, want 1", d)
	}
}

func TestObserveJob(t *testing.T) {
	m := New()
	c := m.Jobs.WithLabelValues("market_insight", "failed")
	before := testutil.ToFloat64(c)
	m.ObserveJob("market_insight", "failed")
	if d := testutil.ToFloat64(c) - before; d != 1 {
		t.Errorf("delta = %v, want 1", d)
	}
}
