package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRemoteRequest(t *testing.T) {
	before := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("get_item", "ok"))
	ObserveRemoteRequest("get_item", "ok", 10*time.Millisecond)
	after := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("get_item", "ok"))
	require.InDelta(t, before+1, after, 0.0001)
}

func TestAddersIgnoreNonPositive(t *testing.T) {
	before := testutil.ToFloat64(persistedRowsTotal.WithLabelValues("story"))
	AddPersistedRows("story", 0)
	AddPersistedRows("story", -3)
	require.InDelta(t, before, testutil.ToFloat64(persistedRowsTotal.WithLabelValues("story")), 0.0001)

	AddPersistedRows("story", 4)
	require.InDelta(t, before+4, testutil.ToFloat64(persistedRowsTotal.WithLabelValues("story")), 0.0001)
}

func TestGateGauges(t *testing.T) {
	SetGateInFlight("root", 3)
	SetGateWaiting("root", 7)
	require.InDelta(t, 3, testutil.ToFloat64(gateInFlight.WithLabelValues("root")), 0.0001)
	require.InDelta(t, 7, testutil.ToFloat64(gateWaiting.WithLabelValues("root")), 0.0001)
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/schedules/{category}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/schedules/{category}", "418")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/v1/schedules/top", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.InDelta(t, before+1, testutil.ToFloat64(counter), 0.0001)
}
