package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_RegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		reg.MustRegister(RequestsTotal, RequestDuration, ActiveRequests, UpstreamErrors)
	})
}

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api", "GET", "200"))

	Observe("/api", "GET", 200, 15*time.Millisecond)
	Observe("/api", "GET", 200, 20*time.Millisecond)

	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api", "GET", "200"))
	assert.Equal(t, before+2, after)
}

func TestUpstreamErrors_Increment(t *testing.T) {
	c := UpstreamErrors.WithLabelValues("/ai", "unreachable")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestActiveRequests_IncDec(t *testing.T) {
	before := testutil.ToFloat64(ActiveRequests)
	ActiveRequests.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ActiveRequests))
	ActiveRequests.Dec()
	assert.Equal(t, before, testutil.ToFloat64(ActiveRequests))
}

func TestHandler_ServesMetrics(t *testing.T) {
	Init()
	Observe("passthrough", "GET", 200, time.Millisecond)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "devproxy_requests_total")
}
