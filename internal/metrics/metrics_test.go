package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveTool(t *testing.T) {
	c := NewCollector("test")
	c.ObserveTool("places_get", OutcomeOK, 10*time.Millisecond)
	c.ObserveTool("places_get", OutcomeOK, 20*time.Millisecond)
	c.ObserveTool("places_get", OutcomeToolError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("places_get", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("places_get", OutcomeToolError)))
}

func TestCollector_ActiveSessions(t *testing.T) {
	c := NewCollector("test")
	c.SetActiveSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ActiveSessions))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveTool("ping", OutcomeOK, time.Millisecond)
	c.SetActiveSessions(1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	c.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	c := NewCollector("test")
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues(http.MethodPost, "202")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_http_requests_total{method="POST",status="202"} 2`))
}
