package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("sinapi", "ok")
	m.ObserveRequest("sinapi", "ok")
	m.ObserveRequest("sinapi", "invalid")
	m.ObserveDiagnostics(3, 1, 2)
	m.ObservePass("budget", 20*time.Millisecond)
	m.ObserveHTTP("/parse", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("sinapi", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("sinapi", "invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("warning")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("divergence")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.passes))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("sinapi", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "orcamento_parse_requests_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("sinapi", "ok")
		m.ObservePass("budget", time.Second)
		m.ObserveDiagnostics(1, 1, 1)
		m.ObserveHTTP("/parse", http.StatusOK, time.Second)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSpans(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "budget.parse", attribute.String("source", "sinapi"))
	require.NotNil(t, ctx)
	assert.NotPanics(t, func() { EndSpan(span, errors.New("boom")) })
}
