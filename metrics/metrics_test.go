package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposed(t *testing.T) {
	m := New(Options{})

	m.MeasureServe("products", 200, time.Now().Add(-5*time.Millisecond))
	m.IncRoutingFailures()
	m.IncBreakerTransition("orders", "CLOSED", "OPEN")
	m.IncBreakerRejected("orders")
	m.IncAuthFailure("expired")
	m.IncBackendRetry("product-catalog")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `gateway_serve_route_count{code="200",route="products"} 1`)
	assert.Contains(t, body, "gateway_serve_route_error_total 1")
	assert.Contains(t, body, `gateway_breaker_transition_total{breaker="orders",from="CLOSED",to="OPEN"} 1`)
	assert.Contains(t, body, `gateway_breaker_rejected_total{breaker="orders"} 1`)
	assert.Contains(t, body, `gateway_auth_failure_total{kind="expired"} 1`)
	assert.Contains(t, body, `gateway_backend_retry_total{service="product-catalog"} 1`)
}

func TestMetricsPrefix(t *testing.T) {
	m := New(Options{Prefix: "edge"})

	m.IncAuthFailure("missing")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `edge_auth_failure_total{kind="missing"} 1`)
}
