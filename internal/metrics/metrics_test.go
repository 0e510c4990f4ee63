package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("GET /health", "200", 1)
		m.CheckoutResult("success")
		m.WebhookResult("paid")
		m.Compensated(2)
		m.Swept()
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CheckoutResult("success")
	m.CheckoutResult("success")
	m.CheckoutResult("out_of_stock")
	m.WebhookResult("paid")
	m.Compensated(3)
	m.Compensated(0)
	m.Swept()
	m.ObserveRequest("POST /checkout", "201", 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("out_of_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Webhooks.WithLabelValues("paid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Compensations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweptOrders))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("POST /checkout", "201")))
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Swept()

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ec_checkout_pending_orders_swept_total 1")
}
