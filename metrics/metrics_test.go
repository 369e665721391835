package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("sqs", "SendMessage", "OK", time.Millisecond)
		m.MessagesSent(1)
		m.SessionIssued()
		m.SetQueueMessages("q", 1, 2, 3)
		m.ForgetQueue("q")
		m.ReconcileRun(nil)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.MessagesSent(3)
	m.MessagesSent(0)
	m.MessagesDeleted(1)
	m.ReconcileRun(errors.New("boom"))
	m.SetQueueMessages("orders", 4, 1, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.messages.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileRuns.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueMessages.WithLabelValues("orders", "visible")))

	m.ForgetQueue("orders")
	assert.Equal(t, 0, testutil.CollectAndCount(m.queueMessages))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRequest("sqs", "CreateQueue", "OK", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `inhouseaws_requests_total{action="CreateQueue",code="OK",service="sqs"} 1`), body)
}
