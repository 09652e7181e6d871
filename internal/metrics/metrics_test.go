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

func TestCountersRecord(t *testing.T) {
	m := New(nil)

	m.ObserveRequest(http.MethodGet, "/api/checklists", http.StatusOK, 15*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/checklists", http.StatusOK, 5*time.Millisecond)
	m.Denied("FORBIDDEN")
	m.AuditFailed("CHECKLIST_CREATED")
	m.RateLimited("create_item")
	m.RateLimited("create_item")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/api/checklists", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denials.WithLabelValues("FORBIDDEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditFailures.WithLabelValues("CHECKLIST_CREATED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("create_item")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, "", http.StatusOK, time.Second)
	m.Denied("NOT_FOUND")
	m.AuditFailed("X")
	m.RateLimited("reorder")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(nil)
	m.Denied("CONFLICT")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `checklists_denials_total{kind="CONFLICT"} 1`))
}
