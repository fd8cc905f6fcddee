package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordConflict(models.ConflictGroupSlotTaken)
	m.RecordConflict(models.ConflictGroupSlotTaken)
	m.RecordMutation("propose")
	m.RecordPublication(3, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflicts.WithLabelValues(string(models.ConflictGroupSlotTaken))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("propose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publications))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.publishedSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/timetable/grid", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	var nilSvc *MetricsService
	rec = httptest.NewRecorder()
	nilSvc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	nilSvc.RecordConflict(models.ConflictTeacherUnavailable)
}
