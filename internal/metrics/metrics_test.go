package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RecordSubmission(OutcomeProcessed)
	m.RecordSubmission(OutcomeProcessed)
	m.RecordSubmission(OutcomeManual)
	m.RecordNoteCreated("Pricing")
	m.RecordReview("approve")
	m.RecordLLMCall("success", 1500*time.Millisecond)
	m.RecordHTTPRequest(http.MethodGet, "/review", http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeManual)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notesCreated.WithLabelValues("Pricing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/review", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSubmission(OutcomeFailed)
		m.RecordNoteCreated("General")
		m.RecordReview("reject")
		m.RecordLLMCall("failure", time.Second)
		m.RecordHTTPRequest("POST", "/notes", 500, time.Second)
	})
}

func TestHandler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.RecordSubmission(OutcomeInvalid)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `notes_submissions_total{outcome="invalid"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
