package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_counters(t *testing.T) {
	m := New()

	m.IncPublishes()
	m.IncPublishRejected()
	m.IncPublishRejected()
	m.IncHookEvent("pre_publish")
	m.IncKicks(true)
	m.IncKicks(false)
	m.IncTranscoderStarts()
	m.IncTranscoderExits(ExitSpawnFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishRejectedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hookEventsTotal.WithLabelValues("pre_publish")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.kicksTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.kicksTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcoderStartsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcoderExitsTotal.WithLabelValues(ExitSpawnFailed)))
}

func TestMetrics_gauges(t *testing.T) {
	m := New()

	m.SetLive(true)
	m.SetViewers(4)
	m.SetActiveSessions(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.live))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.viewers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))

	m.SetLive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.live))
}

func TestHandler_refreshes_gauges_before_scrape(t *testing.T) {
	m := New()
	called := false
	h := m.Handler(func() {
		called = true
		m.SetViewers(7)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "live_viewers 7")
}

func TestRequestMiddleware_counts_errors(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get(Path, func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/ok", "/missing", "/ok", Path} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))

	n, err := testutil.GatherAndCount(m.Registry(), "live_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
