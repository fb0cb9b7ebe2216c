package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
	"github.com/FACorreiaa/mpesa-insights/pkg/logger"
	"github.com/FACorreiaa/mpesa-insights/pkg/metrics"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("deriver exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, httpx.CodeInternal, body.Error)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(ok))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestLoggerAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter(&buf, logger.Options{})

	r := chi.NewRouter()
	r.Use(chimw.RequestID, RequestLogger(base), AccessLog(base))
	r.Get("/ping", ok)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(chimw.RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(chimw.RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "abc-123", entry["request_id"])
	assert.Equal(t, 200.0, entry["status"])
}

func TestMetrics(t *testing.T) {
	m := metrics.NewNop()

	r := chi.NewRouter()
	r.Use(Metrics(m), Tracing())
	r.Get("/sessions/{sessionID}", ok)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/sessions/{sessionID}", http.MethodGet, "200")))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(ok))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
