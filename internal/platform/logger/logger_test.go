package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriter_formats(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("hello", slog.Int("n", 1))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, 1.0, entry["n"])

	buf.Reset()
	NewWithWriter(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	NewWithWriter(&buf, "warn", "json").Info("dropped")
	assert.Empty(t, buf.String())
}

func TestNewWithWriter_redacts_secrets(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "json", "s3cret-key")

	log.Info("publish",
		slog.String("path", "/live/s3cret-key"),
		slog.String("stream_key", "guess"),
		slog.String("session_id", "abc"),
		slog.Int("viewers", 3),
	)

	out := buf.String()
	assert.NotContains(t, out, "s3cret-key")
	assert.NotContains(t, out, "guess")
	assert.Contains(t, out, `"session_id":"abc"`)
	assert.Contains(t, out, `"viewers":3`)
}

func TestNewWithWriter_short_key_keeps_unrelated_values(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json", "live")

	log.Info("stream live",
		slog.String("path", "/live/abc"),
		slog.String("rtmp_url", "rtmp://localhost:1935/live"),
		slog.String("hls_path", "./streams"),
		slog.String("input", "rtmp://localhost:1935/live/live"),
		slog.String("output", "streams/live/live/index.m3u8"),
		slog.String("key", "live"),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stream live", entry["msg"])
	assert.Equal(t, "/live/abc", entry["path"])
	assert.Equal(t, "rtmp://localhost:1935/live", entry["rtmp_url"])
	assert.Equal(t, "./streams", entry["hls_path"])
	assert.NotEqual(t, "rtmp://localhost:1935/live/live", entry["input"])
	assert.NotEqual(t, "streams/live/live/index.m3u8", entry["output"])
	assert.NotEqual(t, "live", entry["key"])
}

func TestSecretPattern(t *testing.T) {
	re := secretPattern("s3cret")
	tests := []struct {
		value string
		want  bool
	}{
		{"s3cret", true},
		{"/live/s3cret", true},
		{"/live/s3cret?token=x", true},
		{"/tmp/hls/live/s3cret/index.m3u8", true},
		{"rtmp://localhost:1935/live/s3cret", true},
		{"/live/s3cret-other", false},
		{"not-s3cret", false},
		{"/live/abc", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, re.MatchString(tc.value), tc.value)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	var seen string
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/info", entry["path"])
	assert.Equal(t, 418.0, entry["status"])
	assert.Equal(t, 15.0, entry["size"])
	assert.Equal(t, seen, entry["request_id"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestRequestLogger_keeps_incoming_id(t *testing.T) {
	log := NewWithWriter(&bytes.Buffer{}, "info", "json")
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-42", rec.Header().Get(RequestIDHeader))
}
