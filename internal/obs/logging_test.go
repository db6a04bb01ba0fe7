package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/obs"
)

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Get("/api/v1/purchase/bills/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/api/v1/gst/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cases := []struct {
		method, path, level, route, recordID string
	}{
		{http.MethodGet, "/api/v1/purchase/bills/42", "warn", "/api/v1/purchase/bills/{id}", "42"},
		{http.MethodPost, "/api/v1/gst/refresh", "error", "/api/v1/gst/refresh", ""},
	}
	for _, tc := range cases {
		buf.Reset()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		r.ServeHTTP(httptest.NewRecorder(), req)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
		require.Equal(t, tc.level, line["level"], tc.path)
		require.Equal(t, tc.route, line["route"])
		require.Equal(t, "203.0.113.9", line["client_ip"])
		if tc.recordID == "" {
			require.NotContains(t, line, "record_id")
		} else {
			require.Equal(t, tc.recordID, line["record_id"])
		}
		require.NotContains(t, line, "trace_id")
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, obs.ParseLevel(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, obs.ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, obs.ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, obs.ParseLevel("loud"))
}
