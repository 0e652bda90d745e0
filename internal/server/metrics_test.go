package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/minisuite/minisuite/internal/errors"
	"github.com/minisuite/minisuite/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// stubExporter installs an exporter value and a fake upstream transport.
func stubExporter(t *testing.T, rt roundTripFunc) {
	t.Helper()
	originalClient := metricsProxyClient
	originalExporter := observability.PrometheusExporter
	t.Cleanup(func() {
		metricsProxyClient = originalClient
		observability.PrometheusExporter = originalExporter
	})

	metricsProxyClient = &http.Client{Transport: rt}
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
}

func TestMetricsHandlerProxiesExporter(t *testing.T) {
	var upstream *http.Request
	stubExporter(t, func(req *http.Request) (*http.Response, error) {
		upstream = req
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("# TYPE http_requests_total counter\nhttp_requests_total 1\n")),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
		resp.Header.Set("Connection", "close")
		return resp, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()
	MetricsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"), "hop-by-hop headers are dropped")
	assert.Contains(t, rec.Body.String(), "http_requests_total 1")

	require.NotNil(t, upstream)
	assert.Equal(t, "127.0.0.1", upstream.URL.Hostname())
	assert.Equal(t, "text/plain", upstream.Header.Get("Accept"))
}

func TestMetricsHandlerUpstreamFailure(t *testing.T) {
	stubExporter(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerWithoutExporter(t *testing.T) {
	original := observability.PrometheusExporter
	observability.PrometheusExporter = nil
	t.Cleanup(func() { observability.PrometheusExporter = original })

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Metrics exporter not initialized", resp.Error)
}
