package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/observability"
)

// isPermissionError normalizes OS-specific permission errors so loopback
// restrictions in sandboxes skip instead of fail.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// initMetricsOrSkip starts a real exporter on a free port and restores the
// previous telemetry globals afterwards.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	prevSystem := observability.TelemetrySystem
	prevExporter := observability.PrometheusExporter
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
		}
		observability.PrometheusExporter = prevExporter
		observability.TelemetrySystem = prevSystem
	})
}

// serveLoopback binds to IPv4 loopback explicitly.
func serveLoopback(t *testing.T, h http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping loopback server: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: h}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func scrape(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	return resp, string(body)
}

func TestPipelineMetricsUnderLoad(t *testing.T) {
	observability.InitServerLogger("test", "error", "structured")
	initMetricsOrSkip(t)

	const max = 10
	srv := New(Options{
		Limiter: ratelimit.New(ratelimit.NewMemoryStore(), time.Minute, max),
		Backend: "memory",
	})
	ts, client := serveLoopback(t, srv.Handler())

	const numRequests = 40
	const numWorkers = 8

	jobs := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		jobs <- i
	}
	close(jobs)

	var (
		mu     sync.Mutex
		status = map[int]int{}
		wg     sync.WaitGroup
	)
	start := time.Now()
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range jobs {
				path := "/version"
				if n%4 == 0 {
					path = "/missing"
				}
				resp, err := client.Get(ts.URL + path)
				if err != nil {
					continue
				}
				_ = resp.Body.Close()
				mu.Lock()
				status[resp.StatusCode]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, numRequests-max, status[http.StatusTooManyRequests],
		"everything past the window budget is rejected")
	assert.Equal(t, max, status[http.StatusOK]+status[http.StatusNotFound])

	resp, body := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "metrics path is exempt from the limit")
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, "test_http_request_duration_ms")
	assert.Contains(t, body, "test_rate_limit_decisions_total")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestMetricsPrometheusFormat(t *testing.T) {
	observability.InitServerLogger("test", "error", "structured")
	initMetricsOrSkip(t)

	ts, client := serveLoopback(t, New(Options{}).Handler())

	resp, err := client.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, body := scrape(t, client, ts.URL)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain; version=0.0.4"),
		"unexpected content type %q", resp.Header.Get("Content-Type"))

	metricLines := 0
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		require.GreaterOrEqual(t, len(strings.Fields(line)), 2, "malformed metric line %q", line)
		metricLines++
	}
	assert.Greater(t, metricLines, 0)
}
