package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("updated", false, nil, 1500*time.Millisecond)
	m.ObserveRun("none", false, errors.New("fetch failed"), 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("updated", "false", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("none", "false", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lastDuration))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)
}

func TestObserveRunDryRun(t *testing.T) {
	m := New()
	m.ObserveRun("created", true, nil, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("created", "true", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runs.WithLabelValues("created", "false", "success")))
}

func TestObserveRunFailureKeepsLastSuccess(t *testing.T) {
	m := New()
	m.ObserveRun("none", false, errors.New("resolve failed"), time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccess))
}

func TestInstrumentTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	m := New()
	client := &http.Client{Transport: m.InstrumentTransport(srv.Client().Transport)}
	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("418", "get")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun("created", false, nil, time.Second)

	path := filepath.Join(t.TempDir(), "cpddns.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `cpddns_runs_total{action="created",dry_run="false",status="success"} 1`)
	assert.Contains(t, out, "cpddns_last_run_duration_seconds 1")

	n, err := testutil.GatherAndCount(m.registry, "cpddns_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, m.WriteTextfile(""))
}
