package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cachesync/internal/runner"
)

func TestHealthz(t *testing.T) {
	mux := newMux(prom.NewRegistry(), func() *runner.Result { return nil })
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusBeforeFirstRun(t *testing.T) {
	mux := newMux(prom.NewRegistry(), func() *runner.Result { return nil })
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusReturnsLastRun(t *testing.T) {
	res := &runner.Result{
		RunID:   "run-1",
		Trigger: runner.TriggerSchedule,
		Outcome: runner.OutcomePushFailed,
	}
	mux := newMux(prom.NewRegistry(), func() *runner.Result { return res })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got runner.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, runner.OutcomePushFailed, got.Outcome)
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newMux(prom.NewRegistry(), func() *runner.Result { return nil })
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
