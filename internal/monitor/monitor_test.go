package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/backoff"
	"healthwatch/internal/errs"
	"healthwatch/internal/httpx"
	"healthwatch/internal/models"
)

func testParams() models.Params {
	p := models.DefaultParams()
	p.Interval = 50 * time.Millisecond
	p.Timeout = time.Second
	p.Retries = 0
	return p
}

func newTestMonitor(t *testing.T, params models.Params, services []models.Service) *Monitor {
	t.Helper()
	pool := httpx.NewPool(httpx.PoolOptions{}, false)
	proxies := httpx.NewProxyCache(httpx.PoolOptions{})
	t.Cleanup(func() {
		pool.Destroy()
		proxies.Close()
	})
	return New(params, services, pool, proxies, nil,
		WithRetryBackoff(backoff.Options{InitialDelay: time.Millisecond, Factor: 2}))
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestCycleHealthyService(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"status":"ok","timings":{"total_ms":12},"version":"1.0.0"}`))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "api", URL: srv.URL}})
	agg := mon.RunCycle(context.Background())

	assert.Equal(t, models.StatusOK, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, "api", agg.Results[0].Name)
	require.NotNil(t, agg.Results[0].LatencyMS)
	assert.Equal(t, 12.0, *agg.Results[0].LatencyMS)
	assert.Equal(t, "1.0.0", agg.Results[0].Version)
}

func TestCyclePayloadLatencyWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"ok","timings":{"total_ms":110}}`))
	}))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "slow", URL: srv.URL}})
	agg := mon.RunCycle(context.Background())

	require.Len(t, agg.Results, 1)
	require.NotNil(t, agg.Results[0].LatencyMS)
	assert.Equal(t, 110.0, *agg.Results[0].LatencyMS)
}

func TestCycleMissingStatusPolicy(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"version":"2.0.0"}`))
	defer srv.Close()

	params := testParams()
	params.MissingStatus = models.StatusDegraded
	mon := newTestMonitor(t, params, []models.Service{{Name: "legacy", URL: srv.URL}})

	agg := mon.RunCycle(context.Background())
	assert.Equal(t, models.StatusDegraded, agg.Status)
	assert.Equal(t, "2.0.0", agg.Results[0].Version)
}

func TestCycleTruncatedBodyIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"`))
	}))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "flaky", URL: srv.URL}})
	agg := mon.RunCycle(context.Background())

	assert.Equal(t, models.StatusDown, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.NotEmpty(t, agg.Results[0].Error)
}

func TestCycleMixedFleet(t *testing.T) {
	okSrv := httptest.NewServer(jsonHandler(`{"status":"ok","timings":{"total_ms":10}}`))
	defer okSrv.Close()
	degradedSrv := httptest.NewServer(jsonHandler(`{"status":"degraded","timings":{"total_ms":90}}`))
	defer degradedSrv.Close()
	downSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer downSrv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{
		{Name: "api", URL: okSrv.URL},
		{Name: "auth", URL: degradedSrv.URL},
		{Name: "search", URL: downSrv.URL},
	})
	agg := mon.RunCycle(context.Background())

	assert.Equal(t, models.StatusDown, agg.Status)
	require.Len(t, agg.Results, 3)

	byName := map[string]models.ServiceResult{}
	for _, r := range agg.Results {
		byName[r.Name] = r
	}
	assert.Equal(t, models.StatusOK, byName["api"].Status)
	assert.Equal(t, models.StatusDegraded, byName["auth"].Status)
	assert.Equal(t, models.StatusDown, byName["search"].Status)
	assert.NotNil(t, byName["api"].LatencyMS)
	assert.NotNil(t, byName["auth"].LatencyMS)
}

func TestRetriesExhaustedSurfaceLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":`)) // always truncated
	}))
	defer srv.Close()

	params := testParams()
	params.Retries = 3
	mon := newTestMonitor(t, params, []models.Service{{Name: "api", URL: srv.URL}})

	agg := mon.RunCycle(context.Background())
	assert.Equal(t, models.StatusDown, agg.Status)
	assert.Equal(t, int32(4), calls.Load())
	require.Len(t, agg.Results, 1)
	assert.Contains(t, agg.Results[0].Error, "attempt=4")
}

func TestRetrySucceedsMidway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"broken`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	params := testParams()
	params.Retries = 3
	mon := newTestMonitor(t, params, []models.Service{{Name: "api", URL: srv.URL}})

	agg := mon.RunCycle(context.Background())
	assert.Equal(t, models.StatusOK, agg.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExpectationMismatch(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"status":"degraded"}`))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{
		{Name: "api", URL: srv.URL, ExpectStatus: "ok"},
	})
	agg := mon.RunCycle(context.Background())

	assert.Equal(t, models.StatusDown, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.Contains(t, agg.Results[0].Error, "Expected ok, received degraded")
}

func TestServiceBackoffWidensInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "api", URL: srv.URL}})

	// first failure: multiplier stays 1, probed again next cycle
	agg := mon.RunCycle(context.Background())
	require.Len(t, agg.Results, 1)
	assert.Equal(t, 1, mon.Multiplier("api"))

	// second failure escalates to 2: the service skips one tick
	mon.RunCycle(context.Background())
	assert.Equal(t, 2, mon.Multiplier("api"))

	before := len(mon.Store().History("api"))
	mon.RunCycle(context.Background()) // skipped tick
	assert.Len(t, mon.Store().History("api"), before)
	mon.RunCycle(context.Background()) // due again
	assert.Len(t, mon.Store().History("api"), before+1)
}

func TestRecoveryResetsMultiplier(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "api", URL: srv.URL}})

	mon.RunCycle(context.Background())
	mon.RunCycle(context.Background())
	require.Equal(t, 2, mon.Multiplier("api"))

	healthy.Store(true)
	mon.RunCycle(context.Background()) // skipped: countdown from the widened interval
	mon.RunCycle(context.Background()) // probed, recovers
	assert.Equal(t, 1, mon.Multiplier("api"))

	latest, ok := mon.Store().Latest("api")
	require.True(t, ok)
	assert.Equal(t, models.StatusOK, latest.Status)
}

func TestProbeErrorsDoNotEscape(t *testing.T) {
	mon := newTestMonitor(t, testParams(), []models.Service{
		{Name: "gone", URL: "http://127.0.0.1:1/health"},
	})
	agg := mon.RunCycle(context.Background())

	assert.Equal(t, models.StatusDown, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.NotEmpty(t, agg.Results[0].Error)

	latest, ok := mon.Store().Latest("gone")
	require.True(t, ok)
	var probeErr *errs.ProbeError
	require.ErrorAs(t, latest.Error, &probeErr)
	assert.Equal(t, "gone", probeErr.ServiceName)
}

func TestSubscribersReceiveAggregates(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"status":"ok"}`))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "api", URL: srv.URL}})

	got := make(chan models.AggregateResult, 1)
	mon.Subscribe(func(agg models.AggregateResult) {
		got <- agg
	})
	mon.RunCycle(context.Background())

	select {
	case agg := <-got:
		assert.Equal(t, models.StatusOK, agg.Status)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the aggregate")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"status":"ok"}`))
	defer srv.Close()

	mon := newTestMonitor(t, testParams(), []models.Service{{Name: "api", URL: srv.URL}})

	var cycles atomic.Int32
	mon.Subscribe(func(models.AggregateResult) { cycles.Add(1) })

	mon.Start()
	require.Eventually(t, func() bool { return cycles.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	mon.Stop()

	after := cycles.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, after, cycles.Load())
}

func TestMergeHeaders(t *testing.T) {
	var gotAuth, gotEnv atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotEnv.Store(r.Header.Get("X-Env"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	params := testParams()
	params.Headers = map[string]string{"Authorization": "Bearer global", "X-Env": "prod"}
	mon := newTestMonitor(t, params, []models.Service{
		{Name: "api", URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer svc"}},
	})
	mon.RunCycle(context.Background())

	assert.Equal(t, "Bearer svc", gotAuth.Load())
	assert.Equal(t, "prod", gotEnv.Load())
}
