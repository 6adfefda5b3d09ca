package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/httpx"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
)

func testServer(t *testing.T) (*Server, *monitor.Monitor, *httptest.Server) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","timings":{"total_ms":7},"region":"eu-1"}`))
	}))
	t.Cleanup(backend.Close)

	pool := httpx.NewPool(httpx.PoolOptions{}, false)
	proxies := httpx.NewProxyCache(httpx.PoolOptions{})
	t.Cleanup(func() {
		pool.Destroy()
		proxies.Close()
	})

	params := models.DefaultParams()
	params.Timeout = time.Second
	mon := monitor.New(params, []models.Service{{Name: "api", URL: backend.URL}}, pool, proxies, nil)

	srv := New(":0", mon, nil)
	web := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(web.Close)
	return srv, mon, web
}

func TestStatusEndpoint(t *testing.T) {
	_, mon, web := testServer(t)

	resp, err := http.Get(web.URL + "/api/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":null`)

	mon.RunCycle(context.Background())

	resp, err = http.Get(web.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var agg models.AggregateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agg))
	assert.Equal(t, models.StatusOK, agg.Status)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, "eu-1", agg.Results[0].Region)
}

func TestMetricsEndpoint(t *testing.T) {
	_, mon, web := testServer(t)
	mon.RunCycle(context.Background())

	resp, err := http.Get(web.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	out := string(body)
	assert.Contains(t, out, `health_status{region="eu-1",service="api"} 1`)
	assert.Contains(t, out, `health_latency_ms{region="eu-1",service="api"} 7`)
	assert.Contains(t, out, "health_scrape_timestamp_ms")
}

func TestUptimeEndpoint(t *testing.T) {
	_, mon, web := testServer(t)
	mon.RunCycle(context.Background())

	resp, err := http.Get(web.URL + "/api/uptime")
	require.NoError(t, err)
	defer resp.Body.Close()

	var summaries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "api", summaries[0]["name"])
	assert.Equal(t, 100.0, summaries[0]["uptime_percent"])
}

func TestHistoryEndpoint(t *testing.T) {
	_, mon, web := testServer(t)

	resp, err := http.Get(web.URL + "/api/history")
	require.NoError(t, err)
	var history []models.AggregateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	resp.Body.Close()
	assert.Empty(t, history)

	mon.RunCycle(context.Background())
	mon.RunCycle(context.Background())
	mon.RunCycle(context.Background())

	resp, err = http.Get(web.URL + "/api/history")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	resp.Body.Close()

	require.Len(t, history, 3)
	for _, agg := range history {
		assert.Equal(t, models.StatusOK, agg.Status)
		require.Len(t, agg.Results, 1)
		assert.Equal(t, "api", agg.Results[0].Name)
	}
	// oldest first
	assert.False(t, history[0].CompletedAt.After(history[2].CompletedAt))
}

func TestHistoryEndpointLimit(t *testing.T) {
	_, mon, web := testServer(t)
	for i := 0; i < 5; i++ {
		mon.RunCycle(context.Background())
	}

	resp, err := http.Get(web.URL + "/api/history?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var history []models.AggregateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Len(t, history, 2)
}

func TestWebsocketPush(t *testing.T) {
	_, mon, web := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(web.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	mon.RunCycle(context.Background())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var agg models.AggregateResult
	require.NoError(t, conn.ReadJSON(&agg))
	assert.Equal(t, models.StatusOK, agg.Status)
}
