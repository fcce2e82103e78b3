package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/risk"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/supervisor"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedSource struct{ st supervisor.Status }

func (f fixedSource) Latest() supervisor.Status { return f.st }

type fixedStats struct{}

func (fixedStats) DailyStats(_ context.Context, day time.Time) (domain.DailyStats, error) {
	return domain.DailyStats{Date: day.Format(time.DateOnly), TotalTrades: 3, TotalPnL: 1.25}, nil
}

func newTestServer(t *testing.T, cfg Config, hub *ws.Hub) *httptest.Server {
	t.Helper()
	gate := risk.New(risk.DefaultConfig(), discard())
	gate.RegisterTrade(risk.Fill{
		Strategy: "momentum", InstrumentID: "c1", TokenID: "up", Outcome: domain.OutcomeUp,
		Side: domain.OrderSideBuy, Price: 0.5, Shares: 20, Notional: 10,
	})
	sources := []handler.StatusSource{fixedSource{st: supervisor.Status{Strategy: "momentum"}}}
	srv := NewServer(cfg, Handlers{
		Health: handler.NewHealthHandler("paper"),
		Status: handler.NewStatusHandler("paper", sources, gate, fixedStats{}, discard()),
	}, hub, discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: "k"}, nil)
	resp, body := get(t, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "paper", out["mode"])
}

func TestStatusRequiresKey(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: "k"}, nil)

	resp, _ := get(t, ts.URL+"/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/api/status", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := get(t, ts.URL+"/api/status", map[string]string{"Authorization": "Bearer k"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Mode       string              `json:"mode"`
		Risk       risk.Status         `json:"risk"`
		Strategies []supervisor.Status `json:"strategies"`
		Daily      *domain.DailyStats  `json:"daily"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "paper", out.Mode)
	assert.Equal(t, 1, out.Risk.Positions)
	require.Len(t, out.Strategies, 1)
	assert.Equal(t, "momentum", out.Strategies[0].Strategy)
	require.NotNil(t, out.Daily)
	assert.Equal(t, 3, out.Daily.TotalTrades)
}

func TestPositions(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	resp, body := get(t, ts.URL+"/api/positions", map[string]string{"X-API-Key": "ignored"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Positions []risk.Entry `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Positions, 1)
	assert.Equal(t, "c1", out.Positions[0].InstrumentID)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: "k"}, nil)
	resp, body := get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "updown_open_positions")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RequestsPerSec: 0.001, Burst: 1}, nil)
	resp, _ := get(t, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestWebSocketStreamsStatusFrames(t *testing.T) {
	hub := ws.NewHub(nil, discard(), ws.Config{Mode: "paper", Strategies: []string{"momentum"}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	ts := newTestServer(t, Config{}, hub)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	channel, payload, err := ws.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "bot_status", channel)
	assert.Equal(t, "paper", payload["mode"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	report, err := json.Marshal(supervisor.Status{Strategy: "momentum", ReferenceTicks: 42})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(ctx, supervisor.StatusChannel("momentum"), report))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	channel, payload, err = ws.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "updown:status:momentum", channel)
	assert.Equal(t, "momentum", payload["strategy"])
	assert.Equal(t, float64(42), payload["reference_ticks"])
}
