package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeStreamURL(t *testing.T) {
	s := NewTradeStream("", "")
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@trade/ethusdt@trade", s.URL([]string{"BTC", "eth"}))
}

func TestParseTrade(t *testing.T) {
	s := NewTradeStream("", "usdt")

	tick, ok := s.ParseTrade([]byte(`{"e":"trade","E":1,"s":"BTCUSDT","t":9,"p":"97012.50","q":"0.01","T":1767268800123}`))
	require.True(t, ok)
	assert.Equal(t, "BTC", tick.Symbol)
	assert.Equal(t, 97012.50, tick.Price)
	assert.Equal(t, time.UnixMilli(1767268800123).UTC(), tick.Timestamp)

	tick, ok = s.ParseTrade([]byte(`{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT","p":"3400.1","T":1}}`))
	require.True(t, ok)
	assert.Equal(t, "ETH", tick.Symbol)

	for name, raw := range map[string]string{
		"zero price":   `{"e":"trade","s":"BTCUSDT","p":"0"}`,
		"bad price":    `{"e":"trade","s":"BTCUSDT","p":"x"}`,
		"other event":  `{"e":"aggTrade","s":"BTCUSDT","p":"1"}`,
		"no symbol":    `{"e":"trade","p":"1"}`,
		"not json":     `ping`,
		"subscription": `{"result":null,"id":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := s.ParseTrade([]byte(raw))
			assert.False(t, ok)
		})
	}
}

func TestTradeStreamDelivers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"SOLUSDT","p":"180.5","T":1767268800000}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewTradeStream("ws"+strings.TrimPrefix(srv.URL, "http"), "USDT")
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan domain.ReferenceTick, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- s.Stream(ctx, []string{"SOL"}, func(tk domain.ReferenceTick) { ticks <- tk })
	}()

	select {
	case tk := <-ticks:
		assert.Equal(t, "SOL", tk.Symbol)
		assert.Equal(t, 180.5, tk.Price)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick")
	}
	assert.Equal(t, "/ws/solusdt@trade", <-paths)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestTradeStreamNoCoins(t *testing.T) {
	err := NewTradeStream("", "").Stream(context.Background(), nil, func(domain.ReferenceTick) {})
	assert.Error(t, err)
}
