// Package binance streams spot trade prints used as the reference price for
// up/down markets.
package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultHost is the public spot stream endpoint.
	DefaultHost = "wss://stream.binance.com:9443"
	// DefaultQuote is the quote asset appended to every coin.
	DefaultQuote = "USDT"
)

// TickHandler receives every parsed trade.
type TickHandler func(domain.ReferenceTick)

// tradeMessage is a raw <symbol>@trade event.
type tradeMessage struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// TradeStream connects to the raw trade streams for a set of coins. Each call
// to Stream owns one connection; reconnection is left to the caller.
type TradeStream struct {
	host   string
	quote  string
	dialer websocket.Dialer
}

// NewTradeStream creates a stream client. Empty host or quote select the
// defaults.
func NewTradeStream(host, quote string) *TradeStream {
	if host == "" {
		host = DefaultHost
	}
	if quote == "" {
		quote = DefaultQuote
	}
	return &TradeStream{
		host:   strings.TrimRight(host, "/"),
		quote:  strings.ToUpper(quote),
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// URL returns the combined raw-stream URL for coins, e.g.
// wss://stream.binance.com:9443/ws/btcusdt@trade/ethusdt@trade.
func (s *TradeStream) URL(coins []string) string {
	streams := make([]string, 0, len(coins))
	for _, c := range coins {
		streams = append(streams, strings.ToLower(c+s.quote)+"@trade")
	}
	return s.host + "/ws/" + strings.Join(streams, "/")
}

// Stream dials the trade streams for coins and calls handle for every trade
// until ctx is cancelled or the connection fails.
func (s *TradeStream) Stream(ctx context.Context, coins []string, handle TickHandler) error {
	if len(coins) == 0 {
		return fmt.Errorf("binance: no coins to stream")
	}
	conn, _, err := s.dialer.DialContext(ctx, s.URL(coins), nil)
	if err != nil {
		return fmt.Errorf("binance: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// The server pings every few minutes and expects the payload echoed.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		tick, ok := s.ParseTrade(message)
		if ok {
			handle(tick)
		}
	}
}

// ParseTrade decodes a trade event, accepting both the raw form and the
// {"stream":...,"data":...} envelope. The quote asset is stripped from the
// symbol. Non-trade events and non-positive prices are rejected.
func (s *TradeStream) ParseTrade(raw []byte) (domain.ReferenceTick, bool) {
	raw = bytes.TrimSpace(raw)
	var env struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ReferenceTick{}, false
	}
	if env.Stream != "" && len(env.Data) > 0 {
		raw = env.Data
	}

	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.ReferenceTick{}, false
	}
	if msg.Event != "" && msg.Event != "trade" {
		return domain.ReferenceTick{}, false
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return domain.ReferenceTick{}, false
	}
	symbol := strings.TrimSuffix(strings.ToUpper(msg.Symbol), s.quote)
	if symbol == "" {
		return domain.ReferenceTick{}, false
	}

	ts := time.Now().UTC()
	if msg.TradeTime > 0 {
		ts = time.UnixMilli(msg.TradeTime).UTC()
	}
	return domain.ReferenceTick{Symbol: symbol, Price: price, Timestamp: ts}, true
}
