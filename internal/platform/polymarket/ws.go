package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// BookHandler receives every normalized top-of-book update.
type BookHandler func(domain.BookUpdate)

// WSClient streams the Polymarket market channel. Each call to Stream owns
// one connection; reconnection is left to the caller.
type WSClient struct {
	wsURL  string
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the CLOB WebSocket endpoint, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
// Malformed events are logged at debug level on logger; nil uses slog.Default.
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "polymarket_ws")),
		dialer: websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Stream dials the market channel, subscribes to the book channel for tokens
// and calls handle for every update until ctx is cancelled, stop is closed or
// the connection fails. It returns nil when stop was closed so the caller
// can resubscribe immediately.
func (w *WSClient) Stream(ctx context.Context, tokens []string, handle BookHandler, stop <-chan struct{}) error {
	conn, _, err := w.dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	cmd := WSCommand{Type: "subscribe", Channel: "book", Assets: tokens}
	if err := writeJSON(conn, cmd); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	stopped := make(chan struct{})
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
				closeConn(conn)
				return
			case <-stop:
				close(stopped)
				closeConn(conn)
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
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
			select {
			case <-stopped:
				return nil
			default:
			}
			return fmt.Errorf("polymarket/ws: read: %w: %v", domain.ErrWSDisconnect, err)
		}

		// A malformed event does not poison the connection; every other event
		// in the frame is still delivered.
		updates, err := DecodeFrame(message)
		if err != nil {
			w.logger.DebugContext(ctx, "skipping malformed market event",
				slog.Int("bytes", len(message)),
				slog.Int("decoded", len(updates)),
				slog.String("error", err.Error()),
			)
		}
		for _, u := range updates {
			handle(u)
		}
	}
}

// writeJSON sends a JSON text frame with a write deadline.
func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// closeConn sends a close frame and closes the socket, unblocking ReadMessage.
func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	conn.Close()
}
