// Package ws streams status reports to dashboard clients as binary protobuf
// frames (google.protobuf.Struct).
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/metrics"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 64
)

// DefaultChannels is what a new client is subscribed to.
var DefaultChannels = []string{"updown:status:*"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg is the JSON text frame a client sends to change its
// subscriptions.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// Config holds the metadata sent to clients on connect, and the bus
// channels the hub relays when a SignalBus is attached.
type Config struct {
	Mode       string
	Strategies []string
	Channels   []string
	StartedAt  time.Time
}

type frame struct {
	channel string
	data    []byte
}

// Hub fans status frames out to connected WebSocket clients. Frames come
// from Publish or, when a bus is attached, from the bus channels.
type Hub struct {
	cfg    Config
	bus    domain.SignalBus
	logger *slog.Logger

	broadcast  chan frame
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		cfg:        cfg,
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		broadcast:  make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
	}
}

// Encode wraps a JSON payload as a protobuf Struct {channel, payload}.
func Encode(channel string, payload []byte) ([]byte, error) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("ws: decode payload: %w", err)
	}
	msg, err := structpb.NewStruct(map[string]any{
		"channel": channel,
		"payload": body,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: build frame: %w", err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ws: encode frame: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (string, map[string]any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return "", nil, fmt.Errorf("ws: decode frame: %w", err)
	}
	m := msg.AsMap()
	channel, _ := m["channel"].(string)
	payload, _ := m["payload"].(map[string]any)
	return channel, payload, nil
}

// Publish queues a JSON payload for every client subscribed to channel. It
// never blocks; a full queue drops the frame.
func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	data, err := Encode(channel, payload)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- frame{channel: channel, data: data}:
		return nil
	default:
		return fmt.Errorf("ws: broadcast queue full, dropped %s", channel)
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range h.cfg.Channels {
			go h.relay(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Info("client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(f.channel) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					h.logger.Warn("dropping frame for slow client", slog.String("channel", f.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one bus channel (or pattern) to the clients. Pattern
// subscriptions do not report the concrete channel, so frames are tagged with
// the subscription itself.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	h.logger.Info("relaying bus channel", slog.String("channel", channel))
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			if err := h.Publish(ctx, channel, payload); err != nil {
				h.logger.Debug("relay dropped", slog.String("error", err.Error()))
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range DefaultChannels {
		c.subs[ch] = true
	}

	c.sendHello()
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// sendHello queues a bot_status frame so a client sees the connection is
// live before the first report.
func (c *client) sendHello() {
	uptime := time.Since(c.hub.cfg.StartedAt).Seconds()
	payload, err := json.Marshal(map[string]any{
		"mode":       c.hub.cfg.Mode,
		"strategies": c.hub.cfg.Strategies,
		"uptime_s":   max(uptime, 0),
	})
	if err != nil {
		return
	}
	data, err := Encode("bot_status", payload)
	if err != nil {
		return
	}
	c.send <- data
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// isSubscribed matches exact names and trailing-* prefixes.
func (c *client) isSubscribed(channel string) bool {
	if channel == "bot_status" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
