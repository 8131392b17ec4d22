// Package websocket streams committed ledger events to indexers and reads
// that stream back.
package websocket

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"go.uber.org/zap"
)

// HubConfig holds event hub configuration.
type HubConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected.
	SendBuffer int
	Logger     *zap.Logger
}

// DefaultHubConfig returns the default hub settings.
func DefaultHubConfig(logger *zap.Logger) HubConfig {
	return HubConfig{
		PingInterval: 10 * time.Second,
		PongTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   256,
		Logger:       logger,
	}
}

// Hub fans out events to every connected client. A client may restrict
// its stream to one market with the market query parameter.
type Hub struct {
	cfg      HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn      *websocket.Conn
	marketID  string
	send      chan []byte
	done      chan struct{}
	once      sync.Once
	connected time.Time
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates an event hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish queues ev for every client subscribed to its market.
func (h *Hub) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event-encode-failed", zap.Error(err), zap.Uint64("seq", ev.Seq))
		MessagesDroppedTotal.WithLabelValues("encode_error").Inc()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.marketID != "" && c.marketID != ev.MarketID {
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.logger.Warn("slow-stream-client-disconnected",
				zap.String("remote", c.conn.RemoteAddr().String()))
			MessagesDroppedTotal.WithLabelValues("slow_consumer").Inc()
			c.close()
		}
	}
	EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client
// leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket-upgrade-failed", zap.Error(err))
		return
	}

	c := &client{
		conn:      conn,
		marketID:  r.URL.Query().Get("market"),
		send:      make(chan []byte, h.cfg.SendBuffer),
		done:      make(chan struct{}),
		connected: time.Now(),
	}

	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	h.logger.Info("stream-client-connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("market-id", c.marketID))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	ActiveConnections.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	c.close()

	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	ActiveConnections.Set(float64(n))
	ConnectionDuration.Observe(time.Since(c.connected).Seconds())
	h.logger.Info("stream-client-disconnected", zap.Int("remaining", n))
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	if h.cfg.PongTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		})
	}

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			h.logger.Debug("stream-read-ended", zap.Error(err))
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	var tick <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if h.cfg.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			}
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			if err != nil {
				h.logger.Warn("stream-write-error", zap.Error(err))
				c.close()
				return
			}
		case <-tick:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			if err != nil {
				h.logger.Warn("ping-error", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.logger.Info("closing-event-hub")

	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}

	h.logger.Info("event-hub-closed")
	return nil
}
