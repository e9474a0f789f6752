package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// InstanceHost attaches a newly connected web context and serves it until
// the connection drops. Implemented by the actions manager.
type InstanceHost interface {
	HandleConn(ctx context.Context, conn Conn, remoteAddr string)
}

// DefaultWriteTimeout bounds a single websocket write. A peer that stops
// reading fails the write instead of pinning the instance's write loop.
const DefaultWriteTimeout = 10 * time.Second

// wsConn adapts a gorilla websocket connection to Conn. Frames are text
// frames carrying one JSON envelope each.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) Read() ([]byte, error) {
	_, p, err := c.ws.ReadMessage()
	return p, err
}

func (c *wsConn) Write(p []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, p)
}

func (c *wsConn) Close() error { return c.ws.Close() }

// WebSocketHandler upgrades HTTP requests on the bridge endpoint and hands
// each resulting connection to the host. The NTP web content is served from
// the same origin, so cross-origin upgrades are refused by the default
// origin check.
type WebSocketHandler struct {
	host         InstanceHost
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	writeTimeout time.Duration
}

// WebSocketOption configures a WebSocketHandler.
type WebSocketOption func(*WebSocketHandler)

// WithWebSocketLogger sets a custom logger for the handler.
func WithWebSocketLogger(l *slog.Logger) WebSocketOption {
	return func(h *WebSocketHandler) { h.logger = l }
}

// WithCheckOrigin overrides the upgrader's origin check. Tests and local
// development pass func(*http.Request) bool { return true }.
func WithCheckOrigin(f func(*http.Request) bool) WebSocketOption {
	return func(h *WebSocketHandler) { h.upgrader.CheckOrigin = f }
}

// WithWriteTimeout overrides the per-write deadline on bridge connections.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(h *WebSocketHandler) { h.writeTimeout = d }
}

// NewWebSocketHandler returns the http.Handler for the bridge endpoint.
func NewWebSocketHandler(host InstanceHost, opts ...WebSocketOption) *WebSocketHandler {
	h := &WebSocketHandler{
		host: host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.host.HandleConn(r.Context(), &wsConn{ws: ws, writeTimeout: h.writeTimeout}, r.RemoteAddr)
}
