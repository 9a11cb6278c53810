package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/arena/internal/adapters/relay"
	"github.com/okian/arena/pkg/logger"
)

const (
	defaultSendBuffer   = 256
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxClientFrame      = 4096
)

// Registrar is the relay side of a stream.
type Registrar interface {
	Register(conn relay.Conn) (relay.Handle, error)
	Unregister(id relay.Handle)
}

// Handler upgrades GET /ws and attaches the socket to the relay for the
// lifetime of the connection.
type Handler struct {
	hub          Registrar
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       logger.Logger
}

// NewHandler creates a stream handler on hub.
func NewHandler(hub Registrar, opts ...Option) *Handler {
	h := &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		logger:       logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP blocks until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	ws.SetReadLimit(maxClientFrame)

	c := newConn(ws, h)
	go c.writeLoop(context.WithoutCancel(ctx))

	id, err := h.hub.Register(c)
	if err != nil {
		h.logger.Warn(ctx, "relay refused connection", logger.Error(err))
		_ = c.Close()
		<-c.stopped
		return
	}
	h.logger.Debug(ctx, "stream connected", logger.String("handle", string(id)))

	c.readLoop()

	h.hub.Unregister(id)
	_ = c.Close()
	<-c.stopped
	h.logger.Debug(ctx, "stream disconnected", logger.String("handle", string(id)))
}
