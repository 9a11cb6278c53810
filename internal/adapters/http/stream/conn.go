// Package stream serves relay envelopes to websocket clients.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/arena/pkg/logger"
)

// Sentinel kinds for stream errors.
var (
	ErrConnClosed = errors.New("connection closed")
	ErrSlowClient = errors.New("client send buffer full")
)

// Conn adapts a websocket to relay.Conn. A single writer goroutine owns all
// writes; Send only queues.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	stopped      chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       logger.Logger
}

func newConn(ws *websocket.Conn, h *Handler) *Conn {
	return &Conn{
		ws:           ws,
		send:         make(chan []byte, h.sendBuffer),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		writeTimeout: h.writeTimeout,
		pingInterval: h.pingInterval,
		logger:       h.logger,
	}
}

// Send queues payload for the client. It fails instead of blocking when the
// client is not keeping up.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSlowClient
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.stopped)
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug(ctx, "websocket write failed", logger.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// readLoop discards client frames until the socket fails or closes. Reading
// is what processes pongs and close frames.
func (c *Conn) readLoop() {
	pongWait := 2 * c.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}
