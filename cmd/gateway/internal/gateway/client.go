package gateway

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/quote-stream/pkg/config"
)

const maxControlPayload = 125

// Compile-time check to ensure ClientAdapter can be registered with the hub
var _ hub.Conn = (*ClientAdapter)(nil)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// ClientAdapter owns one upgraded websocket connection: a read loop feeding the
// hub and a write loop draining the send buffer.
type ClientAdapter struct {
	id     string
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	// pongs carries ping payloads to echo; writePump is the only writer
	pongs  chan []byte
	logger *zap.Logger
	opts   Options

	mu     sync.Mutex
	closed bool
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, opts Options) *ClientAdapter {
	id := uuid.NewString()
	return &ClientAdapter{
		id:     id,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, opts.SendBuffer),
		pongs:  make(chan []byte, 4),
		logger: logger.With(zap.String("conn", id), zap.String("remote", conn.RemoteAddr().String())),
		opts:   opts,
	}
}

// Start registers the client and spawns its pumps. ctx bounds upstream fetches
// made on the client's behalf and should live as long as the server.
func (c *ClientAdapter) Start(ctx context.Context) error {
	if err := c.hub.Connect(c); err != nil {
		c.conn.Close()
		return err
	}
	go c.writePump()
	go c.readPump(ctx)
	return nil
}

func (c *ClientAdapter) ID() string { return c.id }

// Send queues b without blocking. Safe after Close.
func (c *ClientAdapter) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return hub.ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return hub.ErrSendBufferFull
	}
}

// Close only closes the channel; writePump sends the close frame and closes conn.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *ClientAdapter) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}

		if header.Length > c.opts.MaxMessageSize {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			c.queuePong(payload)
		case ws.OpText:
			// Handled inline so one client's commands apply in the order sent.
			c.hub.HandleMessage(ctx, c, payload)
		}
	}
}

// queuePong never blocks the read loop; a full queue drops the reply.
func (c *ClientAdapter) queuePong(payload []byte) {
	if len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	select {
	case c.pongs <- payload:
	default:
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				c.hub.Disconnect(c)
				return
			}

		case payload := <-c.pongs:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPong, payload); err != nil {
				c.hub.Disconnect(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				c.hub.Disconnect(c)
				return
			}
		}
	}
}
