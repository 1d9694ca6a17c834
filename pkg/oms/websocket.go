package oms

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeat = 30 * time.Second
	writeWait        = 10 * time.Second
)

// MessageHandler receives every text frame read from the connection.
type MessageHandler func(raw []byte)

// Connector keeps one market data WebSocket session. It pings the server on
// a fixed heartbeat and marks itself disconnected on the first read or ping
// failure; reconnecting is left to the owner.
type Connector struct {
	url       string
	token     string
	heartbeat time.Duration
	dialer    websocket.Dialer
	handler   MessageHandler
	logger    *logrus.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}

	writeMu sync.Mutex
}

func NewConnector(url, token string, handler MessageHandler, logger *logrus.Logger) *Connector {
	return &Connector{
		url:       url,
		token:     token,
		heartbeat: DefaultHeartbeat,
		dialer:    websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handler:   handler,
		logger:    logger,
	}
}

// SetToken replaces the token sent on the next Connect.
func (c *Connector) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetHandler replaces the function receiving text frames.
func (c *Connector) SetHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetHeartbeat changes the ping interval used by the next Connect.
func (c *Connector) SetHeartbeat(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.heartbeat = d
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("X-Auth-Token", c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect websocket: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("connect websocket: %w", err)
	}

	readWait := 2*c.heartbeat + writeWait
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})

	go c.readLoop(conn, readWait)
	go c.keepAlive(ctx, conn, c.done, c.heartbeat)

	c.logger.WithField("url", c.url).Info("WebSocket connected")
	return nil
}

func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed when the current session ends. It is nil before the first
// Connect.
func (c *Connector) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Send writes v as a JSON text frame.
func (c *Connector) Send(v any) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		c.disconnect(conn, err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Subscribe sends each subscription in order and stops at the first failure.
func (c *Connector) Subscribe(subs []Subscription) error {
	for i, sub := range subs {
		if err := c.Send(sub); err != nil {
			return fmt.Errorf("subscription %d/%d: %w", i+1, len(subs), err)
		}
		c.logger.WithField("products", len(sub.Products)).Debug("Subscription sent")
	}
	return nil
}

// Close ends the session with a normal closure frame.
func (c *Connector) Close() error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if !connected {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.disconnect(conn, nil)
	return nil
}

func (c *Connector) readLoop(conn *websocket.Conn, readWait time.Duration) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.disconnect(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if kind != websocket.TextMessage {
			continue
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(data)
		}
	}
}

func (c *Connector) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.disconnect(conn, nil)
			return
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.WithError(err).Error("Failed to send ping")
				c.disconnect(conn, err)
				return
			}
		}
	}
}

// disconnect tears down conn if it is still the current session.
func (c *Connector) disconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn || !c.connected {
		return
	}
	c.connected = false
	close(c.done)
	_ = conn.Close()

	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.logger.WithError(cause).Warn("WebSocket disconnected")
	} else {
		c.logger.Info("WebSocket closed")
	}
}
