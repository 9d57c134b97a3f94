package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket timeouts
const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 30 * time.Second
	wsReconnectMin     = 1 * time.Second
	wsReconnectMax     = 30 * time.Second
)

// WSConfig holds WebSocket connection settings
type WSConfig struct {
	URL          string
	Headers      http.Header
	PingDisabled bool          // Set true if server sends pings
	PingInterval time.Duration // Custom ping interval (0 = default 30s)
	ReadTimeout  time.Duration // Custom read timeout (0 = default 60s)
	ReconnectMin time.Duration // First reconnect delay (0 = default 1s)
}

// WSHandler defines callbacks for WebSocket events
type WSHandler struct {
	// OnConnect is called after connection is established (optional)
	OnConnect func(conn *websocket.Conn) error

	// OnMessage processes one incoming frame. Errors are logged and the
	// frame is skipped; they never tear down the connection.
	OnMessage func(msg []byte) error

	// OnStatus is told when the connection goes up or down (optional)
	OnStatus func(connected bool)
}

// WSClient manages a WebSocket connection with auto-reconnect
type WSClient struct {
	config  WSConfig
	handler WSHandler
	logger  *logrus.Logger
	mu      sync.Mutex
}

// NewWSClient creates a new WebSocket client
func NewWSClient(config WSConfig, handler WSHandler, logger *logrus.Logger) *WSClient {
	if config.PingInterval == 0 {
		config.PingInterval = wsPingInterval
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = wsReadTimeout
	}
	if config.ReconnectMin == 0 {
		config.ReconnectMin = wsReconnectMin
	}

	return &WSClient{
		config:  config,
		handler: handler,
		logger:  logger,
	}
}

// Run starts the WebSocket connection with auto-reconnect.
// Blocks until context is cancelled.
func (c *WSClient) Run(ctx context.Context) error {
	reconnectDelay := c.config.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.connect(ctx)
		c.status(false)
		if err == nil {
			reconnectDelay = c.config.ReconnectMin
			continue
		}

		// Don't log if shutting down
		if ctx.Err() != nil {
			return nil
		}

		c.logger.WithFields(logrus.Fields{
			"url":   c.config.URL,
			"delay": reconnectDelay,
		}).WithError(err).Warn("WebSocket disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}

		reconnectDelay *= 2
		if reconnectDelay > wsReconnectMax {
			reconnectDelay = wsReconnectMax
		}
	}
}

// connect establishes a single WebSocket connection
func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, c.config.Headers)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	c.logger.WithField("url", c.config.URL).Info("WebSocket connected")

	conn.SetPongHandler(func(string) error { return nil })

	if c.handler.OnConnect != nil {
		if err := c.handler.OnConnect(conn); err != nil {
			return fmt.Errorf("onConnect failed: %w", err)
		}
	}
	c.status(true)

	return c.readLoop(ctx, conn)
}

// readLoop handles reading messages and sending pings
func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	messages := make(chan []byte, 100)
	readErr := make(chan error, 1)

	go func() {
		defer close(messages)
		for {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErr <- err:
				default:
				}
				return
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	var pingChan <-chan time.Time
	if !c.config.PingDisabled {
		pingTicker := time.NewTicker(c.config.PingInterval)
		defer pingTicker.Stop()
		pingChan = pingTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			return fmt.Errorf("read error: %w", err)

		case msg, ok := <-messages:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("read error: %w", err)
				default:
					return nil
				}
			}
			if c.handler.OnMessage == nil {
				continue
			}
			if err := c.handler.OnMessage(msg); err != nil {
				c.logger.WithError(err).Debug("OnMessage error")
			}

		case <-pingChan:
			c.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// WriteJSON sends a JSON message (thread-safe)
func (c *WSClient) WriteJSON(conn *websocket.Conn, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (c *WSClient) status(connected bool) {
	if c.handler.OnStatus != nil {
		c.handler.OnStatus(connected)
	}
}
