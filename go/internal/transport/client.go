package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// Handler receives every decoded inbound envelope.
type Handler func(protocol.Envelope)

// ClientConfig holds configuration for a websocket client connection.
type ClientConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultClientConfig returns default websocket client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 64,
	}
}

// Client is one websocket connection to the session gateway. Inbound frames
// are decoded into envelopes at this boundary and handed to the handler;
// outbound envelopes go through a buffered send channel and a single writer
// goroutine.
type Client struct {
	conn    *websocket.Conn
	config  ClientConfig
	handler Handler

	send      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway and starts the read/write pumps.
func Dial(ctx context.Context, url string, config ClientConfig, handler Handler) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := &Client{
		conn:    conn,
		config:  config,
		handler: handler,
		send:    make(chan protocol.Envelope, config.SendBufferSize),
		done:    make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	log.Info().Str("url", url).Msg("connected to gateway")
	return c, nil
}

// Send queues an envelope for the writer goroutine. A full buffer fails
// fast rather than blocking the caller's event loop.
func (c *Client) Send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}

	select {
	case c.send <- env:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Done is closed when the connection has terminated for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump owns all writes to the connection, including keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case env := <-c.send:
			data, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Str("type", string(env.Type)).Msg("failed to marshal envelope")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("failed to write to gateway")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump decodes inbound frames and forwards them to the handler.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.handler(env)
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
