package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/protocol"
	"github.com/mcdev12/partyhub/go/internal/statesync"
	"github.com/mcdev12/partyhub/go/internal/transport"
)

// Role selects which surface this client presents as to the gateway.
type Role string

const (
	RoleDisplay Role = "display"
	RoleHost    Role = "host"
	RolePlayer  Role = "player"
)

// Config holds everything needed to keep one client attached to a room.
type Config struct {
	GatewayURL string // base websocket URL, e.g. "ws://localhost:8080/ws/room"
	RoomID     string
	Role       Role
	PlayerID   string
	Name       string
	Avatar     string

	Transport transport.ClientConfig
	Session   statesync.SessionConfig

	ReconnectWait    time.Duration
	MaxReconnectWait time.Duration
}

// DefaultConfig returns client defaults for a given room and role.
func DefaultConfig(gatewayURL, roomID string, role Role) Config {
	return Config{
		GatewayURL:       gatewayURL,
		RoomID:           roomID,
		Role:             role,
		Transport:        transport.DefaultClientConfig(),
		Session:          statesync.SessionConfig{NewPlayerTTL: statesync.DefaultNewPlayerTTL},
		ReconnectWait:    time.Second,
		MaxReconnectWait: 30 * time.Second,
	}
}

// Client keeps a session attached to a room across connection drops. The
// session (and with it the snapshot version) survives reconnects; only the
// transport connection is replaced.
type Client struct {
	config  Config
	session *statesync.Session

	mu   sync.Mutex
	conn *transport.Client
}

// New creates a client. The session starts detached; Run establishes and
// maintains the connection.
func New(config Config) (*Client, error) {
	if config.RoomID == "" {
		return nil, fmt.Errorf("room id is required")
	}
	if config.Role == RolePlayer && config.Name == "" {
		return nil, fmt.Errorf("player name is required")
	}

	c := &Client{config: config}
	c.session = statesync.NewSession(clockwork.NewRealClock(), config.Session, c.sendEnvelope)
	return c, nil
}

// Session exposes the synchronization state for the UI layer.
func (c *Client) Session() *statesync.Session {
	return c.session
}

// ViewModel derives the current render projection.
func (c *Client) ViewModel() statesync.ViewModel {
	return c.session.ViewModel()
}

// Run connects to the gateway and reconnects with backoff until ctx is
// cancelled. It blocks for the lifetime of the client.
func (c *Client) Run(ctx context.Context) error {
	defer c.session.Close()

	wait := c.config.ReconnectWait
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("room_id", c.config.RoomID).
				Dur("retry_in", wait).
				Msg("connection attempt failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait = min(wait*2, c.config.MaxReconnectWait)
			continue
		}
		wait = c.config.ReconnectWait

		select {
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		case <-conn.Done():
			log.Warn().Str("room_id", c.config.RoomID).Msg("connection lost, reconnecting")
		}
	}
}

func (c *Client) connect(ctx context.Context) (*transport.Client, error) {
	conn, err := transport.Dial(ctx, c.dialURL(), c.config.Transport, func(env protocol.Envelope) {
		if err := c.session.HandleMessage(env); err != nil {
			log.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to handle message")
		}
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Latency history belongs to the dead connection
	c.session.ResetConnection()
	return conn, nil
}

func (c *Client) dialURL() string {
	q := url.Values{}
	q.Set("room_id", c.config.RoomID)
	q.Set("role", string(c.config.Role))
	if c.config.Role == RolePlayer {
		if c.config.PlayerID != "" {
			q.Set("player_id", c.config.PlayerID)
		}
		q.Set("name", c.config.Name)
		if c.config.Avatar != "" {
			q.Set("avatar", c.config.Avatar)
		}
	}
	return c.config.GatewayURL + "?" + q.Encode()
}

// sendEnvelope routes dispatcher output through whichever connection is
// currently live.
func (c *Client) sendEnvelope(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Send(env)
}
