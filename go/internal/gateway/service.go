package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// Service ties the connection manager, websocket handler and JetStream
// consumer together into one startable unit.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	// ConsumeEvents enables the JetStream consumer. Single-instance
	// deployments can leave it off; the local broadcaster already covers
	// every connection.
	ConsumeEvents bool
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		ConsumeEvents:    false,
	}
}

// NewService creates a new gateway service.
func NewService(config Config) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	wsHandler := NewWebSocketHandler(connectionManager)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
	}

	if config.ConsumeEvents {
		eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// ConnectionManager exposes the broadcaster so the room layer can be wired
// to it.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// SetHub attaches the command/roster authority to the connection manager.
func (s *Service) SetHub(hub SessionHub) {
	s.connectionManager.SetHub(hub)
}

// Start begins the gateway service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "gateway"
	stats["status"] = "running"
	return stats
}

// BroadcastEvent allows manual event broadcasting (useful for testing).
func (s *Service) BroadcastEvent(roomID string, env protocol.Envelope) {
	s.connectionManager.BroadcastToRoom(roomID, env)
}
