package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// PublisherConfig holds configuration for the JetStream publisher.
type PublisherConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // envelope rebroadcast subjects, e.g. "party.rooms"
	DomainPrefix  string // lifecycle event subjects, e.g. "party.sessions"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultPublisherConfig returns default JetStream publisher configuration.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:           nats.DefaultURL,
		StreamName:    "PARTY_EVENTS",
		SubjectPrefix: "party.rooms",
		DomainPrefix:  "party.sessions",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher publishes room envelopes to JetStream so every gateway instance
// can fan them out to its own connections.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config PublisherConfig
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: config}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      p.config.StreamName,
		Subjects:  []string{p.config.SubjectPrefix + ".>", p.config.DomainPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", p.config.StreamName, err)
	}
	return nil
}

// PublishEnvelope publishes a client-facing envelope on the room's subject.
func (p *Publisher) PublishEnvelope(ctx context.Context, roomID string, env protocol.Envelope) error {
	event := RoomEvent{
		EventID:   uuid.New().String(),
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Envelope:  env,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, roomID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("event_id", event.EventID).
		Str("room_id", roomID).
		Str("event_type", string(env.Type)).
		Msg("published room event")
	return nil
}

// SessionStarted publishes a session lifecycle event for a game start.
func (p *Publisher) SessionStarted(ctx context.Context, payload SessionStartedPayload) error {
	return p.publishDomain(ctx, payload.RoomID, "SessionStarted", payload)
}

// SessionEnded publishes a session lifecycle event for a game end.
func (p *Publisher) SessionEnded(ctx context.Context, payload SessionEndedPayload) error {
	return p.publishDomain(ctx, payload.RoomID, "SessionEnded", payload)
}

// PlayerKicked publishes a session lifecycle event for a host kick.
func (p *Publisher) PlayerKicked(ctx context.Context, payload PlayerKickedPayload) error {
	return p.publishDomain(ctx, payload.RoomID, "PlayerKicked", payload)
}

func (p *Publisher) publishDomain(ctx context.Context, roomID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := DomainEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	subject := fmt.Sprintf("%s.%s.%s", p.config.DomainPrefix, roomID, eventType)
	if _, err := p.js.Publish(ctx, subject, eventData); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("event_id", event.EventID).
		Str("room_id", roomID).
		Str("event_type", eventType).
		Msg("published session event")
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
