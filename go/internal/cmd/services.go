package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/content"
	"github.com/mcdev12/partyhub/go/internal/events"
	"github.com/mcdev12/partyhub/go/internal/gateway"
	"github.com/mcdev12/partyhub/go/internal/protocol"
	"github.com/mcdev12/partyhub/go/internal/room"
)

type Services struct {
	Gateway   *gateway.Service
	Rooms     *room.Manager
	Content   *content.Repository
	Publisher *events.Publisher

	autoRevealInterval time.Duration
}

func setupServices(pool *pgxpool.Pool, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Content repository → broadcaster → room manager → gateway hub

	contentRepo := content.NewRepository(pool)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConsumeEvents = config.Nats.ConsumeEvents
	if config.Nats.URL != "" {
		gatewayConfig.JetStreamConfig.URL = config.Nats.URL
	}
	if config.Nats.Stream != "" {
		gatewayConfig.JetStreamConfig.StreamName = config.Nats.Stream
	}
	if config.Nats.SubjectPrefix != "" {
		gatewayConfig.JetStreamConfig.SubjectFilter = config.Nats.SubjectPrefix + ".>"
	}

	gatewayService, err := gateway.NewService(gatewayConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	var broadcaster room.Broadcaster = gatewayService.ConnectionManager()
	var publisher *events.Publisher
	var sink room.EventSink
	if config.Nats.PublishEvents {
		publisherConfig := events.DefaultPublisherConfig()
		if config.Nats.URL != "" {
			publisherConfig.URL = config.Nats.URL
		}
		if config.Nats.Stream != "" {
			publisherConfig.StreamName = config.Nats.Stream
		}
		if config.Nats.SubjectPrefix != "" {
			publisherConfig.SubjectPrefix = config.Nats.SubjectPrefix
		}

		publisher, err = events.NewPublisher(publisherConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		broadcaster = &fanoutBroadcaster{local: gatewayService.ConnectionManager(), publisher: publisher}
		sink = publisher
	}

	rooms := room.NewManager(clockwork.NewRealClock(), broadcaster, contentRepo, sink)
	gatewayService.SetHub(rooms)

	return &Services{
		Gateway:            gatewayService,
		Rooms:              rooms,
		Content:            contentRepo,
		Publisher:          publisher,
		autoRevealInterval: time.Duration(config.Content.AutoRevealInterval) * time.Second,
	}, nil
}

// runAutoReveal periodically flips guessing challenges whose reveal time has
// passed. Hosts can still trigger the same sweep on demand via command.
func (s *Services) runAutoReveal(ctx context.Context) {
	if s.autoRevealInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.autoRevealInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			revealed, err := s.Content.CheckAutoReveal(ctx, now.UTC())
			if err != nil {
				log.Error().Err(err).Msg("auto-reveal sweep failed")
				continue
			}
			if revealed > 0 {
				log.Info().Int("revealed", revealed).Msg("auto-revealed challenges")
			}
		}
	}
}

func (s *Services) Close() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// fanoutBroadcaster sends room envelopes to local connections and publishes
// them to JetStream for the other gateway instances. Direct messages stay
// instance-local; the target connection lives here.
type fanoutBroadcaster struct {
	local     *gateway.ConnectionManager
	publisher *events.Publisher
}

func (b *fanoutBroadcaster) BroadcastToRoom(roomID string, env protocol.Envelope) {
	b.local.BroadcastToRoom(roomID, env)
	if err := b.publisher.PublishEnvelope(context.Background(), roomID, env); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to publish room event")
	}
}

func (b *fanoutBroadcaster) SendToConnection(roomID, connID string, env protocol.Envelope) {
	b.local.SendToConnection(roomID, connID, env)
}
