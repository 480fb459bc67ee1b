package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/client"
)

// Headless room client: attaches to a room, keeps the session synchronized
// and logs the derived view each second. Useful for soak-testing a gateway
// without a browser.
func main() {
	gatewayURL := flag.String("gateway", "ws://localhost:8080/ws/room", "gateway websocket URL")
	roomID := flag.String("room", "", "room id to join (required)")
	role := flag.String("role", "player", "connection role: display, host or player")
	name := flag.String("name", "headless", "player name")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *roomID == "" {
		log.Fatal().Msg("-room is required")
	}

	config := client.DefaultConfig(*gatewayURL, *roomID, client.Role(*role))
	config.Name = *name

	c, err := client.New(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				vm := c.ViewModel()
				evt := log.Info().
					Str("view", string(vm.ViewVariant)).
					Int("round", vm.EffectiveRound).
					Int("max_rounds", vm.EffectiveMaxRounds).
					Int("players", len(vm.Scoreboard))
				if vm.LatencyMs != nil {
					evt = evt.Float64("latency_ms", *vm.LatencyMs)
				}
				evt.Msg("session view")
			}
		}
	}()

	if err := c.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("client terminated")
	}
}
