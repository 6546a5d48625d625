// cmd/worker/main.go relays postgres insert notifications onto the broker the
// API servers subscribe to, so many server instances share one LISTEN fan-in.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/retention-backend/internal/config"
	"github.com/unclebandit/retention-backend/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := checkRelayConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := queue.Open(ctx, cfg.Events, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Str("target", cfg.Events.Source).Msg("failed to connect broker")
	}
	defer bus.Close()

	log.Info().Str("target", cfg.Events.Source).Msg("worker running, relaying insert notifications")
	if err := run(ctx, queue.NewPGSource(cfg.Database.URL), bus.Publisher); err != nil {
		log.Fatal().Err(err).Msg("relay failed")
	}
	log.Info().Msg("worker stopped")
}

// checkRelayConfig accepts only a postgres store and an external broker target.
func checkRelayConfig(cfg *config.Config) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("worker requires DB_DRIVER=postgres, got %q", cfg.Database.Driver)
	}
	switch cfg.Events.Source {
	case config.SourceRedis, config.SourceAMQP:
		return nil
	}
	return fmt.Errorf("worker relays to redis or amqp, got EVENTS_SOURCE=%q", cfg.Events.Source)
}

// run relays both insert topics from src to pub until ctx is done.
func run(ctx context.Context, src queue.Source, pub queue.Publisher) error {
	subs, err := queue.Relay(ctx, src, pub, queue.TopicCampaigns, queue.TopicDeliveryLogs)
	if err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	<-ctx.Done()
	return queue.UnsubscribeAll(subs)
}
