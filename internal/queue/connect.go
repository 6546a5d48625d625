package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/unclebandit/retention-backend/internal/config"
)

// Bus is a connected event source with the publisher that feeds it.
// Publisher is nil for the postgres source, whose events come from triggers.
type Bus struct {
	Source    Source
	Publisher Publisher

	closers []func() error
}

// Close releases the broker connections behind the bus.
func (b *Bus) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects the configured event source. dsn is used by the postgres source.
func Open(ctx context.Context, cfg config.EventsConfig, dsn string) (*Bus, error) {
	switch cfg.Source {
	case config.SourceMemory:
		q := NewInMemoryQueue()
		return &Bus{Source: q, Publisher: q}, nil

	case config.SourcePostgres:
		return &Bus{Source: NewPGSource(dsn)}, nil

	case config.SourceRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info().Str("addr", opts.Addr).Msg("connected to redis")
		return &Bus{
			Source:    NewRedisSource(client),
			Publisher: NewRedisPublisher(client),
			closers:   []func() error{client.Close},
		}, nil

	case config.SourceAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		pub, err := NewAMQPPublisher(conn, cfg.AMQPExchange)
		if err != nil {
			conn.Close()
			return nil, err
		}
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to rabbitmq")
		return &Bus{
			Source:    NewAMQPSource(conn, cfg.AMQPExchange),
			Publisher: pub,
			closers:   []func() error{conn.Close, pub.Close},
		}, nil
	}
	return nil, fmt.Errorf("unknown event source %q", cfg.Source)
}
