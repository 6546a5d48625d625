package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannelPrefix = "retention:"

func redisChannel(topic Topic) string {
	return redisChannelPrefix + string(topic)
}

// RedisSource subscribes to insert events over redis pub/sub.
type RedisSource struct {
	client *redis.Client
}

func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(subCtx, redisChannel(topic))

	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	msgs := pubsub.Channel()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Decode(topic, []byte(msg.Payload))
				if err != nil {
					log.Warn().Err(err).Str("topic", string(topic)).Msg("dropping undecodable redis event")
					continue
				}
				h.Handle(subCtx, ev)
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}

// RedisPublisher publishes insert events on the channels RedisSource reads.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, redisChannel(ev.Topic()), payload).Err()
}

var (
	_ Source    = (*RedisSource)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)
