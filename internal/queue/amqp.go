package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// AMQPSource consumes insert events from a topic exchange. Every subscription
// gets its own exclusive, auto-deleted queue bound with the topic as routing key.
type AMQPSource struct {
	conn     *amqp.Connection
	exchange string
}

func NewAMQPSource(conn *amqp.Connection, exchange string) *AMQPSource {
	return &AMQPSource{conn: conn, exchange: exchange}
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func (s *AMQPSource) Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareExchange(ch, s.exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, string(topic), s.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",
		true,  // autoAck
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &amqpSubscription{ch: ch, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				ev, err := Decode(topic, d.Body)
				if err != nil {
					log.Warn().Err(err).Str("topic", string(topic)).Msg("dropping undecodable amqp event")
					continue
				}
				h.Handle(subCtx, ev)
			}
		}
	}()

	return sub, nil
}

type amqpSubscription struct {
	ch     *amqp.Channel
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *amqpSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.ch.Close()
		<-s.done
	})
	return s.err
}

// AMQPPublisher publishes insert events with the topic as routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Publish(
		p.exchange,
		string(ev.Topic()),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

var (
	_ Source    = (*AMQPSource)(nil)
	_ Publisher = (*AMQPPublisher)(nil)
)
