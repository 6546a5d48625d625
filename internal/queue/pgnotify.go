package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// notifyListener is the part of *pq.Listener a PGSource drives.
type notifyListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// PGSource listens for the pg_notify calls made by the insert triggers.
// The notification channel is the table name, which is also the topic.
// Every subscriber of a topic shares one listener connection; it is opened by
// the first Subscribe and closed when the last subscription is released.
type PGSource struct {
	newListener func(topic Topic) notifyListener

	mu     sync.Mutex
	nextID int
	topics map[Topic]*pgTopic
}

type pgTopic struct {
	listener notifyListener
	subs     map[int]subscriber
	stop     chan struct{}
	done     chan struct{}
}

func NewPGSource(dsn string) *PGSource {
	const (
		minReconnectInterval = 10 * time.Second
		maxReconnectInterval = time.Minute
	)
	return newPGSource(func(topic Topic) notifyListener {
		return pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
			func(ev pq.ListenerEventType, err error) {
				if err != nil {
					log.Warn().Err(err).Str("topic", string(topic)).Int("event", int(ev)).Msg("postgres listener event")
				}
			})
	})
}

func newPGSource(newListener func(Topic) notifyListener) *PGSource {
	return &PGSource{newListener: newListener, topics: make(map[Topic]*pgTopic)}
}

func (s *PGSource) Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topic]
	if !ok {
		listener := s.newListener(topic)
		if err := listener.Listen(string(topic)); err != nil {
			listener.Close()
			return nil, fmt.Errorf("listen %s: %w", topic, err)
		}
		t = &pgTopic{
			listener: listener,
			subs:     make(map[int]subscriber),
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}
		s.topics[topic] = t
		go s.run(topic, t)
	}

	id := s.nextID
	s.nextID++
	t.subs[id] = subscriber{ctx: ctx, handler: h}
	return &pgSubscription{source: s, topic: topic, id: id}, nil
}

func (s *PGSource) run(topic Topic, t *pgTopic) {
	defer close(t.done)
	notes := t.listener.NotificationChannel()
	for {
		select {
		case <-t.stop:
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			// nil marks a reconnect; inserts during the gap are not replayed.
			if n == nil {
				log.Info().Str("topic", string(topic)).Msg("postgres listener reconnected")
				continue
			}
			ev, err := Decode(topic, []byte(n.Extra))
			if err != nil {
				log.Warn().Err(err).Str("topic", string(topic)).Msg("dropping undecodable postgres notification")
				continue
			}
			s.fanOut(t, ev)
		}
	}
}

func (s *PGSource) fanOut(t *pgTopic, ev Event) {
	s.mu.Lock()
	subs := make([]subscriber, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		go sub.deliver(ev)
	}
}

// remove drops one subscriber and closes the topic's listener once none are left.
func (s *PGSource) remove(topic Topic, id int) error {
	s.mu.Lock()
	t, ok := s.topics[topic]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(t.subs, id)
	if len(t.subs) > 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.topics, topic)
	s.mu.Unlock()

	close(t.stop)
	err := t.listener.Close()
	<-t.done
	return err
}

type pgSubscription struct {
	source *PGSource
	topic  Topic
	id     int
	once   sync.Once
	err    error
}

func (u *pgSubscription) Unsubscribe() error {
	u.once.Do(func() {
		u.err = u.source.remove(u.topic, u.id)
	})
	return u.err
}

var _ Source = (*PGSource)(nil)
