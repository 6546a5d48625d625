package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// InMemoryQueue is an in-process Source and Publisher. Each handler runs in
// its own goroutine per event, so handlers see no ordering guarantee.
type InMemoryQueue struct {
	mu       sync.Mutex
	nextID   int
	handlers map[Topic]map[int]subscriber
	wg       sync.WaitGroup
}

type subscriber struct {
	ctx     context.Context
	handler Handler
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[Topic]map[int]subscriber),
	}
}

// Publish fans the event out to every current subscriber of its topic.
func (q *InMemoryQueue) Publish(ctx context.Context, ev Event) error {
	q.mu.Lock()
	subs := make([]subscriber, 0, len(q.handlers[ev.Topic()]))
	for _, s := range q.handlers[ev.Topic()] {
		subs = append(subs, s)
	}
	q.mu.Unlock()

	for _, s := range subs {
		q.wg.Add(1)
		go q.deliver(s, ev)
	}
	return nil
}

func (q *InMemoryQueue) deliver(s subscriber, ev Event) {
	defer q.wg.Done()
	s.deliver(ev)
}

// deliver runs the handler unless the subscriber's context is done. Panics are logged.
func (s subscriber) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", string(ev.Topic())).Msg("event handler panicked")
		}
	}()
	if s.ctx.Err() != nil {
		return
	}
	s.handler.Handle(s.ctx, ev)
}

// Subscribe registers a handler for a topic until Unsubscribe or ctx is done.
func (q *InMemoryQueue) Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextID
	q.nextID++
	if q.handlers[topic] == nil {
		q.handlers[topic] = make(map[int]subscriber)
	}
	q.handlers[topic][id] = subscriber{ctx: ctx, handler: h}

	return &memorySubscription{queue: q, topic: topic, id: id}, nil
}

// Wait blocks until every delivery started so far has returned.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *InMemoryQueue) subscriberCount(topic Topic) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handlers[topic])
}

type memorySubscription struct {
	queue *InMemoryQueue
	topic Topic
	id    int
}

func (s *memorySubscription) Unsubscribe() error {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	delete(s.queue.handlers[s.topic], s.id)
	return nil
}

var (
	_ Source    = (*InMemoryQueue)(nil)
	_ Publisher = (*InMemoryQueue)(nil)
)
