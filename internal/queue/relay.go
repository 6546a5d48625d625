package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Relay republishes every event from src onto pub for the given topics.
// The returned subscriptions must be released by the caller.
func Relay(ctx context.Context, src Source, pub Publisher, topics ...Topic) ([]Subscription, error) {
	forward := HandlerFunc(func(ctx context.Context, ev Event) {
		if err := pub.Publish(ctx, ev); err != nil {
			log.Error().Err(err).Str("topic", string(ev.Topic())).Msg("failed to relay event")
		}
	})

	subs := make([]Subscription, 0, len(topics))
	for _, topic := range topics {
		sub, err := src.Subscribe(ctx, topic, forward)
		if err != nil {
			return nil, errors.Join(err, UnsubscribeAll(subs))
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// UnsubscribeAll releases every non-nil subscription and joins the errors.
func UnsubscribeAll(subs []Subscription) error {
	var errs []error
	for _, s := range subs {
		if s == nil {
			continue
		}
		if err := s.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
