package channel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/retention-backend/internal/model"
)

// Sender hands one rendered message to a delivery channel.
// A nil error means the channel accepted the message.
type Sender interface {
	Send(ctx context.Context, ch model.Channel, to, message string) error
}

type SenderFunc func(ctx context.Context, ch model.Channel, to, message string) error

func (f SenderFunc) Send(ctx context.Context, ch model.Channel, to, message string) error {
	return f(ctx, ch, to, message)
}

// LogSender accepts every message with an address and only logs it.
// It stands in for a real provider in development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, ch model.Channel, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("no %s address for recipient", ch)
	}
	log.Info().Str("channel", string(ch)).Str("to", to).Int("length", len(message)).Msg("message sent")
	return nil
}

var (
	_ Sender = LogSender{}
	_ Sender = SenderFunc(nil)
)
