package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/unclebandit/retention-backend/internal/model"
)

// WebhookSender posts messages to an HTTP delivery provider behind a circuit breaker.
type WebhookSender struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type WebhookOption func(*WebhookSender)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSender) { s.client = c }
}

// WithBreakerSettings replaces the default breaker. Name and OnStateChange are filled in when empty.
func WithBreakerSettings(st gobreaker.Settings) WebhookOption {
	return func(s *WebhookSender) { s.breaker = newBreaker(st) }
}

func NewWebhookSender(url string, opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		breaker: newBreaker(gobreaker.Settings{
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker {
	if st.Name == "" {
		st.Name = "webhook-sender"
	}
	if st.OnStateChange == nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

type webhookRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *WebhookSender) Send(ctx context.Context, ch model.Channel, to, message string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, webhookRequest{Channel: string(ch), To: to, Message: message})
	})
	return err
}

func (s *WebhookSender) post(ctx context.Context, body webhookRequest) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(b))
	}
	return nil
}

var _ Sender = (*WebhookSender)(nil)
