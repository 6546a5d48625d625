package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/retention-backend/internal/model"
)

// Topic names a watched entity type. Values match the store's table names.
type Topic string

const (
	TopicCampaigns    Topic = "campaigns"
	TopicDeliveryLogs Topic = "delivery_logs"
)

// Event is a decoded insert notification: either CampaignInserted or DeliveryLogInserted.
type Event interface {
	Topic() Topic
	isEvent()
}

type CampaignInserted struct {
	Campaign model.Campaign
}

func (CampaignInserted) Topic() Topic { return TopicCampaigns }
func (CampaignInserted) isEvent()     {}

type DeliveryLogInserted struct {
	Log model.DeliveryLog
}

func (DeliveryLogInserted) Topic() Topic { return TopicDeliveryLogs }
func (DeliveryLogInserted) isEvent()     {}

// Handler receives live events. Delivery is at-least-once with no ordering across topics.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// Source is the push side of the store: one subscription per watched topic.
type Source interface {
	Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error)
}

// Subscription is released with Unsubscribe. Calling it more than once is a no-op.
type Subscription interface {
	Unsubscribe() error
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// wireTime accepts the timestamp shapes the adapters produce: RFC 3339 from Go
// publishers and zone-less ISO timestamps from postgres row_to_json.
type wireTime time.Time

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = wireTime{}
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = wireTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

type campaignRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	CreatedAt wireTime  `json:"created_at"`
	UpdatedAt *wireTime `json:"updated_at,omitempty"`
}

type deliveryLogRow struct {
	ID         string   `json:"id"`
	CustomerID string   `json:"customer_id"`
	CampaignID string   `json:"campaign_id"`
	Status     string   `json:"delivery_status"`
	Error      *string  `json:"error,omitempty"`
	SentAt     wireTime `json:"sent_at"`
}

// Decode turns a row payload into its typed event. The topic decides the shape.
func Decode(topic Topic, payload []byte) (Event, error) {
	switch topic {
	case TopicCampaigns:
		var row campaignRow
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("decode campaign row: %w", err)
		}
		if row.ID == "" {
			return nil, fmt.Errorf("decode campaign row: missing id")
		}
		c := model.Campaign{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			Type:      row.Type,
			Message:   row.Message,
			Channel:   model.Channel(row.Channel),
			Status:    model.CampaignStatus(row.Status),
			CreatedAt: time.Time(row.CreatedAt),
		}
		if row.UpdatedAt != nil {
			u := time.Time(*row.UpdatedAt)
			c.UpdatedAt = &u
		}
		return CampaignInserted{Campaign: c}, nil

	case TopicDeliveryLogs:
		var row deliveryLogRow
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("decode delivery log row: %w", err)
		}
		if row.ID == "" || row.CampaignID == "" {
			return nil, fmt.Errorf("decode delivery log row: missing id or campaign_id")
		}
		return DeliveryLogInserted{Log: model.DeliveryLog{
			ID:         row.ID,
			CustomerID: row.CustomerID,
			CampaignID: row.CampaignID,
			Status:     model.DeliveryStatus(row.Status),
			Error:      row.Error,
			SentAt:     time.Time(row.SentAt),
		}}, nil
	}
	return nil, fmt.Errorf("unknown topic %q", topic)
}

// Encode produces the row payload Decode understands.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case CampaignInserted:
		row := campaignRow{
			ID:        e.Campaign.ID,
			UserID:    e.Campaign.UserID,
			Name:      e.Campaign.Name,
			Type:      e.Campaign.Type,
			Message:   e.Campaign.Message,
			Channel:   string(e.Campaign.Channel),
			Status:    string(e.Campaign.Status),
			CreatedAt: wireTime(e.Campaign.CreatedAt),
		}
		if e.Campaign.UpdatedAt != nil {
			u := wireTime(*e.Campaign.UpdatedAt)
			row.UpdatedAt = &u
		}
		return json.Marshal(row)
	case DeliveryLogInserted:
		return json.Marshal(deliveryLogRow{
			ID:         e.Log.ID,
			CustomerID: e.Log.CustomerID,
			CampaignID: e.Log.CampaignID,
			Status:     string(e.Log.Status),
			Error:      e.Log.Error,
			SentAt:     wireTime(e.Log.SentAt),
		})
	}
	return nil, fmt.Errorf("unsupported event %T", ev)
}
