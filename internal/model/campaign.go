// internal/model/campaign.go
package model

import "time"

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// CampaignStatus moves draft -> active -> completed and never goes back.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusActive    CampaignStatus = "active"
	StatusCompleted CampaignStatus = "completed"
)

type Campaign struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Name      string         `db:"name" json:"name"`
	Type      string         `db:"type" json:"type"`
	Message   string         `db:"message" json:"message"`
	Channel   Channel        `db:"channel" json:"delivery_channel"`
	Status    CampaignStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
