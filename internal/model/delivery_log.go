// internal/model/delivery_log.go
package model

import "time"

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryLog is one row per delivery attempt. Rows are appended, never updated.
type DeliveryLog struct {
	ID         string         `db:"id" json:"id"`
	CustomerID string         `db:"customer_id" json:"customer_id"`
	CampaignID string         `db:"campaign_id" json:"campaign_id"`
	Status     DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	Error      *string        `db:"error" json:"error,omitempty"`
	SentAt     time.Time      `db:"sent_at" json:"sent_at"`
}

// DeliveryLogView is a delivery log joined with the names the notification feed shows.
type DeliveryLogView struct {
	DeliveryLog
	CampaignName   string  `db:"campaign_name"`
	CampaignUserID string  `db:"campaign_user_id"`
	CustomerName   *string `db:"customer_name"`
}

// DeliveryAttemptResult is the per-recipient outcome of one dispatch call.
type DeliveryAttemptResult struct {
	CustomerID string         `json:"customer_id"`
	Address    string         `json:"customer_email"`
	Status     DeliveryStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	LogID      string         `json:"log_id,omitempty"`
}
