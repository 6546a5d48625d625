package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/queue"
)

type DeliveryLogRepositoryInterface interface {
	Append(ctx context.Context, l *model.DeliveryLog) error

	// Backfill window for the notification feed: logs of campaigns owned by
	// userID, newest first, joined with campaign and customer names.
	MostRecentForOwner(ctx context.Context, userID string, limit int) ([]model.DeliveryLogView, error)

	StatsByCampaign(ctx context.Context, campaignID string) (map[string]int, error)
}

type DeliveryLogRepository struct {
	DB *sqlx.DB

	// Events receives a DeliveryLogInserted after every successful Append. Optional.
	Events queue.Publisher
}

// Append inserts one attempt row. Rows are never updated afterwards.
func (r *DeliveryLogRepository) Append(ctx context.Context, l *model.DeliveryLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.SentAt.IsZero() {
		l.SentAt = now()
	}

	query := r.DB.Rebind(`
		INSERT INTO delivery_logs (id, customer_id, campaign_id, delivery_status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if _, err := r.DB.ExecContext(ctx, query, l.ID, l.CustomerID, l.CampaignID, l.Status, l.Error, l.SentAt); err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}

	publish(ctx, r.Events, queue.DeliveryLogInserted{Log: *l})
	return nil
}

func (r *DeliveryLogRepository) MostRecentForOwner(ctx context.Context, userID string, limit int) ([]model.DeliveryLogView, error) {
	logs := []model.DeliveryLogView{}
	query := r.DB.Rebind(`
		SELECT l.id, l.customer_id, l.campaign_id, l.delivery_status, l.error, l.sent_at,
		       c.name AS campaign_name, c.user_id AS campaign_user_id, cu.name AS customer_name
		FROM delivery_logs l
		JOIN campaigns c ON c.id = l.campaign_id
		LEFT JOIN customers cu ON cu.id = l.customer_id
		WHERE c.user_id = ?
		ORDER BY l.sent_at DESC
		LIMIT ?
	`)
	if err := r.DB.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("recent delivery logs: %w", err)
	}
	return logs, nil
}

func (r *DeliveryLogRepository) StatsByCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(`SELECT delivery_status, COUNT(*) FROM delivery_logs WHERE campaign_id = ? GROUP BY delivery_status`), campaignID)
	if err != nil {
		return nil, fmt.Errorf("delivery stats %s: %w", campaignID, err)
	}
	defer rows.Close()

	stats := map[string]int{string(model.DeliverySent): 0, string(model.DeliveryFailed): 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
