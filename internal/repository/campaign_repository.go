package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/queue"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListByOwner(ctx context.Context, userID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error)

	// Backfill window for the notification feed, newest first.
	MostRecent(ctx context.Context, userID string, limit int) ([]model.Campaign, error)

	// UpdateStatusIf moves a campaign to status only while it is still in from.
	UpdateStatusIf(ctx context.Context, id string, from, to model.CampaignStatus) (bool, error)
}

type CampaignRepository struct {
	DB *sqlx.DB

	// Events receives a CampaignInserted after every successful Create. Optional.
	Events queue.Publisher
}

const campaignColumns = `id, user_id, name, type, message, channel, status, created_at, updated_at`

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	c.CreatedAt = now()
	c.UpdatedAt = nil

	query := r.DB.Rebind(`
		INSERT INTO campaigns (id, user_id, name, type, message, channel, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := r.DB.ExecContext(ctx, query, c.ID, c.UserID, c.Name, c.Type, c.Message, c.Channel, c.Status, c.CreatedAt); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	publish(ctx, r.Events, queue.CampaignInserted{Campaign: *c})
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	query := r.DB.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`)
	if err := r.DB.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NotFound("campaign", id)
		}
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return &c, nil
}

func (r *CampaignRepository) ListByOwner(ctx context.Context, userID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE user_id = ?`
	args := []interface{}{userID}
	if channel != "" {
		where += ` AND channel = ?`
		args = append(args, channel)
	}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, r.DB.Rebind(`SELECT COUNT(*) FROM campaigns`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	campaigns := []*model.Campaign{}
	query := r.DB.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := r.DB.SelectContext(ctx, &campaigns, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) MostRecent(ctx context.Context, userID string, limit int) ([]model.Campaign, error) {
	campaigns := []model.Campaign{}
	query := r.DB.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := r.DB.SelectContext(ctx, &campaigns, query, userID, limit); err != nil {
		return nil, fmt.Errorf("recent campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *CampaignRepository) UpdateStatusIf(ctx context.Context, id string, from, to model.CampaignStatus) (bool, error) {
	query := r.DB.Rebind(`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := r.DB.ExecContext(ctx, query, to, now(), id, from)
	if err != nil {
		return false, fmt.Errorf("update campaign %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update campaign %s status: %w", id, err)
	}
	return n > 0, nil
}

// now is truncated to the precision postgres keeps so stored and returned values match.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func publish(ctx context.Context, p queue.Publisher, ev queue.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("topic", string(ev.Topic())).Msg("failed to publish insert event")
	}
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
