package service

import (
	"context"

	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/repository"
)

// Lifecycle owns campaign status transitions.
type Lifecycle struct {
	CampaignRepo repository.CampaignRepositoryInterface
}

// AdvanceIfDraft moves a draft campaign to active. Any other status is left alone,
// and the store-side update is conditional so a concurrent transition is never undone.
// On success c.Status reflects the stored status.
func (l *Lifecycle) AdvanceIfDraft(ctx context.Context, c *model.Campaign) error {
	if c.Status != model.StatusDraft {
		return nil
	}
	changed, err := l.CampaignRepo.UpdateStatusIf(ctx, c.ID, model.StatusDraft, model.StatusActive)
	if err != nil {
		return err
	}
	if changed {
		c.Status = model.StatusActive
		return nil
	}

	// Someone else moved it first; report what is stored now.
	current, err := l.CampaignRepo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Status = current.Status
	return nil
}
