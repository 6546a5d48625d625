package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/retention-backend/internal/channel"
	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/metrics"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/repository"
)

const (
	defaultConcurrency    = 8
	defaultAttemptTimeout = 10 * time.Second
)

// Dispatcher sends a campaign to a set of recipients, one isolated attempt each.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	LogRepo      repository.DeliveryLogRepositoryInterface
	Sender       channel.Sender
	Lifecycle    *Lifecycle
	Metrics      *metrics.Metrics

	Concurrency    int
	AttemptTimeout time.Duration
}

type DispatchResult struct {
	Results []model.DeliveryAttemptResult
	Sent    int
	Failed  int
}

// Dispatch performs one delivery attempt per recipient owned by userID.
// Only a missing or foreign campaign fails the call; recipient failures are
// reported in the result. Recipients userID does not own are left out.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, campaignID string, recipientIDs []string) (*DispatchResult, error) {
	if campaignID == "" {
		return nil, appErrors.Validation("campaign_id is required", nil)
	}
	if len(recipientIDs) == 0 {
		return nil, appErrors.Validation("customer_ids must not be empty", nil)
	}

	campaign, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, appErrors.Forbidden("campaign", campaignID)
	}

	owned, err := d.CustomerRepo.ListOwnedByIDs(ctx, userID, recipientIDs)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	recipients := orderRecipients(recipientIDs, owned)

	// Attempts are irreversible once started, so they outlive the caller.
	base := context.WithoutCancel(ctx)
	started := time.Now()

	results := make([]model.DeliveryAttemptResult, len(recipients))
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency())
	for i := range recipients {
		g.Go(func() error {
			results[i] = d.attempt(base, campaign, &recipients[i])
			return nil
		})
	}
	_ = g.Wait()

	res := &DispatchResult{Results: results}
	for _, r := range results {
		if r.Status == model.DeliverySent {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	if err := d.Lifecycle.AdvanceIfDraft(base, campaign); err != nil {
		log.Error().Err(err).Str("campaign_id", campaign.ID).Msg("failed to advance campaign after dispatch")
	}

	if d.Metrics != nil {
		d.Metrics.DispatchDuration.Observe(time.Since(started).Seconds())
	}
	log.Info().
		Str("campaign_id", campaign.ID).
		Str("user_id", userID).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("campaign dispatched")

	return res, nil
}

// attempt sends to one recipient and appends its log row whatever the send outcome.
func (d *Dispatcher) attempt(ctx context.Context, campaign *model.Campaign, customer *model.Customer) model.DeliveryAttemptResult {
	address := customer.Address(campaign.Channel)
	result := model.DeliveryAttemptResult{
		CustomerID: customer.ID,
		Address:    address,
		Status:     model.DeliverySent,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout())
	sendErr := d.Sender.Send(sendCtx, campaign.Channel, address, Personalise(campaign.Message, customer))
	cancel()

	entry := &model.DeliveryLog{
		CustomerID: customer.ID,
		CampaignID: campaign.ID,
		Status:     model.DeliverySent,
	}
	if sendErr != nil {
		failure := appErrors.DeliveryAttempt(customer.ID, sendErr)
		msg := failure.Error()
		entry.Status = model.DeliveryFailed
		entry.Error = &msg
		result.Status = model.DeliveryFailed
		result.Error = msg
	}

	appendCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout())
	appendErr := d.LogRepo.Append(appendCtx, entry)
	cancel()

	if appendErr != nil {
		result.Status = model.DeliveryFailed
		if result.Error == "" {
			result.Error = appErrors.DeliveryAttempt(customer.ID, appendErr).Error()
		}
		log.Error().Err(appendErr).Str("campaign_id", campaign.ID).Str("customer_id", customer.ID).Msg("failed to append delivery log")
	} else {
		result.LogID = entry.ID
	}

	if d.Metrics != nil {
		d.Metrics.DeliveryAttempts.WithLabelValues(string(campaign.Channel), string(result.Status)).Inc()
	}
	return result
}

// orderRecipients keeps the caller's order and drops ids that were not returned or repeat.
func orderRecipients(ids []string, owned []model.Customer) []model.Customer {
	byID := make(map[string]model.Customer, len(owned))
	for _, c := range owned {
		byID[c.ID] = c
	}
	out := make([]model.Customer, 0, len(owned))
	seen := make(map[string]bool, len(owned))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, c)
	}
	return out
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency > 0 {
		return d.Concurrency
	}
	return defaultConcurrency
}

func (d *Dispatcher) attemptTimeout() time.Duration {
	if d.AttemptTimeout > 0 {
		return d.AttemptTimeout
	}
	return defaultAttemptTimeout
}
