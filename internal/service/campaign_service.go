// internal/service/campaign_service.go
package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	LogRepo      repository.DeliveryLogRepositoryInterface
}

type CampaignDetails struct {
	model.Campaign
	Stats map[string]int `json:"stats"`
}

type CreateCampaignInput struct {
	Name    string
	Type    string
	Message string
	Channel model.Channel
}

func (s *CampaignService) CreateCampaign(ctx context.Context, userID string, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, appErrors.Validation("message cannot be empty", nil)
	}
	if !in.Channel.Valid() {
		return nil, appErrors.Validation("unsupported delivery channel: "+string(in.Channel), nil)
	}

	c := &model.Campaign{
		UserID:  userID,
		Name:    in.Name,
		Type:    in.Type,
		Message: in.Message,
		Channel: in.Channel,
		Status:  model.StatusDraft,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches the caller's campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, userID string, page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListByOwner(ctx, userID, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetailsWithStats returns an owned campaign with its delivery counts.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, userID, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, appErrors.Forbidden("campaign", campaignID)
	}

	counts, err := s.LogRepo.StatsByCampaign(ctx, campaignID)
	if err != nil {
		log.Error().Err(err).Str("campaign_id", campaignID).Msg("failed to load delivery stats")
		return nil, err
	}

	stats := map[string]int{"total": 0, "sent": 0, "failed": 0}
	for status, n := range counts {
		if _, ok := stats[status]; ok {
			stats[status] = n
		}
		stats["total"] += n
	}

	return &CampaignDetails{Campaign: *campaign, Stats: stats}, nil
}

type CreateCustomerInput struct {
	Name  string
	Email string
	Phone string
}

func (s *CampaignService) CreateCustomer(ctx context.Context, userID string, in CreateCustomerInput) (*model.Customer, error) {
	if in.Email == "" && in.Phone == "" {
		return nil, appErrors.Validation("customer needs an email or a phone", nil)
	}
	c := &model.Customer{UserID: userID, Name: in.Name, Email: in.Email, Phone: in.Phone}
	if err := s.CustomerRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) ListCustomers(ctx context.Context, userID string) ([]model.Customer, error) {
	return s.CustomerRepo.ListByOwner(ctx, userID)
}
