// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/httpx"
	"github.com/unclebandit/retention-backend/internal/middleware"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/service"
)

var defaultValidate = validator.New()

// Dispatcher is the send side used by SendMessage.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, campaignID string, recipientIDs []string) (*service.DispatchResult, error)
}

type CampaignController struct {
	CampaignService *service.CampaignService
	Dispatcher      Dispatcher
	Validate        *validator.Validate
}

func NewCampaignController(svc *service.CampaignService, d Dispatcher) *CampaignController {
	return &CampaignController{CampaignService: svc, Dispatcher: d, Validate: validator.New()}
}

type sendMessageRequest struct {
	CampaignID  string   `json:"campaign_id" validate:"required"`
	CustomerIDs []string `json:"customer_ids" validate:"required,min=1,dive,required"`
}

type sendMessageResponse struct {
	Message string                        `json:"message"`
	Results []model.DeliveryAttemptResult `json:"results"`
	Total   int                           `json:"total"`
	Sent    int                           `json:"sent"`
	Failed  int                           `json:"failed"`
}

// SendMessage dispatches a campaign to the listed customers.
func (c *CampaignController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	if !c.decode(w, r, &body) {
		return
	}

	result, err := c.Dispatcher.Dispatch(r.Context(), middleware.UserIDFromContext(r.Context()), body.CampaignID, body.CustomerIDs)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sendMessageResponse{
		Message: "Messages sent",
		Results: result.Results,
		Total:   len(result.Results),
		Sent:    result.Sent,
		Failed:  result.Failed,
	})
}

type createCampaignRequest struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Message string `json:"message" validate:"required"`
	Channel string `json:"delivery_channel" validate:"required,oneof=email sms whatsapp"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if !c.decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), middleware.UserIDFromContext(r.Context()), service.CreateCampaignInput{
		Name:    body.Name,
		Type:    body.Type,
		Message: body.Message,
		Channel: model.Channel(body.Channel),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters; the service applies defaults and bounds
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), middleware.UserIDFromContext(r.Context()), page, pageSize, channel, status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetCampaignDetails returns one campaign with its delivery stats.
func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, details)
}

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,e164"`
}

func (c *CampaignController) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var body createCustomerRequest
	if !c.decode(w, r, &body) {
		return
	}

	customer, err := c.CampaignService.CreateCustomer(r.Context(), middleware.UserIDFromContext(r.Context()), service.CreateCustomerInput{
		Name:  body.Name,
		Email: body.Email,
		Phone: body.Phone,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, customer)
}

func (c *CampaignController) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := c.CampaignService.ListCustomers(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": customers})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, appErrors.Validation("invalid body", err))
		return false
	}
	v := c.Validate
	if v == nil {
		v = defaultValidate
	}
	if err := v.Struct(dst); err != nil {
		httpx.WriteError(w, appErrors.Validation("invalid request", err))
		return false
	}
	return true
}
