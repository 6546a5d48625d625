package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/model"
)

// Mock repositories

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	updateErr error
	updates   int
}

func NewMockCampaignRepo(cs ...model.Campaign) *MockCampaignRepo {
	m := &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
	for i := range cs {
		c := cs[i]
		m.campaigns[c.ID] = &c
	}
	return m
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("c%d", len(m.campaigns)+1)
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NotFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) ListByOwner(context.Context, string, int, int, string, string) ([]*model.Campaign, int, error) {
	return nil, 0, errors.New("not used")
}

func (m *MockCampaignRepo) MostRecent(context.Context, string, int) ([]model.Campaign, error) {
	return nil, errors.New("not used")
}

func (m *MockCampaignRepo) UpdateStatusIf(_ context.Context, id string, from, to model.CampaignStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return false, m.updateErr
	}
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (m *MockCampaignRepo) status(id string) model.CampaignStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id].Status
}

type MockCustomerRepo struct {
	customers []model.Customer
}

func (m *MockCustomerRepo) Create(_ context.Context, c *model.Customer) error {
	c.ID = fmt.Sprintf("cu%d", len(m.customers)+1)
	m.customers = append(m.customers, *c)
	return nil
}

func (m *MockCustomerRepo) GetByID(_ context.Context, id string) (*model.Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, appErrors.NotFound("customer", id)
}

func (m *MockCustomerRepo) ListByOwner(_ context.Context, userID string) ([]model.Customer, error) {
	out := []model.Customer{}
	for _, c := range m.customers {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListOwnedByIDs answers in reverse storage order so callers cannot rely on it.
func (m *MockCustomerRepo) ListOwnedByIDs(_ context.Context, userID string, ids []string) ([]model.Customer, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []model.Customer{}
	for i := len(m.customers) - 1; i >= 0; i-- {
		c := m.customers[i]
		if c.UserID == userID && want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockLogRepo records every appended row. For customers in failFor the row is
// stored but the append still reports an error, like a lost acknowledgement.
type MockLogRepo struct {
	mu      sync.Mutex
	rows    []model.DeliveryLog
	failFor map[string]bool
	stats   map[string]int
}

func (m *MockLogRepo) Append(_ context.Context, l *model.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = fmt.Sprintf("l%d", len(m.rows)+1)
	m.rows = append(m.rows, *l)
	if m.failFor[l.CustomerID] {
		return errors.New("insert acknowledgement lost")
	}
	return nil
}

func (m *MockLogRepo) MostRecentForOwner(context.Context, string, int) ([]model.DeliveryLogView, error) {
	return nil, errors.New("not used")
}

func (m *MockLogRepo) StatsByCampaign(context.Context, string) (map[string]int, error) {
	return m.stats, nil
}

func (m *MockLogRepo) rowsFor(campaignID string) []model.DeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeliveryLog
	for _, r := range m.rows {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out
}

// MockSender fails for addresses in failTo and records what it sent.
type MockSender struct {
	mu     sync.Mutex
	failTo map[string]bool
	sent   map[string]string
}

func (m *MockSender) Send(_ context.Context, _ model.Channel, to, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[to] {
		return errors.New("provider rejected message")
	}
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[to] = message
	return nil
}
