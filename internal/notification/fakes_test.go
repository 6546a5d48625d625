package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/queue"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type fakeCampaigns struct {
	mu        sync.Mutex
	byID      map[string]model.Campaign
	recent    []model.Campaign
	recentErr error
	lookups   int

	// When set, MostRecent signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

// pause makes the next MostRecent calls block until the returned func runs.
func (f *fakeCampaigns) pause() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan struct{}, 1)
	f.release = make(chan struct{})
	var once sync.Once
	rel := f.release
	return f.entered, func() { once.Do(func() { close(rel) }) }
}

func (f *fakeCampaigns) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	c, ok := f.byID[id]
	if !ok {
		return nil, appErrors.NotFound("campaign", id)
	}
	return &c, nil
}

func (f *fakeCampaigns) MostRecent(_ context.Context, _ string, limit int) ([]model.Campaign, error) {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeLogs struct {
	recent []model.DeliveryLogView
	err    error
}

func (f *fakeLogs) MostRecentForOwner(_ context.Context, _ string, limit int) ([]model.DeliveryLogView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeCustomers map[string]string

func (f fakeCustomers) GetByID(_ context.Context, id string) (*model.Customer, error) {
	name, ok := f[id]
	if !ok {
		return nil, appErrors.NotFound("customer", id)
	}
	return &model.Customer{ID: id, Name: name}, nil
}

// trackingSource counts live subscriptions and can refuse a topic.
type trackingSource struct {
	*queue.InMemoryQueue
	mu     sync.Mutex
	active int
	failOn queue.Topic
}

func newTrackingSource() *trackingSource {
	return &trackingSource{InMemoryQueue: queue.NewInMemoryQueue()}
}

func (s *trackingSource) Subscribe(ctx context.Context, topic queue.Topic, h queue.Handler) (queue.Subscription, error) {
	if topic == s.failOn {
		return nil, errors.New("subscribe refused")
	}
	sub, err := s.InMemoryQueue.Subscribe(ctx, topic, h)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	return &trackedSub{Subscription: sub, src: s}, nil
}

func (s *trackingSource) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type trackedSub struct {
	queue.Subscription
	src  *trackingSource
	once sync.Once
}

func (t *trackedSub) Unsubscribe() error {
	t.once.Do(func() {
		t.src.mu.Lock()
		t.src.active--
		t.src.mu.Unlock()
	})
	return t.Subscription.Unsubscribe()
}

type fixture struct {
	campaigns *fakeCampaigns
	logs      *fakeLogs
	customers fakeCustomers
	source    *trackingSource
}

func newFixture() *fixture {
	return &fixture{
		campaigns: &fakeCampaigns{byID: map[string]model.Campaign{}},
		logs:      &fakeLogs{},
		customers: fakeCustomers{"cu1": "Ann"},
		source:    newTrackingSource(),
	}
}

func (f *fixture) stores() Stores {
	return Stores{Campaigns: f.campaigns, Logs: f.logs, Customers: f.customers}
}

func (f *fixture) session() *Session {
	return NewSession("u1", f.source, f.stores(), Options{Now: fixedNow})
}

func campaign(id, owner string, created time.Time) model.Campaign {
	return model.Campaign{
		ID: id, UserID: owner, Name: "Campaign " + id, Type: "win_back",
		Channel: model.ChannelEmail, Status: model.StatusDraft, CreatedAt: created,
	}
}

func logView(id, campaignID, owner string, sent time.Time) model.DeliveryLogView {
	name := "Ann"
	return model.DeliveryLogView{
		DeliveryLog: model.DeliveryLog{
			ID: id, CustomerID: "cu1", CampaignID: campaignID, Status: model.DeliverySent, SentAt: sent,
		},
		CampaignName:   "Campaign " + campaignID,
		CampaignUserID: owner,
		CustomerName:   &name,
	}
}

func countUnread(snap Snapshot) int {
	n := 0
	for _, v := range snap.Notifications {
		if v.Unread {
			n++
		}
	}
	return n
}
