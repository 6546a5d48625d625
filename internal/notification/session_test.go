package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/metrics"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/queue"
)

func TestStart_SingleCampaignBackfill(t *testing.T) {
	f := newFixture()
	f.campaigns.recent = []model.Campaign{campaign("c1", "u1", testNow.Add(-2*time.Minute))}

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	got := snap.Notifications[0]
	assert.Equal(t, "campaign-c1", got.ID)
	assert.False(t, got.Unread)
	assert.Equal(t, "2 mins ago", got.Time)
	assert.Equal(t, CategoryCampaign, got.Type)
	assert.Equal(t, "Campaign Created", got.Title)
	assert.Equal(t, `Your win back campaign "Campaign c1" is draft`, got.Message)
	assert.Equal(t, 0, snap.UnreadCount)
	assert.Equal(t, 2, f.source.activeCount())
}

func TestIngest_LiveEchoOfBackfilledRowIsIgnored(t *testing.T) {
	f := newFixture()
	c1 := campaign("c1", "u1", testNow.Add(-2*time.Minute))
	f.campaigns.recent = []model.Campaign{c1}

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	assert.False(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: c1}))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "campaign-c1", snap.Notifications[0].ID)
	assert.False(t, snap.Notifications[0].Unread)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestIngest_LiveCampaignIsPrependedUnread(t *testing.T) {
	f := newFixture()
	f.campaigns.recent = []model.Campaign{campaign("c1", "u1", testNow.Add(-time.Hour))}

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	live := campaign("c2", "u1", testNow.Add(-10*time.Second))
	require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: live}))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "campaign-c2", snap.Notifications[0].ID)
	assert.True(t, snap.Notifications[0].Unread)
	assert.Equal(t, "New Campaign Created", snap.Notifications[0].Title)
	assert.Equal(t, "Just now", snap.Notifications[0].Time)
	assert.Equal(t, 1, snap.UnreadCount)

	assert.False(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: live}), "second delivery of the same row")
	assert.Equal(t, 1, s.UnreadCount())
}

func TestIngest_ForeignEventsAreDiscarded(t *testing.T) {
	f := newFixture()
	f.campaigns.byID["theirs"] = campaign("theirs", "u2", testNow)

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	ctx := context.Background()
	assert.False(t, s.Ingest(ctx, queue.CampaignInserted{Campaign: campaign("x", "u2", testNow)}))
	assert.False(t, s.Ingest(ctx, queue.DeliveryLogInserted{Log: model.DeliveryLog{
		ID: "l1", CustomerID: "cu1", CampaignID: "theirs", Status: model.DeliverySent, SentAt: testNow,
	}}))
	assert.False(t, s.Ingest(ctx, queue.DeliveryLogInserted{Log: model.DeliveryLog{
		ID: "l2", CustomerID: "cu1", CampaignID: "deleted", Status: model.DeliverySent, SentAt: testNow,
	}}))

	assert.Empty(t, s.Snapshot().Notifications)
	assert.Equal(t, 2, f.campaigns.lookups, "every delivery log is checked against its campaign")
}

func TestIngest_LiveDeliveryLog(t *testing.T) {
	f := newFixture()
	f.campaigns.byID["c1"] = campaign("c1", "u1", testNow.Add(-time.Hour))

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	ctx := context.Background()
	require.True(t, s.Ingest(ctx, queue.DeliveryLogInserted{Log: model.DeliveryLog{
		ID: "l1", CustomerID: "cu1", CampaignID: "c1", Status: model.DeliverySent, SentAt: testNow.Add(-3 * time.Hour),
	}}))
	msg := "bounced"
	require.True(t, s.Ingest(ctx, queue.DeliveryLogInserted{Log: model.DeliveryLog{
		ID: "l2", CustomerID: "gone", CampaignID: "c1", Status: model.DeliveryFailed, Error: &msg, SentAt: testNow,
	}}))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "message-l2", snap.Notifications[0].ID)
	assert.Equal(t, "Message Failed", snap.Notifications[0].Title)
	assert.Contains(t, snap.Notifications[0].Message, "customer Unknown")

	assert.Equal(t, "message-l1", snap.Notifications[1].ID)
	assert.Equal(t, `Customer Ann received your message from "Campaign c1"`, snap.Notifications[1].Message)
	assert.Equal(t, "3 hours ago", snap.Notifications[1].Time)
	assert.Equal(t, 2, snap.UnreadCount)
}

func TestStart_MergesBackfillNewestFirstAndTruncates(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.campaigns.recent = append(f.campaigns.recent, campaign(fmt.Sprintf("c%d", i), "u1", testNow.Add(-time.Duration(2*i)*time.Hour)))
		f.logs.recent = append(f.logs.recent, logView(fmt.Sprintf("l%d", i), "c0", "u1", testNow.Add(-time.Duration(2*i+1)*time.Hour)))
	}
	f.logs.recent[2].CampaignUserID = "u2"
	f.logs.recent[3].SentAt = time.Time{}

	s := NewSession("u1", f.source, f.stores(), Options{Now: fixedNow, FeedLimit: 6})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	snap := s.Snapshot()
	var ids []string
	for _, v := range snap.Notifications {
		ids = append(ids, v.ID)
		assert.False(t, v.Unread)
	}
	assert.Equal(t, []string{"campaign-c0", "message-l0", "campaign-c1", "message-l1", "campaign-c2", "campaign-c3"}, ids)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestStart_BackfillFailureLeavesEmptyFeed(t *testing.T) {
	f := newFixture()
	f.campaigns.recent = []model.Campaign{campaign("c1", "u1", testNow)}
	f.logs.err = errors.New("connection refused")

	s := f.session()
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.KindAdapterUnavailable))

	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, 0, snap.UnreadCount)

	require.NoError(t, s.Close())
	assert.Equal(t, 0, f.source.activeCount())
}

func TestRefresh_Rebaselines(t *testing.T) {
	f := newFixture()
	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	live := campaign("c9", "u1", testNow)
	require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: live}))
	require.Equal(t, 1, s.UnreadCount())

	f.campaigns.recent = []model.Campaign{live}
	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.False(t, snap.Notifications[0].Unread)
	assert.Equal(t, 0, snap.UnreadCount)

	f.campaigns.recentErr = errors.New("timeout")
	require.Error(t, s.Refresh(context.Background()))
	assert.Empty(t, s.Snapshot().Notifications)
}

func TestMarkAsRead_FloorsAtZero(t *testing.T) {
	f := newFixture()
	f.campaigns.recent = []model.Campaign{campaign("c1", "u1", testNow.Add(-time.Hour))}

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	assert.True(t, s.MarkAsRead("campaign-c1"))
	assert.Equal(t, 0, s.UnreadCount())
	assert.True(t, s.MarkAsRead("campaign-c1"))
	assert.Equal(t, 0, s.UnreadCount())

	require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign("c2", "u1", testNow)}))
	require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign("c3", "u1", testNow)}))
	assert.True(t, s.MarkAsRead("campaign-c2"))
	assert.True(t, s.MarkAsRead("campaign-c2"))
	assert.Equal(t, 1, s.UnreadCount())
	assert.False(t, s.MarkAsRead("campaign-missing"))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestMarkAllAsRead(t *testing.T) {
	f := newFixture()
	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	s.MarkAllAsRead()
	assert.Equal(t, 0, s.UnreadCount())
	assert.Empty(t, s.Snapshot().Notifications)

	for i := 0; i < 3; i++ {
		require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign(fmt.Sprintf("c%d", i), "u1", testNow)}))
	}
	s.MarkAllAsRead()

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.UnreadCount)
	assert.Equal(t, 0, countUnread(snap))
	assert.Len(t, snap.Notifications, 3)
}

func TestIngest_LiveGrowthIsCapped(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.campaigns.recent = append(f.campaigns.recent, campaign(fmt.Sprintf("old%d", i), "u1", testNow.Add(-time.Duration(i+1)*time.Hour)))
	}

	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	for i := 0; i < 12; i++ {
		require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign(fmt.Sprintf("new%d", i), "u1", testNow)}))
	}

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, DefaultFeedLimit)
	assert.Equal(t, "campaign-new11", snap.Notifications[0].ID)
	assert.Equal(t, "campaign-new2", snap.Notifications[DefaultFeedLimit-1].ID)
	assert.Equal(t, DefaultFeedLimit, snap.UnreadCount)
	assert.Equal(t, countUnread(snap), snap.UnreadCount)
}

func TestSession_ReceivesFromSource(t *testing.T) {
	f := newFixture()
	m := metrics.NewNop()
	s := NewSession("u1", f.source, f.stores(), Options{Now: fixedNow, Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel() // subscriptions must outlive the starting request
	defer s.Close()

	require.NoError(t, f.source.Publish(context.Background(), queue.CampaignInserted{Campaign: campaign("c1", "u1", testNow)}))
	f.source.Wait()

	assert.Equal(t, 1, s.UnreadCount())
}

func TestClose_ReleasesSubscriptions(t *testing.T) {
	f := newFixture()
	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 2, f.source.activeCount())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, f.source.activeCount())
	require.NoError(t, s.Close())

	require.NoError(t, f.source.Publish(context.Background(), queue.CampaignInserted{Campaign: campaign("c1", "u1", testNow)}))
	f.source.Wait()
	assert.False(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign("c2", "u1", testNow)}))
	assert.Empty(t, s.Snapshot().Notifications)
}

func TestClose_AfterPartialSubscribe(t *testing.T) {
	f := newFixture()
	f.source.failOn = queue.TopicDeliveryLogs

	s := f.session()
	err := s.Start(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.KindAdapterUnavailable))
	assert.Equal(t, 1, f.source.activeCount())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, f.source.activeCount())
}

func TestClose_NeverStarted(t *testing.T) {
	s := newFixture().session()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Start(context.Background()), "start after close is a no-op")
}

func TestSession_ConcurrentMutationsKeepCounterConsistent(t *testing.T) {
	f := newFixture()
	f.campaigns.byID["c1"] = campaign("c1", "u1", testNow)
	s := f.session()
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			s.Ingest(context.Background(), queue.CampaignInserted{Campaign: campaign(fmt.Sprintf("c%d", i%20), "u1", testNow)})
		}()
		go func() {
			defer wg.Done()
			s.Ingest(context.Background(), queue.DeliveryLogInserted{Log: model.DeliveryLog{
				ID: fmt.Sprintf("l%d", i), CustomerID: "cu1", CampaignID: "c1", Status: model.DeliverySent, SentAt: testNow,
			}})
		}()
		go func() {
			defer wg.Done()
			if i%7 == 0 {
				s.MarkAllAsRead()
			} else {
				s.MarkAsRead(fmt.Sprintf("campaign-c%d", i%20))
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.LessOrEqual(t, len(snap.Notifications), DefaultFeedLimit)
	assert.Equal(t, countUnread(snap), snap.UnreadCount)
	assert.GreaterOrEqual(t, snap.UnreadCount, 0)

	seen := map[string]bool{}
	for _, v := range snap.Notifications {
		assert.False(t, seen[v.ID], "duplicate %s", v.ID)
		seen[v.ID] = true
	}
}

func startPaused(t *testing.T, f *fixture) (*Session, func() error) {
	t.Helper()
	entered, release := f.campaigns.pause()
	s := f.session()
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("backfill never started")
	}
	return s, func() error {
		release()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("start did not finish")
			return nil
		}
	}
}

func TestStart_KeepsLiveEntriesIngestedDuringBackfill(t *testing.T) {
	f := newFixture()
	f.campaigns.recent = []model.Campaign{campaign("c1", "u1", testNow.Add(-time.Hour))}

	s, finish := startPaused(t, f)
	defer s.Close()

	c9 := campaign("c9", "u1", testNow.Add(-time.Minute))
	assert.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: c9}))
	require.NoError(t, finish())

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "campaign-c9", snap.Notifications[0].ID)
	assert.True(t, snap.Notifications[0].Unread)
	assert.Equal(t, "campaign-c1", snap.Notifications[1].ID)
	assert.False(t, snap.Notifications[1].Unread)
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestStart_LiveEntryAlsoInBackfillAppearsOnce(t *testing.T) {
	f := newFixture()
	c9 := campaign("c9", "u1", testNow.Add(-time.Minute))
	f.campaigns.recent = []model.Campaign{c9, campaign("c1", "u1", testNow.Add(-time.Hour))}

	s, finish := startPaused(t, f)
	defer s.Close()

	assert.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: c9}))
	require.NoError(t, finish())

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "campaign-c9", snap.Notifications[0].ID)
	assert.True(t, snap.Notifications[0].Unread)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, countUnread(snap), snap.UnreadCount)
}

func TestRefresh_LiveEntryReadDuringBackfillStaysRead(t *testing.T) {
	f := newFixture()
	s, finish := startPaused(t, f)
	defer s.Close()

	c9 := campaign("c9", "u1", testNow.Add(-time.Minute))
	require.True(t, s.Ingest(context.Background(), queue.CampaignInserted{Campaign: c9}))
	require.True(t, s.MarkAsRead("campaign-c9"))
	require.NoError(t, finish())

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.False(t, snap.Notifications[0].Unread)
	assert.Equal(t, 0, snap.UnreadCount)

	// Once the backfill is done, a later refresh rebaselines as usual.
	require.NoError(t, s.Refresh(context.Background()))
	assert.Empty(t, s.Snapshot().Notifications)
}
