package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/metrics"
	"github.com/unclebandit/retention-backend/internal/queue"
)

const (
	DefaultFeedLimit     = 10
	DefaultBackfillLimit = 5
)

type Options struct {
	FeedLimit     int
	BackfillLimit int
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Session owns one user's feed. The feed and its unread counter always change
// together under mu, so UnreadCount equals the number of unread entries.
type Session struct {
	userID string
	source queue.Source
	stores Stores
	opts   Options

	mu     sync.Mutex
	feed   []Entry
	unread int
	closed bool

	// refreshing counts backfills in flight; live holds what Ingest added meanwhile.
	refreshing int
	live       []Entry

	subMu  sync.Mutex
	subs   []queue.Subscription
	cancel context.CancelFunc
}

func NewSession(userID string, source queue.Source, stores Stores, opts Options) *Session {
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = DefaultFeedLimit
	}
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = DefaultBackfillLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{userID: userID, source: source, stores: stores, opts: opts}
}

func (s *Session) UserID() string { return s.userID }

// Start subscribes to both live topics and then builds the feed from backfill.
// Inserts that land while the backfill runs arrive live and are kept on top of
// the rebuilt feed; rows seen both ways collapse to one entry. The subscriptions
// outlive ctx and last until Close.
func (s *Session) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.subMu.Lock()
	if s.isClosed() {
		s.subMu.Unlock()
		cancel()
		return nil
	}
	s.cancel = cancel
	s.subMu.Unlock()

	for _, topic := range []queue.Topic{queue.TopicCampaigns, queue.TopicDeliveryLogs} {
		sub, err := s.source.Subscribe(subCtx, topic, s)
		if err != nil {
			return appErrors.AdapterUnavailable("event source", err)
		}

		s.subMu.Lock()
		if s.isClosed() {
			s.subMu.Unlock()
			_ = sub.Unsubscribe()
			return nil
		}
		s.subs = append(s.subs, sub)
		s.subMu.Unlock()
	}
	return s.Refresh(ctx)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Refresh rebuilds the feed from backfill. Every rebuilt entry is read and the
// unread counter restarts at zero, except for live entries ingested while the
// backfill ran: those stay unread at the head of the feed. If either backfill
// query fails the feed is left empty.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing == 0 {
		s.live = nil
	}
	s.refreshing++
	s.mu.Unlock()

	campaigns, err := s.stores.Campaigns.MostRecent(ctx, s.userID, s.opts.BackfillLimit)
	if err != nil {
		s.reset()
		return appErrors.AdapterUnavailable("campaign backfill", err)
	}
	logs, err := s.stores.Logs.MostRecentForOwner(ctx, s.userID, s.opts.BackfillLimit)
	if err != nil {
		s.reset()
		return appErrors.AdapterUnavailable("delivery log backfill", err)
	}

	entries := make([]Entry, 0, len(campaigns)+len(logs))
	for _, c := range campaigns {
		if c.UserID != s.userID {
			continue
		}
		e, err := campaignEntry(c, false)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("skipping campaign backfill row")
			continue
		}
		entries = append(entries, e)
	}
	for _, l := range logs {
		if l.CampaignUserID != s.userID {
			continue
		}
		name := ""
		if l.CustomerName != nil {
			name = *l.CustomerName
		}
		e, err := messageEntry(l.DeliveryLog, l.CampaignName, name, false)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("skipping delivery log backfill row")
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CausalTime.After(entries[j].CausalTime)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.live
	s.endRefresh()
	if s.closed {
		return nil
	}

	// Newest live arrival first, then the backfill baseline. A live entry keeps
	// the read state it has in the current feed.
	current := make(map[string]Entry, len(s.feed))
	for _, e := range s.feed {
		current[e.ID] = e
	}
	merged := make([]Entry, 0, len(live)+len(entries))
	for i := len(live) - 1; i >= 0; i-- {
		e := live[i]
		if c, ok := current[e.ID]; ok {
			e = c
		}
		merged = append(merged, e)
	}
	merged = append(merged, entries...)

	feed := make([]Entry, 0, s.opts.FeedLimit)
	seen := make(map[string]bool, len(merged))
	unread := 0
	for _, e := range merged {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		feed = append(feed, e)
		if e.Unread {
			unread++
		}
		if len(feed) == s.opts.FeedLimit {
			break
		}
	}

	s.feed = feed
	s.unread = unread
	return nil
}

// endRefresh is called with mu held.
func (s *Session) endRefresh() {
	s.refreshing--
	if s.refreshing == 0 {
		s.live = nil
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endRefresh()
	s.feed = nil
	s.unread = 0
}

// Handle makes the session a queue.Handler for its own subscriptions.
func (s *Session) Handle(ctx context.Context, ev queue.Event) {
	s.Ingest(ctx, ev)
}

// Ingest turns one live event into an unread entry at the head of the feed.
// It reports whether the feed changed. Events for other users, events whose
// campaign cannot be confirmed as owned, and rows already in the feed are ignored.
func (s *Session) Ingest(ctx context.Context, ev queue.Event) bool {
	e, ok := s.liveEntry(ctx, ev)
	if !ok {
		s.count(ev, "ignored")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, existing := range s.feed {
		if existing.ID == e.ID {
			s.count(ev, "duplicate")
			return false
		}
	}

	s.feed = append([]Entry{e}, s.feed...)
	s.unread++
	if s.refreshing > 0 {
		s.live = append(s.live, e)
	}
	for len(s.feed) > s.opts.FeedLimit {
		evicted := s.feed[len(s.feed)-1]
		s.feed = s.feed[:len(s.feed)-1]
		if evicted.Unread {
			s.unread--
		}
	}
	s.count(ev, "added")
	return true
}

// liveEntry runs the lookups a live event needs. It never holds mu.
func (s *Session) liveEntry(ctx context.Context, ev queue.Event) (Entry, bool) {
	switch ev := ev.(type) {
	case queue.CampaignInserted:
		if ev.Campaign.UserID != s.userID {
			return Entry{}, false
		}
		e, err := campaignEntry(ev.Campaign, true)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("dropping live campaign event")
			return Entry{}, false
		}
		return e, true

	case queue.DeliveryLogInserted:
		campaign, err := s.stores.Campaigns.GetByID(ctx, ev.Log.CampaignID)
		if err != nil {
			if !appErrors.Is(err, appErrors.KindNotFound) {
				log.Warn().Err(err).Str("campaign_id", ev.Log.CampaignID).Msg("ownership lookup failed for live delivery log")
			}
			return Entry{}, false
		}
		if campaign.UserID != s.userID {
			return Entry{}, false
		}

		name := ""
		if customer, err := s.stores.Customers.GetByID(ctx, ev.Log.CustomerID); err == nil {
			name = customer.Name
		}
		e, err := messageEntry(ev.Log, campaign.Name, name, true)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("dropping live delivery log event")
			return Entry{}, false
		}
		return e, true
	}
	return Entry{}, false
}

func (s *Session) count(ev queue.Event, result string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.EventsIngested.WithLabelValues(string(ev.Topic()), result).Inc()
	}
}

// MarkAsRead flips one unread entry to read. It reports whether the entry exists.
// The counter only moves when an entry actually changes, so it never goes negative.
func (s *Session) MarkAsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feed {
		if s.feed[i].ID != id {
			continue
		}
		if s.feed[i].Unread {
			s.feed[i].Unread = false
			s.unread = max(0, s.unread-1)
		}
		return true
	}
	return false
}

func (s *Session) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feed {
		s.feed[i].Unread = false
	}
	s.unread = 0
}

func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Snapshot renders the feed, newest first, with relative times as of now.
func (s *Session) Snapshot() Snapshot {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]View, len(s.feed))
	for i, e := range s.feed {
		views[i] = e.render(now)
	}
	return Snapshot{Notifications: views, UnreadCount: s.unread}
}

// Close releases every live subscription and drops the feed. Further events are ignored.
// It is safe to call more than once and on a session that never started.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.feed = nil
	s.live = nil
	s.unread = 0
	s.mu.Unlock()

	s.subMu.Lock()
	subs, cancel := s.subs, s.cancel
	s.subs, s.cancel = nil, nil
	s.subMu.Unlock()

	err := queue.UnsubscribeAll(subs)
	if cancel != nil {
		cancel()
	}
	return err
}

var _ queue.Handler = (*Session)(nil)
