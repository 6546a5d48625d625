// Package notification keeps a per-user feed of recent campaign and delivery
// activity, built from a backfill of recent rows and kept current by live
// insert events.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/retention-backend/internal/model"
)

type Category string

const (
	CategoryCampaign Category = "campaign"
	CategoryMessage  Category = "message"
	CategorySystem   Category = "system"
)

// Entry is one feed item. Its ID is derived from the origin row, so the same
// row seen through backfill and through a live event maps to the same entry.
type Entry struct {
	ID         string
	Title      string
	Message    string
	Category   Category
	CausalTime time.Time
	Unread     bool
}

// View is the rendered form of an Entry.
type View struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Category  `json:"type"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"created_at"`
	Unread    bool      `json:"unread"`
}

type Snapshot struct {
	Notifications []View `json:"notifications"`
	UnreadCount   int    `json:"unread_count"`
}

func CampaignEntryID(campaignID string) string { return "campaign-" + campaignID }

func MessageEntryID(logID string) string { return "message-" + logID }

// CampaignReader is what a session needs from campaign storage.
type CampaignReader interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	MostRecent(ctx context.Context, userID string, limit int) ([]model.Campaign, error)
}

type DeliveryLogReader interface {
	MostRecentForOwner(ctx context.Context, userID string, limit int) ([]model.DeliveryLogView, error)
}

type CustomerReader interface {
	GetByID(ctx context.Context, id string) (*model.Customer, error)
}

type Stores struct {
	Campaigns CampaignReader
	Logs      DeliveryLogReader
	Customers CustomerReader
}

const unknownCustomer = "Unknown"

func campaignEntry(c model.Campaign, live bool) (Entry, error) {
	if c.ID == "" || c.CreatedAt.IsZero() {
		return Entry{}, fmt.Errorf("campaign row without id or created_at")
	}
	kind := strings.TrimSpace(strings.ReplaceAll(c.Type, "_", " "))
	if kind != "" {
		kind += " "
	}

	e := Entry{
		ID:         CampaignEntryID(c.ID),
		Category:   CategoryCampaign,
		CausalTime: c.CreatedAt,
		Unread:     live,
	}
	if live {
		e.Title = "New Campaign Created"
		e.Message = fmt.Sprintf("Your %scampaign \"%s\" is now %s", kind, c.Name, c.Status)
	} else {
		e.Title = "Campaign Created"
		e.Message = fmt.Sprintf("Your %scampaign \"%s\" is %s", kind, c.Name, c.Status)
	}
	return e, nil
}

func messageEntry(l model.DeliveryLog, campaignName, customerName string, live bool) (Entry, error) {
	if l.ID == "" || l.SentAt.IsZero() {
		return Entry{}, fmt.Errorf("delivery log row without id or sent_at")
	}
	if customerName == "" {
		customerName = unknownCustomer
	}

	e := Entry{
		ID:         MessageEntryID(l.ID),
		Category:   CategoryMessage,
		CausalTime: l.SentAt,
		Unread:     live,
	}
	switch l.Status {
	case model.DeliverySent:
		e.Title = "Message Sent"
		e.Message = fmt.Sprintf("Customer %s received your message from \"%s\"", customerName, campaignName)
	case model.DeliveryFailed:
		e.Title = "Message Failed"
		e.Message = fmt.Sprintf("Your message from \"%s\" to customer %s could not be delivered", campaignName, customerName)
	default:
		return Entry{}, fmt.Errorf("delivery log %s has unknown status %q", l.ID, l.Status)
	}
	return e, nil
}

func (e Entry) render(now time.Time) View {
	return View{
		ID:        e.ID,
		Title:     e.Title,
		Message:   e.Message,
		Type:      e.Category,
		Time:      RelativeTime(e.CausalTime, now),
		CreatedAt: e.CausalTime,
		Unread:    e.Unread,
	}
}
