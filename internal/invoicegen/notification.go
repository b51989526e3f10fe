package invoicegen

import (
	"time"

	"github.com/flexprice/invoicer/internal/types"
)

// SubscriptionNotifications are the next wake-up dates of one subscription.
type SubscriptionNotifications struct {
	SubscriptionID string
	// NextRecurringDate is nil when nothing recurring is left to bill
	NextRecurringDate *time.Time
	RecurringMode     types.BillingMode
	// NextUsageDates is keyed by usage name
	NextUsageDates map[string]time.Time
}

// FutureNotifications is keyed by subscription id.
type FutureNotifications map[string]*SubscriptionNotifications

func (f FutureNotifications) get(subscriptionID string) *SubscriptionNotifications {
	n, ok := f[subscriptionID]
	if !ok {
		n = &SubscriptionNotifications{
			SubscriptionID: subscriptionID,
			NextUsageDates: make(map[string]time.Time),
		}
		f[subscriptionID] = n
	}
	return n
}

func (f FutureNotifications) setRecurring(subscriptionID string, date time.Time, mode types.BillingMode) {
	n := f.get(subscriptionID)
	n.NextRecurringDate = &date
	n.RecurringMode = mode
}

func (f FutureNotifications) setUsage(subscriptionID, usageName string, date time.Time) {
	n := f.get(subscriptionID)
	if current, ok := n.NextUsageDates[usageName]; !ok || date.After(current) {
		n.NextUsageDates[usageName] = date
	}
}

// prune drops subscriptions left without any pending date.
func (f FutureNotifications) prune() {
	for id, n := range f {
		if n.NextRecurringDate == nil && len(n.NextUsageDates) == 0 {
			delete(f, id)
		}
	}
}

// Earliest returns the earliest pending date of the subscription.
func (n *SubscriptionNotifications) Earliest() (time.Time, bool) {
	var out time.Time
	found := false
	if n.NextRecurringDate != nil {
		out, found = *n.NextRecurringDate, true
	}
	for _, d := range n.NextUsageDates {
		if !found || d.Before(out) {
			out, found = d, true
		}
	}
	return out, found
}
