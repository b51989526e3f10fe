package invoicegen

import (
	"sort"
	"time"

	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/types"
)

// proposeFixed returns at most one FIXED item per effective day of the
// subscription. Same-day transitions collapse to the last one by sequence
// number and a same-day CANCEL or PAUSE leaves nothing to bill.
func proposeFixed(events []*billing.Event, target time.Time) map[time.Time]*invoice.InvoiceItem {
	lastOfDay := make(map[time.Time]*billing.Event)
	for _, e := range events {
		day := e.Day()
		if day.After(target) {
			continue
		}
		if prev, ok := lastOfDay[day]; !ok || e.SequenceNumber >= prev.SequenceNumber {
			lastOfDay[day] = e
		}
	}

	out := make(map[time.Time]*invoice.InvoiceItem)
	for day, e := range lastOfDay {
		if e.TransitionType.StopsBilling() || e.FixedPrice == nil {
			continue
		}
		sub, bundle, plan, phase := e.SubscriptionDetails()
		out[day] = invoice.NewFixedItem(
			invoice.SubscriptionDetails{SubscriptionID: sub, BundleID: bundle, PlanName: plan, PhaseName: phase},
			day,
			types.RoundToCurrencyPrecision(*e.FixedPrice, e.Currency),
			e.Currency,
		)
	}
	return out
}

// reconcileFixed matches proposed and existing FIXED items day by day. Days
// before the cutoff are left alone.
func reconcileFixed(subscriptionID string, proposals map[time.Time]*invoice.InvoiceItem, existing []*existingItem, cutoff *time.Time) ([]*invoice.InvoiceItem, error) {
	existingByDay := make(map[time.Time][]*existingItem)
	days := make(map[time.Time]bool)
	for _, x := range existing {
		day := types.ToDate(x.item.StartDate)
		existingByDay[day] = append(existingByDay[day], x)
		days[day] = true
	}
	for day := range proposals {
		days[day] = true
	}

	ordered := make([]time.Time, 0, len(days))
	for day := range days {
		if cutoff != nil && day.Before(*cutoff) {
			continue
		}
		ordered = append(ordered, day)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var out []*invoice.InvoiceItem
	for _, day := range ordered {
		var billed []*existingItem
		for _, x := range existingByDay[day] {
			if x.live() || x.settled() {
				billed = append(billed, x)
			}
		}
		if len(billed) > 1 {
			return nil, integrityError("double billing detected", map[string]any{
				"subscription_id": subscriptionID,
				"day":             day,
				"items":           len(billed),
			})
		}

		proposed := proposals[day]
		if len(billed) == 0 {
			if proposed != nil {
				out = append(out, proposed)
			}
			continue
		}

		x := billed[0]
		if x.settled() {
			continue
		}
		if proposed != nil && proposed.Amount.Equal(x.item.Amount) {
			continue
		}
		// zero amount items get a zero repair so they stop counting as billed
		out = append(out, invoice.NewRepairItem(x.item, day, nil, x.remaining.Neg()))
		x.repairedNow = true
		if proposed != nil {
			out = append(out, proposed)
		}
	}
	return out, nil
}
