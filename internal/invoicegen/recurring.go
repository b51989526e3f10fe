package invoicegen

import (
	"time"

	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/billingcycle"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/proration"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// recurringProposal is what the events of one subscription imply for its
// recurring charges as of the target date.
type recurringProposal struct {
	items []*invoice.InvoiceItem
	// floor is the earliest billable start across the subscription's
	// windows. Existing items ending on or before it are not reconciled.
	floor *time.Time
	// period used to prorate repairs
	period types.BillingPeriod

	nextDate *time.Time
	mode     types.BillingMode
}

// proposeRecurring walks the events pairwise. Each event opens a window that
// the next event closes; the windows yield a leading prorated item, whole
// periods and a trailing prorated item.
func (g *Generator) proposeRecurring(events []*billing.Event, target time.Time) (*recurringProposal, error) {
	out := &recurringProposal{}

	for i, cur := range events {
		if i+1 < len(events) {
			// a later event on the same day wins
			if events[i+1].Day().Equal(cur.Day()) {
				continue
			}
		}
		if !cur.BillsRecurring() {
			continue
		}
		start := cur.Day()
		var end *time.Time
		if i+1 < len(events) {
			end = lo.ToPtr(events[i+1].Day())
		}

		if target.Before(start) {
			if out.nextDate == nil || start.Before(*out.nextDate) {
				out.nextDate = lo.ToPtr(start)
				out.mode = cur.BillingMode
			}
			break
		}
		out.period = cur.BillingPeriod
		out.mode = cur.BillingMode

		iv, err := billingcycle.New(billingcycle.Params{
			StartDate:    start,
			EndDate:      end,
			TargetDate:   target,
			BillCycleDay: cur.BillCycleDayLocal,
			Period:       cur.BillingPeriod,
			Mode:         cur.BillingMode,
			Greedy:       g.config.InArrearGreedy,
		})
		if err != nil {
			return nil, err
		}

		if billable := iv.BillableStartDate(); out.floor == nil || billable.Before(*out.floor) {
			out.floor = lo.ToPtr(billable)
		}

		items := g.windowItems(cur, iv, start)
		out.items = append(out.items, items...)
		out.nextDate = nextRecurringDate(cur.BillingMode, iv, end, items)
	}

	if n := len(events); n > 0 {
		last := events[n-1]
		if last.TransitionType.StopsBilling() && !last.Day().After(target) {
			out.nextDate = nil
		}
	}
	return out, nil
}

func nextRecurringDate(mode types.BillingMode, iv *billingcycle.Interval, end *time.Time, items []*invoice.InvoiceItem) *time.Time {
	if mode == types.BillingModeInAdvance {
		var next *time.Time
		for _, item := range items {
			if item.Amount.IsNegative() || item.EndDate == nil {
				continue
			}
			if next == nil || item.EndDate.After(*next) {
				next = lo.ToPtr(*item.EndDate)
			}
		}
		return next
	}

	effectiveEnd := iv.EffectiveEndDate()
	if end != nil && effectiveEnd != nil && !effectiveEnd.Before(*end) {
		return nil
	}
	next := iv.NextBillingCycleDate()
	if end != nil && end.Before(next) {
		next = *end
	}
	return &next
}

// windowItems bills [billable start, effective end) of one window.
func (g *Generator) windowItems(e *billing.Event, iv *billingcycle.Interval, start time.Time) []*invoice.InvoiceItem {
	if !iv.HasSomethingToBill() {
		return nil
	}
	end := *iv.EffectiveEndDate()
	period := e.BillingPeriod
	rate := *e.RecurringPrice
	sub, bundle, plan, phase := e.SubscriptionDetails()
	details := invoice.SubscriptionDetails{SubscriptionID: sub, BundleID: bundle, PlanName: plan, PhaseName: phase}

	var items []*invoice.InvoiceItem
	add := func(from, to time.Time, cycles decimal.Decimal) {
		if from.Before(iv.BillableStartDate()) {
			return
		}
		amount := types.RoundToCurrencyPrecision(rate.Mul(cycles), e.Currency)
		if !amount.IsPositive() {
			return
		}
		items = append(items, invoice.NewRecurringItem(details, from, to, amount, rate, e.Currency))
	}

	firstBCD := iv.FirstBillingCycleDate()
	if start.Before(firstBCD) {
		if !end.After(firstBCD) {
			previous := proration.RecedeByNPeriods(firstBCD, period, 1)
			add(start, end, g.calc.ProrationBetween(start, end, previous, firstBCD, period))
			return items
		}
		add(start, firstBCD, g.calc.ProrationBeforeFirstBillingPeriod(start, firstBCD, period))
	}

	for n := 0; n < iv.WholePeriods(); n++ {
		add(iv.FutureBillingDateFor(n), iv.FutureBillingDateFor(n+1), decimal.NewFromInt(1))
	}

	if lastBCD := iv.LastBillingCycleDate(); lastBCD.Before(end) {
		add(lastBCD, end, g.calc.ProrationAfterLastBillingCycleDate(end, lastBCD, period))
	}
	return items
}
