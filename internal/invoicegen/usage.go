package invoicegen

import (
	"sort"
	"time"

	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/billingcycle"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// usageInterval is a contiguous span during which a subscription carries an
// IN_ARREAR usage section.
type usageInterval struct {
	subscriptionID string
	name           string
	start          time.Time
	end            *time.Time
	// events carrying the usage inside the span, in sequence order
	events []*billing.Event
}

type usageKey struct {
	subscriptionID string
	name           string
}

func arrearUsages(e *billing.Event) map[string]billing.UsageDefinition {
	out := make(map[string]billing.UsageDefinition)
	if e.TransitionType.StopsBilling() {
		return out
	}
	for _, u := range e.Usages {
		if u.BillingMode == types.BillingModeInArrear {
			out[u.Name] = u
		}
	}
	return out
}

// usageIntervals splits the events of one subscription into contiguous
// usage spans. A span closes on the first event without the usage.
func usageIntervals(events []*billing.Event) []*usageInterval {
	var out []*usageInterval
	open := make(map[string]*usageInterval)

	for _, e := range events {
		usages := arrearUsages(e)
		for name, ui := range open {
			if _, ok := usages[name]; ok {
				continue
			}
			ui.end = lo.ToPtr(e.Day())
			delete(open, name)
		}
		names := lo.Keys(usages)
		sort.Strings(names)
		for _, name := range names {
			ui, ok := open[name]
			if !ok {
				ui = &usageInterval{subscriptionID: e.SubscriptionID, name: name, start: e.Day()}
				open[name] = ui
				out = append(out, ui)
			}
			ui.events = append(ui.events, e)
		}
	}

	return lo.Filter(out, func(ui *usageInterval, _ int) bool {
		return ui.end == nil || ui.end.After(ui.start)
	})
}

// eventAt returns the event in force on day.
func (ui *usageInterval) eventAt(day time.Time) *billing.Event {
	current := ui.events[0]
	for _, e := range ui.events[1:] {
		if e.Day().After(day) {
			break
		}
		current = e
	}
	return current
}

func (ui *usageInterval) interval(target time.Time) (*billingcycle.Interval, bool, error) {
	if target.Before(ui.start) {
		return nil, false, nil
	}
	first := ui.events[0]
	def, _ := first.FindUsage(ui.name)
	period := def.BillingPeriod
	if !period.IsRecurring() {
		period = first.BillingPeriod
	}
	if !period.IsRecurring() {
		return nil, false, nil
	}
	iv, err := billingcycle.New(billingcycle.Params{
		StartDate:    ui.start,
		EndDate:      ui.end,
		TargetDate:   target,
		BillCycleDay: first.BillCycleDayLocal,
		Period:       period,
		Mode:         types.BillingModeInArrear,
		Greedy:       true,
	})
	if err != nil {
		return nil, false, err
	}
	return iv, true, nil
}

// periods returns the completed usage periods of the span as of target.
func (ui *usageInterval) periods(iv *billingcycle.Interval) []dateRange {
	end := iv.EffectiveEndDate()
	if end == nil || !end.After(ui.start) {
		return nil
	}
	points := []time.Time{ui.start}
	for n := 0; ; n++ {
		b := iv.FutureBillingDateFor(n)
		if b.After(*end) {
			break
		}
		if b.After(points[len(points)-1]) {
			points = append(points, b)
		}
	}
	if last := points[len(points)-1]; end.After(last) {
		points = append(points, *end)
	}

	out := make([]dateRange, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		out = append(out, dateRange{start: points[i-1], end: points[i]})
	}
	return out
}

// lastUsageEnds returns, per subscription and usage name, the latest end
// date already invoiced.
func lastUsageEnds(invoices []*invoice.Invoice) map[usageKey]time.Time {
	out := make(map[usageKey]time.Time)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if item.Type != types.InvoiceItemTypeUsage || item.EndDate == nil {
				continue
			}
			key := usageKey{subscriptionID: item.GetSubscriptionID(), name: item.UsageName}
			if current, ok := out[key]; !ok || item.EndDate.After(current) {
				out[key] = *item.EndDate
			}
		}
	}
	return out
}

// UsageWindow returns the raw usage the caller must fetch for a pass, nil
// when no IN_ARREAR usage can be billed. The window ends at the same
// effective target date Generate bills up to.
func UsageWindow(accountID string, events billing.EventSet, existing []*invoice.Invoice, targetDate time.Time) *usage.Window {
	target := EffectiveTargetDate(targetDate, existing)
	billed := lastUsageEnds(existing)

	var start *time.Time
	subs := make(map[string]bool)
	for sub, subEvents := range events.BySubscription() {
		for _, ui := range usageIntervals(subEvents) {
			from := ui.start
			if last, ok := billed[usageKey{subscriptionID: sub, name: ui.name}]; ok && last.After(from) {
				from = last
			}
			if !from.Before(target) {
				continue
			}
			subs[sub] = true
			if start == nil || from.Before(*start) {
				start = lo.ToPtr(from)
			}
		}
	}
	if start == nil {
		return nil
	}

	ids := lo.Keys(subs)
	sort.Strings(ids)
	return &usage.Window{
		AccountID:       accountID,
		SubscriptionIDs: ids,
		StartDate:       *start,
		EndDate:         target,
	}
}

type unitKey struct {
	subscriptionID string
	unitType       string
}

// usageGenerator bills the IN_ARREAR usage of one pass.
type usageGenerator struct {
	target  time.Time
	billed  map[usageKey]time.Time
	records map[unitKey][]*usage.RawUsage
}

func newUsageGenerator(target time.Time, existing []*invoice.Invoice, raw []*usage.RawUsage) *usageGenerator {
	records := make(map[unitKey][]*usage.RawUsage)
	for _, r := range raw {
		key := unitKey{subscriptionID: r.SubscriptionID, unitType: r.UnitType}
		records[key] = append(records[key], r)
	}
	return &usageGenerator{
		target:  target,
		billed:  lastUsageEnds(existing),
		records: records,
	}
}

func (u *usageGenerator) quantity(sub, unitType string, period dateRange) decimal.Decimal {
	total := decimal.Zero
	for _, r := range u.records[unitKey{subscriptionID: sub, unitType: unitType}] {
		day := types.ToDate(r.RecordDate)
		if !day.Before(period.start) && day.Before(period.end) {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// generate returns the usage items of one subscription and records the next
// usage notification dates.
func (u *usageGenerator) generate(events []*billing.Event, existing []*existingItem, notifications FutureNotifications) ([]*invoice.InvoiceItem, error) {
	var out []*invoice.InvoiceItem
	for _, ui := range usageIntervals(events) {
		iv, ok, err := ui.interval(u.target)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if ui.end == nil || ui.end.After(u.target) {
			next := iv.NextBillingCycleDate()
			if ui.end != nil && ui.end.Before(next) {
				next = *ui.end
			}
			notifications.setUsage(ui.subscriptionID, ui.name, next)
		}

		from, hasBilled := u.billed[usageKey{subscriptionID: ui.subscriptionID, name: ui.name}]
		for _, period := range ui.periods(iv) {
			if hasBilled && period.start.Before(from) {
				continue
			}
			out = append(out, u.periodItems(ui, period, existing)...)
		}
	}
	return out, nil
}

func (u *usageGenerator) periodItems(ui *usageInterval, period dateRange, existing []*existingItem) []*invoice.InvoiceItem {
	e := ui.eventAt(period.start)
	def, ok := e.FindUsage(ui.name)
	if !ok {
		return nil
	}
	sub, bundle, plan, phase := e.SubscriptionDetails()
	details := invoice.SubscriptionDetails{SubscriptionID: sub, BundleID: bundle, PlanName: plan, PhaseName: phase}

	var out []*invoice.InvoiceItem
	for _, unitType := range def.UnitTypes() {
		qty := u.quantity(ui.subscriptionID, unitType, period)
		amount := types.RoundToCurrencyPrecision(def.Price(unitType, qty), e.Currency)

		billed := decimal.Zero
		for _, x := range existing {
			if x.item.UsageName != ui.name || x.item.UnitType != unitType || x.item.EndDate == nil {
				continue
			}
			if period.contains(x.period()) {
				billed = billed.Add(x.remaining)
			}
		}

		delta := amount.Sub(billed)
		if !delta.IsPositive() {
			continue
		}
		out = append(out, invoice.NewUsageItem(details, ui.name, unitType, period.start, period.end, qty, delta, e.Currency))
	}
	return out
}
