package invoicegen

import (
	"sort"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/proration"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// existingItem is a persisted charge together with the corrections linked
// to it.
type existingItem struct {
	item        *invoice.InvoiceItem
	invoiceDate time.Time
	repairs     []*invoice.InvoiceItem
	adjustments []*invoice.InvoiceItem
	remaining   decimal.Decimal
	// unrepaired is the part of the service period no repair points at.
	// Only set for RECURRING and USAGE items.
	unrepaired []dateRange
	// repairedNow is set once this pass emits a repair against the item
	repairedNow bool
}

func (e *existingItem) period() dateRange {
	return dateRange{start: e.item.StartDate, end: lo.FromPtr(e.item.EndDate)}
}

// live items are billed and may be repaired.
func (e *existingItem) live() bool {
	if e.item.Type == types.InvoiceItemTypeFixed {
		return len(e.repairs) == 0 && (len(e.adjustments) == 0 || e.remaining.IsPositive())
	}
	return e.remaining.IsPositive() && len(e.unrepaired) > 0
}

// settled items have had their whole remaining amount adjusted away without
// being repaired. Their period counts as billed and they are never repaired.
func (e *existingItem) settled() bool {
	if e.item.Type == types.InvoiceItemTypeFixed {
		return len(e.repairs) == 0 && len(e.adjustments) > 0 && !e.remaining.IsPositive()
	}
	return !e.remaining.IsPositive() && len(e.unrepaired) > 0
}

// intact items carry no repair at all, neither persisted nor from this pass.
func (e *existingItem) intact() bool {
	return len(e.repairs) == 0 && !e.repairedNow
}

type subscriptionItems struct {
	fixed     []*existingItem
	recurring []*existingItem
	usage     []*existingItem
}

// itemIndex holds the existing items of a pass keyed by subscription. It is
// built once per pass.
type itemIndex struct {
	bySubscription map[string]*subscriptionItems
	// itemsByDate counts items per subscription on invoices of a given date
	itemsByDate map[string]map[time.Time]int
}

func (idx *itemIndex) subscription(id string) *subscriptionItems {
	s, ok := idx.bySubscription[id]
	if !ok {
		s = &subscriptionItems{}
		idx.bySubscription[id] = s
	}
	return s
}

func integrityError(msg string, details map[string]any) error {
	return ierr.NewError(msg).
		WithHint("Existing invoice items are inconsistent and cannot be reconciled").
		WithReportableDetails(details).
		Mark(ierr.ErrDataIntegrity)
}

// buildIndex indexes existing charges and validates every repair and item
// adjustment against them. Dangling links are tolerated when checkLinks is
// off, which is the case when older invoices were cut off.
func buildIndex(invoices []*invoice.Invoice, checkLinks bool) (*itemIndex, error) {
	idx := &itemIndex{
		bySubscription: make(map[string]*subscriptionItems),
		itemsByDate:    make(map[string]map[time.Time]int),
	}

	byID := make(map[string]*invoice.InvoiceItem)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			byID[item.ID] = item
			if sub := item.GetSubscriptionID(); sub != "" {
				if idx.itemsByDate[sub] == nil {
					idx.itemsByDate[sub] = make(map[time.Time]int)
				}
				idx.itemsByDate[sub][types.ToDate(inv.InvoiceDate)]++
			}
		}
	}

	linked := make(map[string][]*invoice.InvoiceItem)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if !item.Type.RequiresLink() {
				continue
			}
			target := item.GetLinkedItemID()
			if target == "" {
				return nil, integrityError("adjustment without linked item", map[string]any{
					"item_id": item.ID,
					"type":    item.Type,
				})
			}
			if _, ok := byID[target]; !ok {
				if checkLinks {
					return nil, integrityError("adjustment linked to a missing item", map[string]any{
						"item_id":        item.ID,
						"linked_item_id": target,
					})
				}
				continue
			}
			linked[target] = append(linked[target], item)
		}
	}

	for _, inv := range invoices {
		for _, item := range inv.Items {
			if !item.Type.IsCharge() || item.GetSubscriptionID() == "" {
				continue
			}
			// zero amount recurring items carry nothing to repair
			if item.Type == types.InvoiceItemTypeRecurring && item.Amount.IsZero() {
				continue
			}
			e, err := newExistingItem(item, inv.InvoiceDate, linked[item.ID])
			if err != nil {
				return nil, err
			}
			s := idx.subscription(item.GetSubscriptionID())
			switch item.Type {
			case types.InvoiceItemTypeFixed:
				s.fixed = append(s.fixed, e)
			case types.InvoiceItemTypeRecurring:
				s.recurring = append(s.recurring, e)
			case types.InvoiceItemTypeUsage:
				s.usage = append(s.usage, e)
			}
		}
	}

	for sub, s := range idx.bySubscription {
		if err := checkDoubleBilling(sub, s.recurring); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func newExistingItem(item *invoice.InvoiceItem, invoiceDate time.Time, linked []*invoice.InvoiceItem) (*existingItem, error) {
	e := &existingItem{item: item, invoiceDate: invoiceDate}
	for _, l := range linked {
		switch l.Type {
		case types.InvoiceItemTypeRepairAdj:
			e.repairs = append(e.repairs, l)
		case types.InvoiceItemTypeItemAdj:
			e.adjustments = append(e.adjustments, l)
		}
	}
	e.remaining = invoice.RemainingAmount(item, linked)

	if !item.Amount.IsNegative() && e.remaining.IsNegative() {
		return nil, integrityError("corrections exceed the item amount", map[string]any{
			"item_id":   item.ID,
			"amount":    item.Amount,
			"remaining": e.remaining,
		})
	}

	if item.Type == types.InvoiceItemTypeFixed {
		if len(e.repairs) > 1 {
			return nil, integrityError("fixed item repaired more than once", map[string]any{
				"item_id": item.ID,
				"repairs": len(e.repairs),
			})
		}
		return e, nil
	}

	if item.EndDate == nil {
		return nil, integrityError("charge without service period end", map[string]any{
			"item_id": item.ID,
			"type":    item.Type,
		})
	}

	full := e.period()
	repaired := make([]dateRange, 0, len(e.repairs))
	for _, r := range e.repairs {
		if r.EndDate == nil {
			return nil, integrityError("repair without service period end", map[string]any{
				"item_id":   r.ID,
				"linked_id": item.ID,
			})
		}
		rng := dateRange{start: r.StartDate, end: *r.EndDate}
		if !full.contains(rng) {
			return nil, integrityError("repair outside of the repaired item period", map[string]any{
				"item_id":      r.ID,
				"linked_id":    item.ID,
				"repair_start": rng.start,
				"repair_end":   rng.end,
			})
		}
		repaired = append(repaired, rng)
	}
	sort.Slice(repaired, func(i, j int) bool {
		return repaired[i].start.Before(repaired[j].start)
	})
	for i := 1; i < len(repaired); i++ {
		if repaired[i].start.Before(repaired[i-1].end) {
			return nil, integrityError("overlapping repairs on one item", map[string]any{
				"item_id": item.ID,
				"start":   repaired[i].start,
			})
		}
	}
	e.unrepaired = subtract([]dateRange{full}, repaired)
	return e, nil
}

// checkDoubleBilling fails when two live recurring items bill the same days.
func checkDoubleBilling(subscriptionID string, items []*existingItem) error {
	type billed struct {
		rng  dateRange
		item *existingItem
	}
	var all []billed
	for _, e := range items {
		if !e.live() {
			continue
		}
		for _, r := range e.unrepaired {
			all = append(all, billed{rng: r, item: e})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].rng.start.Before(all[j].rng.start)
	})
	for i := 1; i < len(all); i++ {
		if all[i].rng.start.Before(all[i-1].rng.end) {
			return integrityError("double billing detected", map[string]any{
				"subscription_id": subscriptionID,
				"item_id":         all[i].item.item.ID,
				"other_item_id":   all[i-1].item.item.ID,
				"start":           all[i].rng.start,
			})
		}
		if all[i-1].rng.end.After(all[i].rng.end) {
			all[i].rng.end = all[i-1].rng.end
		}
	}
	return nil
}

// sameKind reports whether two recurring charges bill the same thing, so
// that one covering a period means the other is still correct for it.
func sameKind(a, b *invoice.InvoiceItem) bool {
	return a.GetRate().Equal(b.GetRate()) &&
		a.PlanName == b.PlanName &&
		a.PhaseName == b.PhaseName &&
		types.IsMatchingCurrency(a.Currency, b.Currency)
}

// billedBy reports whether the existing item x already bills what proposal p
// bills. An item for exactly the proposed period must also carry the
// proposed amount.
func billedBy(p *invoice.InvoiceItem, x *existingItem) bool {
	if !sameKind(p, x.item) {
		return false
	}
	if itemRange(p).equal(x.period()) {
		return p.Amount.Equal(x.item.Amount)
	}
	return true
}

func itemRange(item *invoice.InvoiceItem) dateRange {
	return dateRange{start: item.StartDate, end: lo.FromPtr(item.EndDate)}
}

func detailsOf(item *invoice.InvoiceItem) invoice.SubscriptionDetails {
	return invoice.SubscriptionDetails{
		SubscriptionID: item.GetSubscriptionID(),
		BundleID:       lo.FromPtr(item.BundleID),
		PlanName:       item.PlanName,
		PhaseName:      item.PhaseName,
	}
}

// recurringTree reconciles the proposed recurring items of one subscription
// against what is on disk.
type recurringTree struct {
	calc     proration.Calculator
	period   types.BillingPeriod
	existing []*existingItem
	frozen   func(*existingItem) bool
}

// reconcile returns the repairs and the new recurring items. Proposals must
// be non overlapping.
func (t *recurringTree) reconcile(proposals []*invoice.InvoiceItem) []*invoice.InvoiceItem {
	var out []*invoice.InvoiceItem

	for _, x := range t.existing {
		if t.frozen(x) || !x.live() {
			continue
		}
		var cover []dateRange
		for _, p := range proposals {
			if billedBy(p, x) {
				cover = append(cover, itemRange(p))
			}
		}
		uncovered := subtract(x.unrepaired, cover)
		if len(uncovered) == 0 {
			continue
		}
		out = append(out, t.repair(x, uncovered)...)
	}

	for _, p := range proposals {
		var cover []dateRange
		for _, x := range t.existing {
			switch {
			case x.settled(), t.frozen(x) && x.live():
				cover = append(cover, x.unrepaired...)
			case x.live() && billedBy(p, x):
				cover = append(cover, x.unrepaired...)
			}
		}
		full := itemRange(p)
		left := subtract([]dateRange{full}, cover)
		if len(left) == 1 && left[0].equal(full) {
			out = append(out, p)
			continue
		}
		for _, w := range left {
			share := proration.PortionOf(t.calc, w.start, w.end, full.start, full.end, t.period)
			amount := types.RoundToCurrencyPrecision(p.Amount.Mul(share), p.Currency)
			if !amount.IsPositive() {
				continue
			}
			out = append(out, invoice.NewRecurringItem(detailsOf(p), w.start, w.end, amount, p.GetRate(), p.Currency))
		}
	}
	return out
}

// repair reverses the uncovered portions of x. Repairing everything still
// billed reverses exactly the remaining amount.
func (t *recurringTree) repair(x *existingItem, uncovered []dateRange) []*invoice.InvoiceItem {
	full := x.period()
	whole := sameRanges(uncovered, x.unrepaired)

	amounts := make([]decimal.Decimal, len(uncovered))
	left := x.remaining
	for i, v := range uncovered {
		share := proration.PortionOf(t.calc, v.start, v.end, full.start, full.end, t.period)
		amount := types.RoundToCurrencyPrecision(x.item.Amount.Mul(share), x.item.Currency)
		if whole && i == len(uncovered)-1 {
			amount = left
		}
		amount = decimal.Min(amount, left)
		amounts[i] = amount
		left = left.Sub(amount)
	}

	var out []*invoice.InvoiceItem
	for i, v := range uncovered {
		if !amounts[i].IsPositive() {
			continue
		}
		end := v.end
		out = append(out, invoice.NewRepairItem(x.item, v.start, &end, amounts[i].Neg()))
	}
	if len(out) > 0 {
		x.repairedNow = true
	}
	return out
}
