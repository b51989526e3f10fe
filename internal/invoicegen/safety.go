package invoicegen

import (
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
)

type fixedKey struct {
	subscriptionID string
	day            time.Time
}

type periodKey struct {
	subscriptionID string
	start          time.Time
	end            time.Time
}

// safetyBounds accumulates the resulting amounts per billing key over a pass
// and is checked once at the end.
type safetyBounds struct {
	maxItemsPerDay int
	today          time.Time

	fixed     map[fixedKey]map[string]decimal.Decimal
	recurring map[periodKey]map[string]decimal.Decimal
	newItems  map[string]int
}

func newSafetyBounds(maxItemsPerDay int, today time.Time) *safetyBounds {
	return &safetyBounds{
		maxItemsPerDay: maxItemsPerDay,
		today:          types.ToDate(today),
		fixed:          make(map[fixedKey]map[string]decimal.Decimal),
		recurring:      make(map[periodKey]map[string]decimal.Decimal),
		newItems:       make(map[string]int),
	}
}

func addAmount[K comparable](m map[K]map[string]decimal.Decimal, key K, amount decimal.Decimal) {
	if m[key] == nil {
		m[key] = make(map[string]decimal.Decimal)
	}
	m[key][amount.String()] = amount
}

// addExisting records the billed amount of an existing item still standing
// untouched after the pass.
func (s *safetyBounds) addExisting(x *existingItem) {
	if !x.intact() || !x.live() {
		return
	}
	s.add(x.item, x.remaining)
}

// addNew records an item created by the pass.
func (s *safetyBounds) addNew(item *invoice.InvoiceItem) {
	if sub := item.GetSubscriptionID(); sub != "" {
		s.newItems[sub]++
	}
	s.add(item, item.Amount)
}

func (s *safetyBounds) add(item *invoice.InvoiceItem, amount decimal.Decimal) {
	sub := item.GetSubscriptionID()
	switch item.Type {
	case types.InvoiceItemTypeFixed:
		addAmount(s.fixed, fixedKey{subscriptionID: sub, day: types.ToDate(item.StartDate)}, amount)
	case types.InvoiceItemTypeRecurring:
		if item.EndDate == nil {
			return
		}
		addAmount(s.recurring, periodKey{subscriptionID: sub, start: item.StartDate, end: *item.EndDate}, amount)
	}
}

// check fails the pass when a key resolved to more than one amount or when a
// subscription accumulates too many items on today's invoices.
func (s *safetyBounds) check(idx *itemIndex) error {
	for key, amounts := range s.fixed {
		if len(amounts) > 1 {
			return integrityError("conflicting fixed amounts for one day", map[string]any{
				"subscription_id": key.subscriptionID,
				"day":             key.day,
				"amounts":         len(amounts),
			})
		}
	}
	for key, amounts := range s.recurring {
		if len(amounts) > 1 {
			return integrityError("conflicting recurring amounts for one period", map[string]any{
				"subscription_id": key.subscriptionID,
				"start":           key.start,
				"end":             key.end,
				"amounts":         len(amounts),
			})
		}
	}
	if s.maxItemsPerDay <= 0 {
		return nil
	}
	for sub, count := range s.newItems {
		total := count + idx.itemsByDate[sub][s.today]
		if total > s.maxItemsPerDay {
			return integrityError("too many invoice items for one subscription today", map[string]any{
				"subscription_id": sub,
				"items":           total,
				"max":             s.maxItemsPerDay,
			})
		}
	}
	return nil
}
