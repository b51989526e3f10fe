package invoice

import (
	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
)

// ChargedAmount sums every item except CBA adjustments.
func (inv *Invoice) ChargedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.Items {
		if item.Type == types.InvoiceItemTypeCBAAdj {
			continue
		}
		total = total.Add(item.Amount)
	}
	return total
}

// CBAAmount sums the CBA adjustments of the invoice. Positive means credit
// was granted on this invoice, negative means credit was consumed by it.
func (inv *Invoice) CBAAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.Items {
		if item.Type == types.InvoiceItemTypeCBAAdj {
			total = total.Add(item.Amount)
		}
	}
	return total
}

// Balance is what is still owed on the invoice: charges, plus credit moved
// through it, minus payments.
func (inv *Invoice) Balance() decimal.Decimal {
	return inv.ChargedAmount().Add(inv.CBAAmount()).Sub(inv.PaidAmount)
}

// AccountCBA is the credit available on the account across committed invoices.
func AccountCBA(invoices []*Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.IsCommitted() {
			total = total.Add(inv.CBAAmount())
		}
	}
	return total
}

// AccountBalance is what the account owes net of available credit. It equals
// the committed non-CBA charges minus payments. Draft invoices are excluded.
func AccountBalance(invoices []*Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.IsCommitted() {
			total = total.Add(inv.Balance())
		}
	}
	return total.Sub(AccountCBA(invoices))
}

// LinkedItems indexes every item carrying a link by the id it points at.
func LinkedItems(invoices []*Invoice) map[string][]*InvoiceItem {
	out := make(map[string][]*InvoiceItem)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if id := item.GetLinkedItemID(); id != "" {
				out[id] = append(out[id], item)
			}
		}
	}
	return out
}

// FindItem looks an item up across invoices.
func FindItem(invoices []*Invoice, itemID string) (*Invoice, *InvoiceItem, bool) {
	for _, inv := range invoices {
		if item, ok := inv.ItemByID(itemID); ok {
			return inv, item, true
		}
	}
	return nil, nil, false
}

// RemainingAmount is the amount of item not yet repaired or adjusted away.
func RemainingAmount(item *InvoiceItem, linked []*InvoiceItem) decimal.Decimal {
	remaining := item.Amount
	for _, l := range linked {
		if l.Type == types.InvoiceItemTypeRepairAdj || l.Type == types.InvoiceItemTypeItemAdj {
			remaining = remaining.Add(l.Amount)
		}
	}
	return remaining
}
