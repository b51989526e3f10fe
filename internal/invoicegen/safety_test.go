package invoicegen

import (
	"testing"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafetyBoundsConflictingAmounts(t *testing.T) {
	fixedItem := func(amount string) *invoice.InvoiceItem {
		return invoice.NewFixedItem(testDetails, date(2024, 1, 10), dec(amount), "USD")
	}
	janItem := func(amount string) *invoice.InvoiceItem {
		return recurringItem(date(2024, 1, 1), date(2024, 2, 1), amount)
	}

	tests := []struct {
		name        string
		existing    *invoice.InvoiceItem
		repairedNow bool
		added       *invoice.InvoiceItem
		wantErr     bool
	}{
		{
			name:     "fixed item with a different amount on the same day",
			existing: fixedItem("10"),
			added:    fixedItem("13"),
			wantErr:  true,
		},
		{
			name:     "fixed item with the same amount",
			existing: fixedItem("10"),
			added:    fixedItem("10"),
		},
		{
			name:     "recurring item with a different amount for the same period",
			existing: janItem("10"),
			added:    janItem("12"),
			wantErr:  true,
		},
		{
			name:     "recurring item with the same amount",
			existing: janItem("10"),
			added:    janItem("10"),
		},
		{
			name:        "existing item repaired by the pass",
			existing:    janItem("10"),
			repairedNow: true,
			added:       janItem("12"),
		},
		{
			name:     "recurring item for another period",
			existing: janItem("10"),
			added:    recurringItem(date(2024, 2, 1), date(2024, 3, 1), "12"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := buildIndex([]*invoice.Invoice{invoiceWith(tt.existing)}, true)
			require.NoError(t, err)

			sub := idx.subscription(testDetails.SubscriptionID)
			existing := append(sub.fixed, sub.recurring...)
			require.Len(t, existing, 1)
			existing[0].repairedNow = tt.repairedNow

			bounds := newSafetyBounds(0, date(2024, 1, 1))
			bounds.addExisting(existing[0])
			bounds.addNew(tt.added)

			err = bounds.check(idx)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ierr.IsDataIntegrity(err))
		})
	}
}
