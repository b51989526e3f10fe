package invoicegen

import (
	"testing"
	"time"

	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDetails = invoice.SubscriptionDetails{
	SubscriptionID: "sub_1",
	BundleID:       "bundle_sub_1",
	PlanName:       "pro",
	PhaseName:      "evergreen",
}

func recurringItem(start, end time.Time, amount string) *invoice.InvoiceItem {
	return invoice.NewRecurringItem(testDetails, start, end, dec(amount), dec("10"), "USD")
}

func invoiceWith(items ...*invoice.InvoiceItem) *invoice.Invoice {
	inv := invoice.NewInvoice(testAccount, "USD", date(2024, 1, 1), date(2024, 1, 1), types.InvoiceStatusCommitted)
	inv.AddItems(items...)
	return inv
}

func TestBuildIndexIntegrityViolations(t *testing.T) {
	jan := recurringItem(date(2024, 1, 1), date(2024, 2, 1), "10")

	tests := []struct {
		name     string
		invoices func() []*invoice.Invoice
	}{
		{
			name: "overlapping live recurring items",
			invoices: func() []*invoice.Invoice {
				other := recurringItem(date(2024, 1, 15), date(2024, 2, 15), "10")
				return []*invoice.Invoice{invoiceWith(jan, other)}
			},
		},
		{
			name: "repair linked to a missing item",
			invoices: func() []*invoice.Invoice {
				ghost := recurringItem(date(2024, 1, 1), date(2024, 2, 1), "10")
				return []*invoice.Invoice{invoiceWith(jan, invoice.NewRepairItem(ghost, date(2024, 1, 10), lo.ToPtr(date(2024, 2, 1)), dec("-7")))}
			},
		},
		{
			name: "item adjustment without link",
			invoices: func() []*invoice.Invoice {
				adj := invoice.NewItemAdjustment(jan, date(2024, 1, 5), dec("-1"), "goodwill")
				adj.LinkedItemID = nil
				return []*invoice.Invoice{invoiceWith(jan, adj)}
			},
		},
		{
			name: "overlapping repairs",
			invoices: func() []*invoice.Invoice {
				return []*invoice.Invoice{invoiceWith(jan,
					invoice.NewRepairItem(jan, date(2024, 1, 10), lo.ToPtr(date(2024, 1, 20)), dec("-3")),
					invoice.NewRepairItem(jan, date(2024, 1, 15), lo.ToPtr(date(2024, 2, 1)), dec("-5")),
				)}
			},
		},
		{
			name: "repair outside the item period",
			invoices: func() []*invoice.Invoice {
				return []*invoice.Invoice{invoiceWith(jan,
					invoice.NewRepairItem(jan, date(2024, 1, 10), lo.ToPtr(date(2024, 2, 10)), dec("-3")),
				)}
			},
		},
		{
			name: "corrections exceed amount",
			invoices: func() []*invoice.Invoice {
				return []*invoice.Invoice{invoiceWith(jan,
					invoice.NewRepairItem(jan, date(2024, 1, 10), lo.ToPtr(date(2024, 2, 1)), dec("-7")),
					invoice.NewItemAdjustment(jan, date(2024, 1, 12), dec("-5"), "goodwill"),
				)}
			},
		},
		{
			name: "fixed item repaired twice",
			invoices: func() []*invoice.Invoice {
				fee := invoice.NewFixedItem(testDetails, date(2024, 1, 1), dec("10"), "USD")
				return []*invoice.Invoice{invoiceWith(fee,
					invoice.NewRepairItem(fee, date(2024, 1, 1), nil, dec("-5")),
					invoice.NewRepairItem(fee, date(2024, 1, 1), nil, dec("-5")),
				)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildIndex(tt.invoices(), true)
			require.Error(t, err)
			assert.True(t, ierr.IsDataIntegrity(err), "got %v", err)
		})
	}
}

func TestBuildIndexToleratesCutOffLinks(t *testing.T) {
	ghost := recurringItem(date(2023, 1, 1), date(2023, 2, 1), "10")
	repair := invoice.NewRepairItem(ghost, date(2023, 1, 10), lo.ToPtr(date(2023, 2, 1)), dec("-7"))

	_, err := buildIndex([]*invoice.Invoice{invoiceWith(repair)}, false)
	assert.NoError(t, err)
}

func TestBuildIndexIgnoresZeroRecurringItems(t *testing.T) {
	free := recurringItem(date(2024, 1, 1), date(2024, 2, 1), "0")
	paid := recurringItem(date(2024, 1, 1), date(2024, 2, 1), "10")

	idx, err := buildIndex([]*invoice.Invoice{invoiceWith(free, paid)}, true)
	require.NoError(t, err)
	assert.Len(t, idx.subscription("sub_1").recurring, 1)
}

func TestPartiallyRepairedItemIsNotDoubleBilling(t *testing.T) {
	jan := recurringItem(date(2024, 1, 1), date(2024, 2, 1), "31")
	repair := invoice.NewRepairItem(jan, date(2024, 1, 16), lo.ToPtr(date(2024, 2, 1)), dec("-16"))
	replacement := recurringItem(date(2024, 1, 16), date(2024, 2, 1), "8")

	idx, err := buildIndex([]*invoice.Invoice{invoiceWith(jan, repair, replacement)}, true)
	require.NoError(t, err)

	items := idx.subscription("sub_1").recurring
	require.Len(t, items, 2)
	assert.True(t, items[0].remaining.Equal(dec("15")))
	assert.Equal(t, []dateRange{{start: date(2024, 1, 1), end: date(2024, 1, 16)}}, items[0].unrepaired)
}

func TestItemAdjustedChargeIsNotRebilled(t *testing.T) {
	gen := NewGenerator(Config{}, nil)
	create := recurring(newEvent("sub_1", 1, date(2024, 1, 1), types.TransitionTypeCreate), "10")

	first, err := gen.Generate(&Params{
		AccountID:  testAccount,
		Today:      date(2024, 1, 1),
		TargetDate: date(2024, 1, 1),
		Events:     billing.NewEventSet([]*billing.Event{create}),
	})
	require.NoError(t, err)
	require.NotNil(t, first.Invoice)

	original := first.Invoice.Items[0]
	first.Invoice.AddItems(invoice.NewItemAdjustment(original, date(2024, 1, 5), dec("-10"), "refund"))

	cancel := newEvent("sub_1", 2, date(2024, 1, 16), types.TransitionTypeCancel)
	second, err := gen.Generate(&Params{
		AccountID:        testAccount,
		Today:            date(2024, 1, 16),
		TargetDate:       date(2024, 1, 16),
		Events:           billing.NewEventSet([]*billing.Event{create, cancel}),
		ExistingInvoices: []*invoice.Invoice{first.Invoice},
	})
	require.NoError(t, err)
	assert.Nil(t, second.Invoice)
}

func TestRangeArithmetic(t *testing.T) {
	r := func(a, b int) dateRange {
		return dateRange{start: date(2024, 1, a), end: date(2024, 1, b)}
	}

	assert.Equal(t, []dateRange{r(1, 5), r(10, 20)}, subtract([]dateRange{r(1, 20)}, []dateRange{r(5, 10)}))
	assert.Empty(t, subtract([]dateRange{r(5, 10)}, []dateRange{r(1, 20)}))
	assert.Equal(t, []dateRange{r(1, 20)}, normalize([]dateRange{r(10, 20), r(1, 10), r(3, 3)}))
	assert.True(t, sameRanges([]dateRange{r(1, 5), r(5, 9)}, []dateRange{r(1, 9)}))
}
