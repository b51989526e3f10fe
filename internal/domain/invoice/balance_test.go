package invoice

import (
	"testing"

	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var details = SubscriptionDetails{SubscriptionID: "sub_1", PlanName: "pro", PhaseName: "evergreen"}

func TestInvoiceBalance(t *testing.T) {
	day := types.Date(2024, 1, 1)
	inv := NewInvoice("acc_1", "USD", day, day, types.InvoiceStatusCommitted)
	end := types.Date(2024, 2, 1)
	charge := NewRecurringItem(details, day, end, d("30"), d("30"), "USD")
	inv.AddItems(
		charge,
		NewRepairItem(charge, types.Date(2024, 1, 16), &end, d("-15.48")),
		NewCreditItem(day, d("-20"), "USD", "goodwill"),
		NewCBAItem(day, d("5.48"), "USD"),
	)
	inv.PaidAmount = decimal.Zero

	assert.True(t, d("-5.48").Equal(inv.ChargedAmount()))
	assert.True(t, d("5.48").Equal(inv.CBAAmount()))
	assert.True(t, inv.Balance().IsZero())
	require.NoError(t, inv.Validate())
}

func TestAccountBalanceExcludesDrafts(t *testing.T) {
	day := types.Date(2024, 1, 1)

	first := NewInvoice("acc_1", "USD", day, day, types.InvoiceStatusCommitted)
	first.AddItems(
		NewFixedItem(details, day, d("10"), "USD"),
		NewCreditItem(day, d("-25"), "USD", "goodwill"),
		NewCBAItem(day, d("15"), "USD"),
	)

	second := NewInvoice("acc_1", "USD", day.AddDate(0, 1, 0), day.AddDate(0, 1, 0), types.InvoiceStatusCommitted)
	second.AddItems(
		NewFixedItem(details, day.AddDate(0, 1, 0), d("40"), "USD"),
		NewCBAItem(day.AddDate(0, 1, 0), d("-15"), "USD"),
	)
	second.PaidAmount = d("20")

	draft := NewInvoice("acc_1", "USD", day, day, types.InvoiceStatusDraft)
	draft.AddItems(NewFixedItem(details, day, d("99"), "USD"))

	invoices := []*Invoice{first, second, draft}

	assert.True(t, first.Balance().IsZero())
	assert.True(t, d("5").Equal(second.Balance()))
	assert.True(t, AccountCBA(invoices).IsZero())
	// 10 - 25 + 40 - 20 paid
	assert.True(t, d("5").Equal(AccountBalance(invoices)))
}

func TestRemainingAmountAndLinks(t *testing.T) {
	day := types.Date(2024, 1, 1)
	inv := NewInvoice("acc_1", "USD", day, day, types.InvoiceStatusCommitted)
	charge := NewFixedItem(details, day, d("10"), "USD")
	adj := NewItemAdjustment(charge, day, d("-4"), "partial refund")
	inv.AddItems(charge, adj)

	linked := LinkedItems([]*Invoice{inv})
	require.Len(t, linked[charge.ID], 1)
	assert.True(t, d("6").Equal(RemainingAmount(charge, linked[charge.ID])))

	found, item, ok := FindItem([]*Invoice{inv}, adj.ID)
	require.True(t, ok)
	assert.Equal(t, inv.ID, found.ID)
	assert.Equal(t, charge.ID, item.GetLinkedItemID())

	_, _, ok = FindItem([]*Invoice{inv}, "missing")
	assert.False(t, ok)
}

func TestItemValidate(t *testing.T) {
	day := types.Date(2024, 1, 1)
	charge := NewFixedItem(details, day, d("10"), "USD")

	positiveRepair := NewRepairItem(charge, day, nil, d("5"))
	assert.Error(t, positiveRepair.Validate())

	unlinked := NewItemAdjustment(charge, day, d("-1"), "")
	unlinked.LinkedItemID = nil
	assert.Error(t, unlinked.Validate())

	inverted := NewRecurringItem(details, day, day.AddDate(0, 0, -1), d("1"), d("1"), "USD")
	assert.Error(t, inverted.Validate())

	assert.NoError(t, charge.Validate())
}
