package invoice

import (
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceItem is one line of an invoice. All variants share the header and
// use the optional fields relevant to their type:
//   - LinkedItemID for REPAIR_ADJ, ITEM_ADJ and reversing CBA_ADJ
//   - Rate, PlanName, PhaseName for RECURRING and USAGE
//   - UsageName, UnitType, Quantity for USAGE
//   - Description for CREDIT_ADJ and EXTERNAL_CHARGE
type InvoiceItem struct {
	ID             string                `json:"id" db:"id"`
	InvoiceID      string                `json:"invoice_id" db:"invoice_id"`
	AccountID      string                `json:"account_id" db:"account_id"`
	Type           types.InvoiceItemType `json:"type" db:"type"`
	SubscriptionID *string               `json:"subscription_id,omitempty" db:"subscription_id"`
	BundleID       *string               `json:"bundle_id,omitempty" db:"bundle_id"`
	StartDate      time.Time             `json:"start_date" db:"start_date"`
	EndDate        *time.Time            `json:"end_date,omitempty" db:"end_date"`
	Amount         decimal.Decimal       `json:"amount" db:"amount"`
	Currency       string                `json:"currency" db:"currency"`
	LinkedItemID   *string               `json:"linked_item_id,omitempty" db:"linked_item_id"`
	Rate           *decimal.Decimal      `json:"rate,omitempty" db:"rate"`
	PlanName       string                `json:"plan_name,omitempty" db:"plan_name"`
	PhaseName      string                `json:"phase_name,omitempty" db:"phase_name"`
	UsageName      string                `json:"usage_name,omitempty" db:"usage_name"`
	UnitType       string                `json:"unit_type,omitempty" db:"unit_type"`
	Quantity       *decimal.Decimal      `json:"quantity,omitempty" db:"quantity"`
	Description    string                `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
}

func newItem(itemType types.InvoiceItemType, start time.Time, end *time.Time, amount decimal.Decimal, currency string) *InvoiceItem {
	item := &InvoiceItem{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
		Type:      itemType,
		StartDate: types.ToDate(start),
		Amount:    amount,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if end != nil {
		item.EndDate = lo.ToPtr(types.ToDate(*end))
	}
	return item
}

// SubscriptionDetails identifies the subscription and catalog entry an item bills.
type SubscriptionDetails struct {
	SubscriptionID string
	BundleID       string
	PlanName       string
	PhaseName      string
}

func (d SubscriptionDetails) apply(item *InvoiceItem) *InvoiceItem {
	item.SubscriptionID = lo.ToPtr(d.SubscriptionID)
	if d.BundleID != "" {
		item.BundleID = lo.ToPtr(d.BundleID)
	}
	item.PlanName = d.PlanName
	item.PhaseName = d.PhaseName
	return item
}

// NewFixedItem bills a one-off charge on the given day.
func NewFixedItem(sub SubscriptionDetails, day time.Time, amount decimal.Decimal, currency string) *InvoiceItem {
	return sub.apply(newItem(types.InvoiceItemTypeFixed, day, nil, amount, currency))
}

// NewRecurringItem bills the service period [start, end) at the given rate.
func NewRecurringItem(sub SubscriptionDetails, start, end time.Time, amount, rate decimal.Decimal, currency string) *InvoiceItem {
	item := sub.apply(newItem(types.InvoiceItemTypeRecurring, start, &end, amount, currency))
	item.Rate = lo.ToPtr(rate)
	return item
}

// NewUsageItem bills consumed units of a usage section for [start, end).
func NewUsageItem(sub SubscriptionDetails, usageName, unitType string, start, end time.Time, quantity, amount decimal.Decimal, currency string) *InvoiceItem {
	item := sub.apply(newItem(types.InvoiceItemTypeUsage, start, &end, amount, currency))
	item.UsageName = usageName
	item.UnitType = unitType
	item.Quantity = lo.ToPtr(quantity)
	return item
}

// NewRepairItem reverses part of linked over [start, end). amount is negative.
func NewRepairItem(linked *InvoiceItem, start time.Time, end *time.Time, amount decimal.Decimal) *InvoiceItem {
	item := newItem(types.InvoiceItemTypeRepairAdj, start, end, amount, linked.Currency)
	item.SubscriptionID = linked.SubscriptionID
	item.BundleID = linked.BundleID
	item.LinkedItemID = lo.ToPtr(linked.ID)
	return item
}

// NewItemAdjustment credits amount (negative) against linked.
func NewItemAdjustment(linked *InvoiceItem, day time.Time, amount decimal.Decimal, description string) *InvoiceItem {
	item := newItem(types.InvoiceItemTypeItemAdj, day, &day, amount, linked.Currency)
	item.SubscriptionID = linked.SubscriptionID
	item.BundleID = linked.BundleID
	item.LinkedItemID = lo.ToPtr(linked.ID)
	item.Description = description
	return item
}

// NewCBAItem grants (positive) or consumes (negative) account credit.
func NewCBAItem(day time.Time, amount decimal.Decimal, currency string) *InvoiceItem {
	return newItem(types.InvoiceItemTypeCBAAdj, day, &day, amount, currency)
}

// NewCBAReversal undoes part of a CBA grant or consumption.
func NewCBAReversal(linked *InvoiceItem, day time.Time, amount decimal.Decimal) *InvoiceItem {
	item := NewCBAItem(day, amount, linked.Currency)
	item.LinkedItemID = lo.ToPtr(linked.ID)
	return item
}

// NewCreditItem records an account credit. amount is negative.
func NewCreditItem(day time.Time, amount decimal.Decimal, currency, description string) *InvoiceItem {
	item := newItem(types.InvoiceItemTypeCreditAdj, day, &day, amount, currency)
	item.Description = description
	return item
}

// NewExternalCharge bills an ad-hoc amount outside any subscription.
func NewExternalCharge(day time.Time, amount decimal.Decimal, currency, description string, subscriptionID *string) *InvoiceItem {
	item := newItem(types.InvoiceItemTypeExternalCharge, day, nil, amount, currency)
	item.Description = description
	item.SubscriptionID = subscriptionID
	return item
}

// GetSubscriptionID returns the subscription id or "" for account-level items.
func (i *InvoiceItem) GetSubscriptionID() string {
	return lo.FromPtr(i.SubscriptionID)
}

func (i *InvoiceItem) GetLinkedItemID() string {
	return lo.FromPtr(i.LinkedItemID)
}

func (i *InvoiceItem) GetRate() decimal.Decimal {
	return lo.FromPtr(i.Rate)
}

// HasPeriod reports whether the item covers a non empty service period.
func (i *InvoiceItem) HasPeriod() bool {
	return i.EndDate != nil && i.EndDate.After(i.StartDate)
}

func (i *InvoiceItem) Validate() error {
	if err := i.Type.Validate(); err != nil {
		return err
	}
	if i.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Invoice item must have a currency").
			WithReportableDetails(map[string]any{"item_id": i.ID}).
			Mark(ierr.ErrValidation)
	}
	if i.Type.RequiresLink() && i.GetLinkedItemID() == "" {
		return ierr.NewError("linked item is required").
			WithHintf("%s items must reference the item they correct", i.Type).
			WithReportableDetails(map[string]any{"item_id": i.ID}).
			Mark(ierr.ErrValidation)
	}
	if i.EndDate != nil && i.EndDate.Before(i.StartDate) {
		return ierr.NewError("item end date before start date").
			WithHint("Invoice item period is inverted").
			WithReportableDetails(map[string]any{
				"item_id":    i.ID,
				"start_date": i.StartDate,
				"end_date":   i.EndDate,
			}).
			Mark(ierr.ErrInvalidDateSequence)
	}
	switch i.Type {
	case types.InvoiceItemTypeRecurring:
		if i.EndDate == nil || i.Rate == nil {
			return ierr.NewError("recurring item requires a period and a rate").
				WithHint("Recurring items must carry an end date and a rate").
				WithReportableDetails(map[string]any{"item_id": i.ID}).
				Mark(ierr.ErrValidation)
		}
	case types.InvoiceItemTypeRepairAdj, types.InvoiceItemTypeItemAdj, types.InvoiceItemTypeCreditAdj:
		if i.Amount.IsPositive() {
			return ierr.NewError("adjustment amount must not be positive").
				WithHintf("%s items reduce what is owed", i.Type).
				WithReportableDetails(map[string]any{
					"item_id": i.ID,
					"amount":  i.Amount,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
