package invoice

import (
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Invoice represents the invoice domain model
type Invoice struct {
	ID            string              `json:"id" db:"id"`
	AccountID     string              `json:"account_id" db:"account_id"`
	InvoiceNumber string              `json:"invoice_number" db:"invoice_number"`
	InvoiceDate   time.Time           `json:"invoice_date" db:"invoice_date"`
	TargetDate    time.Time           `json:"target_date" db:"target_date"`
	Currency      string              `json:"currency" db:"currency"`
	Status        types.InvoiceStatus `json:"status" db:"status"`
	PaidAmount    decimal.Decimal     `json:"paid_amount" db:"paid_amount"`
	Version       int                 `json:"version" db:"version"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
	Items         []*InvoiceItem      `json:"items,omitempty" db:"-"`
}

// NewInvoice creates an empty invoice for the account.
func NewInvoice(accountID, currency string, invoiceDate, targetDate time.Time, status types.InvoiceStatus) *Invoice {
	now := time.Now().UTC()
	return &Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		AccountID:     accountID,
		InvoiceNumber: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE_NUMBER),
		InvoiceDate:   types.ToDate(invoiceDate),
		TargetDate:    types.ToDate(targetDate),
		Currency:      currency,
		Status:        status,
		PaidAmount:    decimal.Zero,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (inv *Invoice) IsCommitted() bool {
	return inv.Status == types.InvoiceStatusCommitted
}

// AddItems attaches items to the invoice, stamping the invoice header on them.
func (inv *Invoice) AddItems(items ...*InvoiceItem) {
	for _, item := range items {
		item.InvoiceID = inv.ID
		item.AccountID = inv.AccountID
		inv.Items = append(inv.Items, item)
	}
}

// ItemByID returns the item with the given id on this invoice.
func (inv *Invoice) ItemByID(id string) (*InvoiceItem, bool) {
	return lo.Find(inv.Items, func(item *InvoiceItem) bool {
		return item.ID == id
	})
}

func (inv *Invoice) Validate() error {
	if inv.AccountID == "" {
		return ierr.NewError("account_id is required").
			WithHint("Invoice must belong to an account").
			Mark(ierr.ErrValidation)
	}
	if inv.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Invoice must have a currency").
			Mark(ierr.ErrValidation)
	}
	if err := inv.Status.Validate(); err != nil {
		return err
	}
	if inv.PaidAmount.IsNegative() {
		return ierr.NewError("paid amount cannot be negative").
			WithHint("Refunds cannot exceed the amount paid on the invoice").
			WithReportableDetails(map[string]any{
				"invoice_id":  inv.ID,
				"paid_amount": inv.PaidAmount,
			}).
			Mark(ierr.ErrValidation)
	}
	for _, item := range inv.Items {
		if !types.IsMatchingCurrency(item.Currency, inv.Currency) {
			return ierr.NewError("item currency does not match invoice currency").
				WithHint("All items of an invoice must share its currency").
				WithReportableDetails(map[string]any{
					"invoice_currency": inv.Currency,
					"item_currency":    item.Currency,
					"item_id":          item.ID,
				}).
				Mark(ierr.ErrValidation)
		}
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}
