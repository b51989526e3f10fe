package account

import (
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
)

// Account holds the invoicing settings of a billed account
type Account struct {
	// ID is the unique identifier for the account
	ID string `db:"id" json:"id"`

	// ExternalID is the identifier of the account in the upstream system
	ExternalID string `db:"external_id" json:"external_id"`

	// Currency every invoice of the account is issued in
	Currency string `db:"currency" json:"currency"`

	// AutoInvoiceOff suppresses invoice generation for the whole account
	AutoInvoiceOff bool `db:"auto_invoice_off" json:"auto_invoice_off"`

	// AutoInvoiceDraft makes generated invoices DRAFT until committed
	AutoInvoiceDraft bool `db:"auto_invoice_draft" json:"auto_invoice_draft"`

	// SubscriptionsAutoInvoiceOff lists subscriptions excluded from generation
	SubscriptionsAutoInvoiceOff []string `db:"-" json:"subscriptions_auto_invoice_off,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Account) Validate() error {
	if a.ID == "" {
		return ierr.NewError("account id is required").
			WithHint("Account must have an id").
			Mark(ierr.ErrValidation)
	}
	if a.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Account must have a billing currency").
			WithReportableDetails(map[string]any{"account_id": a.ID}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoicingFlags is the parameter object handed to a generation pass.
type InvoicingFlags struct {
	AutoInvoiceOff              bool
	AutoInvoiceDraft            bool
	SubscriptionsAutoInvoiceOff map[string]bool
}

// Flags returns the account's invoicing flags.
func (a *Account) Flags() InvoicingFlags {
	return InvoicingFlags{
		AutoInvoiceOff:   a.AutoInvoiceOff,
		AutoInvoiceDraft: a.AutoInvoiceDraft,
		SubscriptionsAutoInvoiceOff: lo.SliceToMap(a.SubscriptionsAutoInvoiceOff, func(id string) (string, bool) {
			return id, true
		}),
	}
}

// InvoiceStatus is the status generated invoices receive.
func (f InvoicingFlags) InvoiceStatus() types.InvoiceStatus {
	if f.AutoInvoiceDraft {
		return types.InvoiceStatusDraft
	}
	return types.InvoiceStatusCommitted
}
