package service

import (
	"time"

	"github.com/flexprice/invoicer/internal/validator"
	"github.com/shopspring/decimal"
)

type CreateAccountRequest struct {
	ExternalID       string `json:"external_id"`
	Currency         string `json:"currency" validate:"required,len=3"`
	AutoInvoiceOff   bool   `json:"auto_invoice_off"`
	AutoInvoiceDraft bool   `json:"auto_invoice_draft"`
}

func (r *CreateAccountRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// InsertCreditRequest credits the account. Without InvoiceID the credit lands
// on a new invoice.
type InsertCreditRequest struct {
	AccountID     string          `json:"account_id" validate:"required"`
	InvoiceID     *string         `json:"invoice_id,omitempty"`
	Amount        decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Currency      string          `json:"currency" validate:"required"`
	Description   string          `json:"description"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty"`
}

func (r *InsertCreditRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type DeleteCBARequest struct {
	AccountID string `json:"account_id" validate:"required"`
	InvoiceID string `json:"invoice_id" validate:"required"`
	ItemID    string `json:"item_id" validate:"required"`
}

func (r *DeleteCBARequest) Validate() error {
	return validator.ValidateRequest(r)
}

// AdjustItemRequest adjusts an item down. A nil Amount adjusts the whole
// remaining amount.
type AdjustItemRequest struct {
	AccountID     string           `json:"account_id" validate:"required"`
	InvoiceID     string           `json:"invoice_id" validate:"required"`
	ItemID        string           `json:"item_id" validate:"required"`
	Amount        *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,decimal_positive"`
	Description   string           `json:"description"`
	EffectiveDate *time.Time       `json:"effective_date,omitempty"`
}

func (r *AdjustItemRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// PaymentRequest records a payment or a refund against an invoice
type PaymentRequest struct {
	AccountID string          `json:"account_id" validate:"required"`
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"decimal_positive"`
}

func (r *PaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ExternalCharge struct {
	Amount         decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Description    string          `json:"description" validate:"required"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
}

type ExternalChargesRequest struct {
	AccountID     string           `json:"account_id" validate:"required"`
	Currency      string           `json:"currency" validate:"required"`
	Charges       []ExternalCharge `json:"charges" validate:"required,min=1,dive"`
	EffectiveDate *time.Time       `json:"effective_date,omitempty"`
}

func (r *ExternalChargesRequest) Validate() error {
	return validator.ValidateRequest(r)
}
