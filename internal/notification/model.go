package notification

import (
	"time"

	"github.com/flexprice/invoicer/internal/types"
)

// Kind tells what a next billing notification wakes up for
type Kind string

const (
	KindRecurring Kind = "RECURRING"
	KindUsage     Kind = "USAGE"
)

// NextBilling asks the scheduler to run the account again on NextDate.
// BillingMode tells an IN_ADVANCE wake-up (bill the coming period) from an
// IN_ARREAR one (bill the period that just ended).
type NextBilling struct {
	AccountID      string            `json:"account_id"`
	SubscriptionID string            `json:"subscription_id"`
	Kind           Kind              `json:"kind"`
	BillingMode    types.BillingMode `json:"billing_mode"`
	UsageName      string            `json:"usage_name,omitempty"`
	NextDate       time.Time         `json:"next_date"`
}

// InvoiceRunRequest triggers one invoicing pass for an account
type InvoiceRunRequest struct {
	AccountID   string    `json:"account_id" validate:"required"`
	TargetDate  time.Time `json:"target_date" validate:"required"`
	RequestedAt time.Time `json:"requested_at"`
}
