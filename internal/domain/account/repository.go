package account

import (
	"context"
)

// Repository defines the interface for account data access
type Repository interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id string) (*Account, error)

	// SetSubscriptionAutoInvoiceOff toggles a subscription's exclusion from
	// invoice generation
	SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error

	// ListInvoiceable returns ids of accounts with invoicing enabled
	ListInvoiceable(ctx context.Context) ([]string, error)

	// LockForInvoicing serialises invoicing passes and ledger operations of
	// one account. It must be called inside a transaction and holds until the
	// transaction ends.
	LockForInvoicing(ctx context.Context, accountID string) error
}
