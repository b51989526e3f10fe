package invoice

import (
	"context"
	"time"
)

// Repository defines the interface for invoice persistence operations
type Repository interface {
	// Create persists a new invoice together with its items
	Create(ctx context.Context, invoice *Invoice) error

	// Get retrieves an invoice and its items by ID
	Get(ctx context.Context, id string) (*Invoice, error)

	// ListByAccount returns the account's invoices with their items ordered by
	// invoice date. A non-nil cutoff skips invoices dated before it.
	ListByAccount(ctx context.Context, accountID string, cutoff *time.Time) ([]*Invoice, error)

	// AddItems appends items to an existing invoice
	AddItems(ctx context.Context, invoiceID string, items []*InvoiceItem) error

	// Update persists status and paid amount changes, failing with a version
	// conflict when the stored version differs
	Update(ctx context.Context, invoice *Invoice) error
}
