package testutil

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
)

var _ invoice.Repository = (*InMemoryInvoiceStore)(nil)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore(copyInvoice),
	}
}

// Helper to copy invoice
func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	out.Items = make([]*invoice.InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		cp := *item
		out.Items[i] = &cp
	}
	return &out
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			WithHint("Invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, inv.ID, inv)
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return inv, nil
}

func (s *InMemoryInvoiceStore) ListByAccount(ctx context.Context, accountID string, cutoff *time.Time) ([]*invoice.Invoice, error) {
	return s.List(ctx,
		func(ctx context.Context, inv *invoice.Invoice) bool {
			if inv.AccountID != accountID {
				return false
			}
			return cutoff == nil || !inv.InvoiceDate.Before(*cutoff)
		},
		func(a, b *invoice.Invoice) bool {
			if !a.InvoiceDate.Equal(b.InvoiceDate) {
				return a.InvoiceDate.Before(b.InvoiceDate)
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		},
	), nil
}

func (s *InMemoryInvoiceStore) AddItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	return s.Mutate(ctx, invoiceID, func(inv *invoice.Invoice) (*invoice.Invoice, error) {
		for _, item := range items {
			cp := *item
			inv.Items = append(inv.Items, &cp)
		}
		return inv, nil
	})
}

// Update persists the header fields the sql repository writes and bumps the
// version of the caller's copy on success.
func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	err := s.Mutate(ctx, inv.ID, func(stored *invoice.Invoice) (*invoice.Invoice, error) {
		if stored.Version != inv.Version {
			return nil, ierr.NewError("invoice version conflict").
				WithHint("The invoice was modified concurrently, reload and retry").
				WithReportableDetails(map[string]any{
					"invoice_id":       inv.ID,
					"expected_version": inv.Version,
					"stored_version":   stored.Version,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		stored.Status = inv.Status
		stored.PaidAmount = inv.PaidAmount
		stored.Version++
		stored.UpdatedAt = time.Now().UTC()
		return stored, nil
	})
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}
