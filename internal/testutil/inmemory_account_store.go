package testutil

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/flexprice/invoicer/internal/domain/account"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/samber/lo"
)

var _ account.Repository = (*InMemoryAccountStore)(nil)

// InMemoryAccountStore implements account.Repository
type InMemoryAccountStore struct {
	*InMemoryStore[*account.Account]
	locks atomic.Int64
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{
		InMemoryStore: NewInMemoryStore(copyAccount),
	}
}

func copyAccount(a *account.Account) *account.Account {
	out := *a
	out.SubscriptionsAutoInvoiceOff = append([]string(nil), a.SubscriptionsAutoInvoiceOff...)
	return &out
}

func (s *InMemoryAccountStore) Create(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return s.InMemoryStore.Create(ctx, a.ID, a)
}

func (s *InMemoryAccountStore) Get(ctx context.Context, id string) (*account.Account, error) {
	a, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Account %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return a, nil
}

func (s *InMemoryAccountStore) SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error {
	return s.Mutate(ctx, accountID, func(a *account.Account) (*account.Account, error) {
		subs := lo.Without(a.SubscriptionsAutoInvoiceOff, subscriptionID)
		if off {
			subs = append(subs, subscriptionID)
		}
		a.SubscriptionsAutoInvoiceOff = subs
		a.UpdatedAt = time.Now().UTC()
		return a, nil
	})
}

func (s *InMemoryAccountStore) ListInvoiceable(ctx context.Context) ([]string, error) {
	accounts := s.List(ctx, func(ctx context.Context, a *account.Account) bool {
		return !a.AutoInvoiceOff
	}, nil)
	ids := lo.Map(accounts, func(a *account.Account, _ int) string { return a.ID })
	sort.Strings(ids)
	return ids, nil
}

// LockForInvoicing only checks it runs inside InMemoryTxClient.WithTx, which
// already serialises every transaction.
func (s *InMemoryAccountStore) LockForInvoicing(ctx context.Context, accountID string) error {
	if !InTx(ctx) {
		return ierr.NewError("account lock requires a transaction").
			WithHint("Call LockForInvoicing inside WithTx").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrInvalidOperation)
	}
	s.locks.Add(1)
	return nil
}

// LockCount is the number of locks taken so far
func (s *InMemoryAccountStore) LockCount() int64 {
	return s.locks.Load()
}
