package repository

import (
	"context"

	"github.com/flexprice/invoicer/internal/cache"
	"github.com/flexprice/invoicer/internal/domain/account"
)

// CachedAccountRepository serves account settings from memory. Writes go
// through to the wrapped repository and evict the entry.
type CachedAccountRepository struct {
	account.Repository
	cache *cache.InMemoryCache
}

func NewCachedAccountRepository(repo account.Repository, c *cache.InMemoryCache) *CachedAccountRepository {
	return &CachedAccountRepository{Repository: repo, cache: c}
}

func (r *CachedAccountRepository) Get(ctx context.Context, id string) (*account.Account, error) {
	span := cache.StartCacheSpan(ctx, "account", "get", map[string]interface{}{"account_id": id})
	defer cache.FinishSpan(span)

	key := cache.GenerateKey(cache.PrefixAccount, id)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if a, ok := cached.(*account.Account); ok {
			cache.SetSpanSuccess(span)
			return a, nil
		}
	}

	a, err := r.Repository.Get(ctx, id)
	if err != nil {
		cache.SetSpanError(span, err)
		return nil, err
	}
	r.cache.Set(ctx, key, a, r.cache.TTL())
	return a, nil
}

func (r *CachedAccountRepository) Create(ctx context.Context, a *account.Account) error {
	if err := r.Repository.Create(ctx, a); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixAccount, a.ID))
	return nil
}

func (r *CachedAccountRepository) SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error {
	if err := r.Repository.SetSubscriptionAutoInvoiceOff(ctx, accountID, subscriptionID, off); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixAccount, accountID))
	return nil
}
