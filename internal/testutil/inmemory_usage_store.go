package testutil

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/validator"
	"github.com/samber/lo"
)

var _ usage.Repository = (*InMemoryUsageStore)(nil)

// InMemoryUsageStore implements usage.Repository. Records sharing a tracking
// id replace each other like the ClickHouse table does.
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.RawUsage]
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore(func(r *usage.RawUsage) *usage.RawUsage {
			out := *r
			return &out
		}),
	}
}

func (s *InMemoryUsageStore) BulkInsert(ctx context.Context, records []*usage.RawUsage) error {
	for _, r := range records {
		r.IngestedAt = time.Now().UTC()
		if err := s.Create(ctx, r.TrackingID, r); err != nil {
			if err := s.Update(ctx, r.TrackingID, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *InMemoryUsageStore) GetRawUsage(ctx context.Context, window *usage.Window) ([]*usage.RawUsage, error) {
	if err := validator.ValidateRequest(window); err != nil {
		return nil, err
	}
	return s.List(ctx,
		func(ctx context.Context, r *usage.RawUsage) bool {
			return r.AccountID == window.AccountID &&
				lo.Contains(window.SubscriptionIDs, r.SubscriptionID) &&
				!r.RecordDate.Before(window.StartDate) &&
				r.RecordDate.Before(window.EndDate)
		},
		func(a, b *usage.RawUsage) bool {
			if !a.RecordDate.Equal(b.RecordDate) {
				return a.RecordDate.Before(b.RecordDate)
			}
			return a.TrackingID < b.TrackingID
		},
	), nil
}
