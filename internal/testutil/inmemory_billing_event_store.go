package testutil

import (
	"context"
	"fmt"

	"github.com/flexprice/invoicer/internal/domain/billing"
	ierr "github.com/flexprice/invoicer/internal/errors"
)

var _ billing.Repository = (*InMemoryBillingEventStore)(nil)

// InMemoryBillingEventStore implements billing.Repository
type InMemoryBillingEventStore struct {
	*InMemoryStore[*billing.Event]
}

func NewInMemoryBillingEventStore() *InMemoryBillingEventStore {
	return &InMemoryBillingEventStore{
		InMemoryStore: NewInMemoryStore(copyEvent),
	}
}

func copyEvent(e *billing.Event) *billing.Event {
	out := *e
	out.Usages = append([]billing.UsageDefinition(nil), e.Usages...)
	return &out
}

func eventKey(e *billing.Event) string {
	return fmt.Sprintf("%s:%d", e.SubscriptionID, e.SequenceNumber)
}

func (s *InMemoryBillingEventStore) GetEventsForAccount(ctx context.Context, accountID string) (billing.EventSet, error) {
	events := s.List(ctx, func(ctx context.Context, e *billing.Event) bool {
		return e.AccountID == accountID
	}, nil)
	return billing.NewEventSet(events), nil
}

// Append ignores events already stored under the same subscription and sequence
func (s *InMemoryBillingEventStore) Append(ctx context.Context, events []*billing.Event) error {
	for _, e := range events {
		if e == nil {
			return ierr.NewError("event cannot be nil").
				WithHint("Event cannot be nil").
				Mark(ierr.ErrValidation)
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := s.Create(ctx, eventKey(e), e); err != nil && !ierr.IsAlreadyExists(err) {
			return err
		}
	}
	return nil
}
