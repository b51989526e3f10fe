package billing

import "context"

// Repository reads the billing events produced upstream.
type Repository interface {
	// GetEventsForAccount returns every event of the account's subscriptions
	// ordered by subscription and sequence number.
	GetEventsForAccount(ctx context.Context, accountID string) (EventSet, error)

	// Append stores events. Events are never updated.
	Append(ctx context.Context, events []*Event) error
}
