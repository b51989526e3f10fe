package usage

import "context"

// Repository reads and writes raw usage records
type Repository interface {
	BulkInsert(ctx context.Context, records []*RawUsage) error

	// GetRawUsage returns the records of the window's subscriptions recorded
	// in [StartDate, EndDate), ordered by record date
	GetRawUsage(ctx context.Context, window *Window) ([]*RawUsage, error)
}
