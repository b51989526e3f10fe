package clickhouse

import (
	"context"

	"github.com/flexprice/invoicer/internal/clickhouse"
	"github.com/flexprice/invoicer/internal/domain/usage"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/validator"
	"github.com/samber/lo"
)

type UsageRepository struct {
	store  *clickhouse.ClickHouseStore
	logger *logger.Logger
}

func NewUsageRepository(store *clickhouse.ClickHouseStore, logger *logger.Logger) usage.Repository {
	return &UsageRepository{store: store, logger: logger}
}

func (r *UsageRepository) BulkInsert(ctx context.Context, records []*usage.RawUsage) error {
	if len(records) == 0 {
		return nil
	}

	span := StartRepositorySpan(ctx, "usage", "bulk_insert", map[string]interface{}{
		"count": len(records),
	})
	defer FinishSpan(span)

	batch, err := r.store.GetConn().PrepareBatch(ctx, `
		INSERT INTO raw_usage (tracking_id, account_id, subscription_id, unit_type, record_date, amount)
	`)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to prepare usage batch").
			Mark(ierr.ErrDatabase)
	}

	for _, rec := range records {
		if err := batch.Append(
			rec.TrackingID,
			rec.AccountID,
			rec.SubscriptionID,
			rec.UnitType,
			rec.RecordDate,
			rec.Amount,
		); err != nil {
			SetSpanError(span, err)
			return ierr.WithError(err).
				WithHint("Failed to append usage record").
				WithReportableDetails(map[string]interface{}{
					"tracking_id": rec.TrackingID,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	if err := batch.Send(); err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to insert usage records").
			Mark(ierr.ErrDatabase)
	}

	r.logger.Debugw("inserted raw usage", "count", len(records))
	SetSpanSuccess(span)
	return nil
}

func (r *UsageRepository) GetRawUsage(ctx context.Context, window *usage.Window) ([]*usage.RawUsage, error) {
	if err := validator.ValidateRequest(window); err != nil {
		return nil, err
	}

	span := StartRepositorySpan(ctx, "usage", "get_raw_usage", map[string]interface{}{
		"account_id":    window.AccountID,
		"subscriptions": len(window.SubscriptionIDs),
	})
	defer FinishSpan(span)

	// FINAL collapses records re-sent with the same tracking id
	query := `
		SELECT tracking_id, account_id, subscription_id, unit_type, record_date, amount, ingested_at
		FROM raw_usage FINAL
		WHERE account_id = ?
			AND subscription_id IN ?
			AND record_date >= ?
			AND record_date < ?
		ORDER BY record_date, tracking_id
	`

	var rows []usage.RawUsage
	err := r.store.GetConn().Select(ctx, &rows, query,
		window.AccountID,
		window.SubscriptionIDs,
		window.StartDate,
		window.EndDate,
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to query raw usage").
			WithReportableDetails(map[string]interface{}{
				"account_id": window.AccountID,
				"start_date": window.StartDate,
				"end_date":   window.EndDate,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.logger.Debugw("loaded raw usage",
		"account_id", window.AccountID,
		"records", len(rows),
	)
	SetSpanSuccess(span)
	return lo.ToSlicePtr(rows), nil
}
