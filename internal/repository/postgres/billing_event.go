package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flexprice/invoicer/internal/domain/billing"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/samber/lo"
)

// eventRow is the stored form of a billing event; usage sections live in a
// jsonb column.
type eventRow struct {
	billing.Event
	UsagesJSON []byte    `db:"usages"`
	CreatedAt  time.Time `db:"created_at"`
}

type billingEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billing.Repository {
	return &billingEventRepository{db: db, logger: logger}
}

func (r *billingEventRepository) GetEventsForAccount(ctx context.Context, accountID string) (billing.EventSet, error) {
	query := `
		SELECT
			subscription_id, sequence_number, bundle_id, account_id, effective_date, plan_name, phase_name,
			fixed_price, recurring_price, currency, billing_period, bill_cycle_day_local, billing_mode,
			transition_type, usages, created_at
		FROM billing_events
		WHERE account_id = $1
		ORDER BY subscription_id, sequence_number`

	var rows []*eventRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, accountID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load billing events").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrDatabase)
	}

	events := make([]*billing.Event, 0, len(rows))
	for _, row := range rows {
		e := row.Event
		if len(row.UsagesJSON) > 0 {
			if err := json.Unmarshal(row.UsagesJSON, &e.Usages); err != nil {
				return nil, ierr.WithError(err).
					WithHint("Stored usage definitions are malformed").
					WithReportableDetails(map[string]any{
						"subscription_id": e.SubscriptionID,
						"sequence_number": e.SequenceNumber,
					}).
					Mark(ierr.ErrDataIntegrity)
			}
		}
		events = append(events, &e)
	}

	r.logger.Debugw("loaded billing events", "account_id", accountID, "count", len(events))
	return billing.NewEventSet(events), nil
}

func (r *billingEventRepository) Append(ctx context.Context, events []*billing.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]*eventRow, 0, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		usages, err := json.Marshal(lo.Ternary(e.Usages == nil, []billing.UsageDefinition{}, e.Usages))
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to encode usage definitions").
				Mark(ierr.ErrValidation)
		}
		rows = append(rows, &eventRow{Event: *e, UsagesJSON: usages, CreatedAt: time.Now().UTC()})
	}

	query := `
		INSERT INTO billing_events (
			subscription_id, sequence_number, bundle_id, account_id, effective_date, plan_name, phase_name,
			fixed_price, recurring_price, currency, billing_period, bill_cycle_day_local, billing_mode,
			transition_type, usages, created_at
		) VALUES (
			:subscription_id, :sequence_number, :bundle_id, :account_id, :effective_date, :plan_name, :phase_name,
			:fixed_price, :recurring_price, :currency, :billing_period, :bill_cycle_day_local, :billing_mode,
			:transition_type, :usages, :created_at
		)
		ON CONFLICT (subscription_id, sequence_number) DO NOTHING`

	r.logger.Debugw("appending billing events", "count", len(rows))

	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to store billing events").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
