package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/flexprice/invoicer/internal/domain/account"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
)

type accountRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAccountRepository(db *postgres.DB, logger *logger.Logger) account.Repository {
	return &accountRepository{db: db, logger: logger}
}

func (r *accountRepository) Create(ctx context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (
			id, external_id, currency, auto_invoice_off, auto_invoice_draft, created_at, updated_at
		) VALUES (
			:id, :external_id, :currency, :auto_invoice_off, :auto_invoice_draft, :created_at, :updated_at
		)`

	r.logger.Debugw("creating account", "account_id", a.ID)

	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Account already exists").
				WithReportableDetails(map[string]any{"account_id": a.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create account").
			Mark(ierr.ErrDatabase)
	}

	for _, sub := range a.SubscriptionsAutoInvoiceOff {
		if err := r.SetSubscriptionAutoInvoiceOff(ctx, a.ID, sub, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id string) (*account.Account, error) {
	q := r.db.GetQuerier(ctx)

	var a account.Account
	err := q.GetContext(ctx, &a, `
		SELECT id, external_id, currency, auto_invoice_off, auto_invoice_draft, created_at, updated_at
		FROM accounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("account not found").
				WithHintf("Account %s was not found", id).
				WithReportableDetails(map[string]any{"account_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get account").
			Mark(ierr.ErrDatabase)
	}

	err = q.SelectContext(ctx, &a.SubscriptionsAutoInvoiceOff, `
		SELECT subscription_id FROM subscription_invoicing
		WHERE account_id = $1 AND auto_invoice_off
		ORDER BY subscription_id`, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription invoicing settings").
			Mark(ierr.ErrDatabase)
	}
	return &a, nil
}

func (r *accountRepository) SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error {
	query := `
		INSERT INTO subscription_invoicing (account_id, subscription_id, auto_invoice_off, updated_at)
		VALUES (:account_id, :subscription_id, :auto_invoice_off, :updated_at)
		ON CONFLICT (account_id, subscription_id)
		DO UPDATE SET auto_invoice_off = EXCLUDED.auto_invoice_off, updated_at = EXCLUDED.updated_at`

	r.logger.Debugw("setting subscription auto invoice off",
		"account_id", accountID,
		"subscription_id", subscriptionID,
		"off", off,
	)

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"account_id":       accountID,
		"subscription_id":  subscriptionID,
		"auto_invoice_off": off,
		"updated_at":       time.Now().UTC(),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription invoicing settings").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *accountRepository) ListInvoiceable(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &ids,
		`SELECT id FROM accounts WHERE NOT auto_invoice_off ORDER BY id`)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list accounts").
			Mark(ierr.ErrDatabase)
	}
	return ids, nil
}

func (r *accountRepository) LockForInvoicing(ctx context.Context, accountID string) error {
	return r.db.AdvisoryXactLock(ctx, "invoicing:"+accountID)
}
