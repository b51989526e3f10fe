package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const invoiceColumns = `id, account_id, invoice_number, invoice_date, target_date, currency, status, paid_amount, version, created_at, updated_at`

const itemColumns = `id, invoice_id, account_id, type, subscription_id, bundle_id, start_date, end_date, amount, currency,
	linked_item_id, rate, plan_name, phase_name, usage_name, unit_type, quantity, description, created_at`

const insertItemQuery = `
	INSERT INTO invoice_items (
		id, invoice_id, account_id, type, subscription_id, bundle_id, start_date, end_date, amount, currency,
		linked_item_id, rate, plan_name, phase_name, usage_name, unit_type, quantity, description, created_at
	) VALUES (
		:id, :invoice_id, :account_id, :type, :subscription_id, :bundle_id, :start_date, :end_date, :amount, :currency,
		:linked_item_id, :rate, :plan_name, :phase_name, :usage_name, :unit_type, :quantity, :description, :created_at
	)`

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, account_id, invoice_number, invoice_date, target_date, currency, status, paid_amount, version, created_at, updated_at
		) VALUES (
			:id, :account_id, :invoice_number, :invoice_date, :target_date, :currency, :status, :paid_amount, :version, :created_at, :updated_at
		)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"account_id", inv.AccountID,
		"items", len(inv.Items),
	)

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
			if isUniqueViolation(err) {
				return ierr.WithError(err).
					WithHint("Invoice already exists").
					WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithError(err).
				WithHint("Failed to create invoice").
				WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
				Mark(ierr.ErrDatabase)
		}
		return r.insertItems(ctx, inv.ID, inv.Items)
	})
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	q := r.db.GetQuerier(ctx)
	err := q.GetContext(ctx, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("invoice not found").
				WithHintf("Invoice %s was not found", id).
				WithReportableDetails(map[string]any{"invoice_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}

	items, err := r.itemsOf(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	inv.Items = items[id]
	return &inv, nil
}

func (r *invoiceRepository) ListByAccount(ctx context.Context, accountID string, cutoff *time.Time) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE account_id = $1`
	args := []any{accountID}
	if cutoff != nil {
		query += ` AND invoice_date >= $2`
		args = append(args, *cutoff)
	}
	query += ` ORDER BY invoice_date, created_at, id`

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrDatabase)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	items, err := r.itemsOf(ctx, lo.Map(invoices, func(inv *invoice.Invoice, _ int) string { return inv.ID }))
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		inv.Items = items[inv.ID]
	}
	return invoices, nil
}

func (r *invoiceRepository) AddItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	r.logger.Debugw("adding invoice items", "invoice_id", invoiceID, "items", len(items))
	return r.insertItems(ctx, invoiceID, items)
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			status = :status,
			paid_amount = :paid_amount,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`

	inv.UpdatedAt = time.Now().UTC()
	result, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("invoice was modified concurrently").
			WithHint("Reload the invoice and retry").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"version":    inv.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}
	inv.Version++
	return nil
}

func (r *invoiceRepository) insertItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		item.InvoiceID = invoiceID
	}
	if _, err := r.db.NamedExecContext(ctx, insertItemQuery, items); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice items").
			WithReportableDetails(map[string]any{"invoice_id": invoiceID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// itemsOf loads the items of the given invoices grouped by invoice id
func (r *invoiceRepository) itemsOf(ctx context.Context, invoiceIDs []string) (map[string][]*invoice.InvoiceItem, error) {
	var items []*invoice.InvoiceItem
	query := `SELECT ` + itemColumns + ` FROM invoice_items WHERE invoice_id = ANY($1) ORDER BY created_at, id`
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, query, pq.Array(invoiceIDs)); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load invoice items").
			Mark(ierr.ErrDatabase)
	}
	return lo.GroupBy(items, func(item *invoice.InvoiceItem) string { return item.InvoiceID }), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
